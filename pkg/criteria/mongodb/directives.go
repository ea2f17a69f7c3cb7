package mongodb

import (
	"fmt"

	"github.com/nimburion/mongocriteria/pkg/criteria"
	"go.mongodb.org/mongo-driver/bson"
)

// Directives are the native read directives of one query.
type Directives struct {
	// Projection is nil when every field is selected.
	Projection bson.D
	// Sort is nil when no ordering was requested.
	Sort bson.D
	// Limit is nil when unbounded. A zero limit is an explicit cap.
	Limit *int64
	// Skip is nil when zero.
	Skip *int64
}

// Bundle is a compiled read: the filter plus its directives.
type Bundle struct {
	Filter bson.D
	Directives
}

// CompileDirectives translates select, sort, limit and skip. Sort order is preserved
// because it defines tie-break precedence.
func CompileDirectives(d criteria.Directives) (Directives, error) {
	var out Directives

	if !d.Select.All() {
		fields := d.Select.Fields()
		seen := make(map[string]struct{}, len(fields))
		out.Projection = make(bson.D, 0, len(fields))
		for _, f := range fields {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			out.Projection = append(out.Projection, bson.E{Key: f, Value: 1})
		}
	}

	if len(d.Sort) > 0 {
		out.Sort = make(bson.D, 0, len(d.Sort))
		for i, key := range d.Sort {
			var dir int
			switch key.Direction {
			case criteria.Asc:
				dir = 1
			case criteria.Desc:
				dir = -1
			default:
				return Directives{}, fmt.Errorf("sort key %d (%q): %w: %q", i, key.Field, criteria.ErrInvalidDirection, string(key.Direction))
			}
			out.Sort = append(out.Sort, bson.E{Key: key.Field, Value: dir})
		}
	}

	switch {
	case d.Limit == criteria.Unbounded:
	case d.Limit < 0:
		return Directives{}, fmt.Errorf("%w: limit %d", criteria.ErrInvalidPage, d.Limit)
	default:
		limit := d.Limit
		out.Limit = &limit
	}

	switch {
	case d.Skip < 0:
		return Directives{}, fmt.Errorf("%w: skip %d", criteria.ErrInvalidPage, d.Skip)
	case d.Skip > 0:
		skip := d.Skip
		out.Skip = &skip
	}

	return out, nil
}

// CompileQuery compiles the where clause and directives of q. Identifier fields are
// taken from q.Model.
func CompileQuery(q criteria.Query, opts ...Option) (Bundle, error) {
	var isIdentifier func(string) bool
	if q.Model != nil {
		isIdentifier = q.Model.IsIdentifierColumn
	}
	filter, err := Compile(q.Where, isIdentifier, opts...)
	if err != nil {
		return Bundle{}, err
	}
	directives, err := CompileDirectives(q.Directives)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{Filter: filter, Directives: directives}, nil
}
