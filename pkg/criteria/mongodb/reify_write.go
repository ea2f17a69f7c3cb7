package mongodb

import (
	"fmt"
	"sort"

	"github.com/nimburion/mongocriteria/pkg/criteria"
	"go.mongodb.org/mongo-driver/bson"
)

// ReifyForWrite prepares a record, or the changed fields of an update, for storage.
// Keys are physical field names. The caller's map is not modified.
//
// A null primary key is dropped so the store assigns one. A non-null primary key and
// every non-null foreign key must be identifiers; anything else fails with
// *criteria.InvalidIdentifierError rather than being stored as-is.
func ReifyForWrite(values map[string]criteria.Value, model *criteria.Model) (bson.M, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", criteria.ErrInvalidModel)
	}
	out := make(bson.M, len(values))
	pk := model.PrimaryKeyColumn()

	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	for _, column := range columns {
		v := values[column]
		switch {
		case column == pk:
			if v.IsNull() {
				continue
			}
			oid, err := NormalizeStrict(attributeName(model, column), v)
			if err != nil {
				return nil, err
			}
			out[column] = oid

		case model.IsForeignKeyColumn(column):
			if v.IsNull() {
				out[column] = nil
				continue
			}
			oid, err := NormalizeStrict(attributeName(model, column), v)
			if err != nil {
				return nil, err
			}
			out[column] = oid

		default:
			out[column] = nativeValue(v)
		}
	}
	return out, nil
}

// ReifyEachForWrite reifies a batch of records. The error names the failing record index.
func ReifyEachForWrite(records []map[string]criteria.Value, model *criteria.Model) ([]bson.M, error) {
	out := make([]bson.M, 0, len(records))
	for i, values := range records {
		doc, err := ReifyForWrite(values, model)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func attributeName(model *criteria.Model, column string) string {
	if a, ok := model.AttributeByColumn(column); ok {
		return a.Name
	}
	return column
}
