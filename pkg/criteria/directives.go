package criteria

import (
	"fmt"
	"strings"
)

// Direction is a normalized sort direction.
type Direction string

// Sort directions
const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Valid reports whether d is Asc or Desc.
func (d Direction) Valid() bool {
	return d == Asc || d == Desc
}

// ParseDirection normalizes a direction token such as "asc" or "DESC".
func ParseDirection(token string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(token)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, token)
	}
	return d, nil
}

// SortKey is one element of an ordered sort list.
type SortKey struct {
	Field     string
	Direction Direction
}

// Selection is either "all fields" or an explicit field set.
type Selection struct {
	fields []string
}

// SelectAll selects every field. It is the zero Selection.
func SelectAll() Selection { return Selection{} }

// SelectFields selects exactly the given fields. With no fields it selects all.
func SelectFields(fields ...string) Selection {
	out := make([]string, len(fields))
	copy(out, fields)
	return Selection{fields: out}
}

// All reports whether every field is selected.
func (s Selection) All() bool { return len(s.fields) == 0 }

// Fields returns a copy of the selected fields.
func (s Selection) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// Unbounded is the Limit value meaning "no limit".
const Unbounded int64 = -1

// Directives carries projection, ordering and paging for a read.
// Limit 0 is an explicit cap at zero records; use Unbounded for no limit.
type Directives struct {
	Select Selection
	Sort   []SortKey
	Limit  int64
	Skip   int64
}

// DefaultDirectives selects all fields with no ordering and no limit.
func DefaultDirectives() Directives {
	return Directives{Limit: Unbounded}
}

// Query is a stage-three query: a predicate tree, read directives and the model
// that describes which physical fields are identifiers.
type Query struct {
	Model      *Model
	Where      Predicate
	Directives Directives
}
