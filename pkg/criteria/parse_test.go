package criteria

import (
	"errors"
	"strings"
	"testing"
)

func TestParseQuery_Full(t *testing.T) {
	m := testModel(t)
	src := `
where:
  and:
    - age: {">=": 21}
    - or:
        - status: active
        - status: pending
select: [name, owner]
sort:
  - {age: DESC}
  - name ASC
limit: 0
skip: 5
`
	q, err := DecodeQuery(m, strings.NewReader(src))
	if err != nil {
		t.Fatalf("DecodeQuery() error = %v", err)
	}

	want := `and(age >= 21, or(status = "active", status = "pending"))`
	if q.Where.String() != want {
		t.Fatalf("where = %s, want %s", q.Where, want)
	}
	if q.Directives.Select.All() {
		t.Fatal("expected explicit selection")
	}
	fields := q.Directives.Select.Fields()
	if len(fields) != 2 || fields[0] != "name" || fields[1] != "owner_id" {
		t.Fatalf("select not mapped to columns: %v", fields)
	}
	if len(q.Directives.Sort) != 2 ||
		q.Directives.Sort[0] != (SortKey{Field: "age", Direction: Desc}) ||
		q.Directives.Sort[1] != (SortKey{Field: "name", Direction: Asc}) {
		t.Fatalf("sort = %v", q.Directives.Sort)
	}
	if q.Directives.Limit != 0 || q.Directives.Skip != 5 {
		t.Fatalf("limit/skip = %d/%d", q.Directives.Limit, q.Directives.Skip)
	}
	if q.Model != m {
		t.Fatal("model not attached")
	}
}

func TestParseQuery_Defaults(t *testing.T) {
	q, err := ParseQuery(nil, map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Where != nil || !q.Directives.Select.All() || q.Directives.Limit != Unbounded || q.Directives.Skip != 0 {
		t.Fatalf("unexpected defaults: %+v", q)
	}

	q, err = ParseQuery(nil, map[string]interface{}{"select": []interface{}{"*"}})
	if err != nil || !q.Directives.Select.All() {
		t.Fatalf("select * should select all: %+v, %v", q.Directives.Select, err)
	}
}

func TestParseWhere_Shorthands(t *testing.T) {
	m := testModel(t)
	tests := []struct {
		name  string
		where map[string]interface{}
		want  string
	}{
		{name: "scalar eq", where: map[string]interface{}{"name": "rex"}, want: `name = "rex"`},
		{name: "list means in", where: map[string]interface{}{"owner": []interface{}{"a", "b"}}, want: `owner_id in ["a", "b"]`},
		{name: "null", where: map[string]interface{}{"owner": nil}, want: `owner_id = null`},
		{
			name:  "sibling keys sorted",
			where: map[string]interface{}{"name": "rex", "age": map[string]interface{}{">": 2}},
			want:  `and(age > 2, name = "rex")`,
		},
		{
			name:  "multiple modifiers",
			where: map[string]interface{}{"age": map[string]interface{}{">": 2, "<": 9}},
			want:  `and(age < 9, age > 2)`,
		},
		{name: "like", where: map[string]interface{}{"name": map[string]interface{}{"like": "%ex"}}, want: `name like "%ex"`},
		{name: "nin", where: map[string]interface{}{"name": map[string]interface{}{"nin": []interface{}{"a"}}}, want: `name nin ["a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseWhere(m, tt.where)
			if err != nil {
				t.Fatalf("ParseWhere() error = %v", err)
			}
			if p.String() != tt.want {
				t.Fatalf("got %s, want %s", p, tt.want)
			}
		})
	}

	p, err := ParseWhere(m, map[string]interface{}{})
	if err != nil || p != nil {
		t.Fatalf("empty where should be nil predicate, got %v, %v", p, err)
	}
}

func TestParseQuery_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]interface{}
		wantErr error
	}{
		{name: "unknown key", raw: map[string]interface{}{"limt": 1}},
		{name: "empty and", raw: map[string]interface{}{"where": map[string]interface{}{"and": []interface{}{}}}, wantErr: ErrEmptyLogical},
		{name: "empty and clause", raw: map[string]interface{}{"where": map[string]interface{}{"or": []interface{}{map[string]interface{}{}}}}, wantErr: ErrEmptyLogical},
		{name: "bad op", raw: map[string]interface{}{"where": map[string]interface{}{"a": map[string]interface{}{"~": 1}}}, wantErr: ErrUnknownOperator},
		{name: "in scalar", raw: map[string]interface{}{"where": map[string]interface{}{"a": map[string]interface{}{"in": 1}}}, wantErr: ErrOperandShape},
		{name: "bad direction", raw: map[string]interface{}{"sort": []interface{}{map[string]interface{}{"a": "UP"}}}, wantErr: ErrInvalidDirection},
		{name: "negative limit", raw: map[string]interface{}{"limit": -1}, wantErr: ErrInvalidPage},
		{name: "fractional skip", raw: map[string]interface{}{"skip": 1.5}, wantErr: ErrInvalidPage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(nil, tt.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
