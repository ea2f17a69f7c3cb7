package criteria

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reserved keys of a criteria dictionary.
const (
	keyWhere  = "where"
	keySelect = "select"
	keySort   = "sort"
	keyLimit  = "limit"
	keySkip   = "skip"
	keyAnd    = "and"
	keyOr     = "or"
)

// DecodeQuery reads a YAML (or JSON) criteria dictionary and parses it against model.
func DecodeQuery(model *Model, r io.Reader) (Query, error) {
	raw := map[string]interface{}{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return Query{}, fmt.Errorf("failed to decode criteria: %w", err)
	}
	return ParseQuery(model, raw)
}

// ParseQuery converts a stage-three criteria dictionary
//
//	{where: {...}, select: [...], sort: [{age: DESC}], limit: 10, skip: 0}
//
// into a Query. Attribute names are translated to physical fields through model.
func ParseQuery(model *Model, raw map[string]interface{}) (Query, error) {
	q := Query{Model: model, Directives: DefaultDirectives()}
	for key := range raw {
		switch key {
		case keyWhere, keySelect, keySort, keyLimit, keySkip:
		default:
			return Query{}, fmt.Errorf("unknown criteria key %q", key)
		}
	}

	if where, ok := raw[keyWhere]; ok && where != nil {
		m, ok := where.(map[string]interface{})
		if !ok {
			return Query{}, fmt.Errorf("where must be a dictionary, got %T", where)
		}
		p, err := ParseWhere(model, m)
		if err != nil {
			return Query{}, err
		}
		q.Where = p
	}

	if sel, ok := raw[keySelect]; ok && sel != nil {
		s, err := parseSelect(model, sel)
		if err != nil {
			return Query{}, err
		}
		q.Directives.Select = s
	}

	if srt, ok := raw[keySort]; ok && srt != nil {
		keys, err := parseSort(model, srt)
		if err != nil {
			return Query{}, err
		}
		q.Directives.Sort = keys
	}

	if lim, ok := raw[keyLimit]; ok && lim != nil {
		n, err := toInt64(lim)
		if err != nil || n < 0 {
			return Query{}, fmt.Errorf("%w: limit %v", ErrInvalidPage, lim)
		}
		q.Directives.Limit = n
	}

	if skip, ok := raw[keySkip]; ok && skip != nil {
		n, err := toInt64(skip)
		if err != nil || n < 0 {
			return Query{}, fmt.Errorf("%w: skip %v", ErrInvalidPage, skip)
		}
		q.Directives.Skip = n
	}

	return q, nil
}

// ParseWhere converts a where dictionary into a predicate tree. Sibling keys are
// combined with and, in sorted key order. An empty dictionary yields a nil Predicate.
func ParseWhere(model *Model, where map[string]interface{}) (Predicate, error) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]Predicate, 0, len(keys))
	for _, key := range keys {
		p, err := parseWhereKey(model, key, where[key])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, p)
	}

	switch len(clauses) {
	case 0:
		return nil, nil
	case 1:
		return clauses[0], nil
	default:
		return And(clauses...)
	}
}

func parseWhereKey(model *Model, key string, raw interface{}) (Predicate, error) {
	if key == keyAnd || key == keyOr {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s must be a list, got %T", key, raw)
		}
		clauses := make([]Predicate, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a dictionary, got %T", key, i, item)
			}
			p, err := ParseWhere(model, m)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			if p == nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, ErrEmptyLogical)
			}
			clauses = append(clauses, p)
		}
		if key == keyAnd {
			return And(clauses...)
		}
		return Or(clauses...)
	}

	field := columnFor(model, key)
	modifiers, ok := raw.(map[string]interface{})
	if !ok {
		v, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if v.Kind() == KindList {
			return Compare(field, In, v)
		}
		return Compare(field, Eq, v)
	}
	if len(modifiers) == 0 {
		return nil, fmt.Errorf("field %q: empty modifier dictionary: %w", key, ErrOperandShape)
	}

	tokens := make([]string, 0, len(modifiers))
	for tok := range modifiers {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	clauses := make([]Predicate, 0, len(tokens))
	for _, tok := range tokens {
		op, err := ParseOperator(tok)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		v, err := ValueOf(modifiers[tok])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		p, err := Compare(field, op, v)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, p)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return And(clauses...)
}

func parseSelect(model *Model, raw interface{}) (Selection, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return Selection{}, fmt.Errorf("select must be a list, got %T", raw)
	}
	fields := make([]string, 0, len(list))
	for i, item := range list {
		name, ok := item.(string)
		if !ok || strings.TrimSpace(name) == "" {
			return Selection{}, fmt.Errorf("select[%d] must be a field name, got %v", i, item)
		}
		if name == "*" {
			return SelectAll(), nil
		}
		fields = append(fields, columnFor(model, name))
	}
	return SelectFields(fields...), nil
}

func parseSort(model *Model, raw interface{}) ([]SortKey, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("sort must be a list, got %T", raw)
	}
	keys := make([]SortKey, 0, len(list))
	for i, item := range list {
		var field, token string
		switch t := item.(type) {
		case map[string]interface{}:
			if len(t) != 1 {
				return nil, fmt.Errorf("sort[%d] must have exactly one field, got %d", i, len(t))
			}
			for k, v := range t {
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("sort[%d]: %w: %v", i, ErrInvalidDirection, v)
				}
				field, token = k, s
			}
		case string:
			parts := strings.Fields(t)
			if len(parts) != 2 {
				return nil, fmt.Errorf("sort[%d] must look like \"field ASC\", got %q", i, t)
			}
			field, token = parts[0], parts[1]
		default:
			return nil, fmt.Errorf("sort[%d] has unsupported type %T", i, item)
		}
		dir, err := ParseDirection(token)
		if err != nil {
			return nil, fmt.Errorf("sort[%d]: %w", i, err)
		}
		keys = append(keys, SortKey{Field: columnFor(model, field), Direction: dir})
	}
	return keys, nil
}

func columnFor(model *Model, name string) string {
	if model == nil {
		return name
	}
	return model.ColumnFor(name)
}

func toInt64(raw interface{}) (int64, error) {
	switch t := raw.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", t)
		}
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt64 || t < math.MinInt64 {
			return 0, fmt.Errorf("%v is not an integer", t)
		}
		return int64(t), nil
	default:
		return 0, fmt.Errorf("unsupported number type %T", raw)
	}
}
