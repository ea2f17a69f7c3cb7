package mongodb

import (
	"fmt"

	"github.com/nimburion/mongocriteria/pkg/criteria"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reserved filter keys.
const (
	opAnd   = "$and"
	opOr    = "$or"
	opLt    = "$lt"
	opLte   = "$lte"
	opGt    = "$gt"
	opGte   = "$gte"
	opNe    = "$ne"
	opIn    = "$in"
	opNin   = "$nin"
	opNot   = "$not"
	opRegex = "$regex"
)

var comparisonKeys = map[criteria.Operator]string{
	criteria.Lt:    opLt,
	criteria.Lte:   opLte,
	criteria.Gt:    opGt,
	criteria.Gte:   opGte,
	criteria.Ne:    opNe,
	criteria.In:    opIn,
	criteria.NotIn: opNin,
}

// Option configures compilation.
type Option func(*options)

type options struct {
	foldCase map[criteria.Operator]bool
}

// WithCaseInsensitive marks operators whose string operands match case-insensitively.
// Only Eq, Ne, In, NotIn and Like are affected.
func WithCaseInsensitive(ops ...criteria.Operator) Option {
	return func(o *options) {
		for _, op := range ops {
			switch op {
			case criteria.Eq, criteria.Ne, criteria.In, criteria.NotIn, criteria.Like:
				o.foldCase[op] = true
			}
		}
	}
}

// WithLegacyCaseFolding folds case for every string comparison, as older adapter
// releases did unconditionally.
func WithLegacyCaseFolding() Option {
	return WithCaseInsensitive(criteria.Eq, criteria.Ne, criteria.In, criteria.NotIn, criteria.Like)
}

func newOptions(opts []Option) options {
	o := options{foldCase: map[criteria.Operator]bool{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Compile translates a predicate tree into a native filter. isIdentifierField reports
// which physical fields hold primary or foreign keys; their string operands are
// coerced to ObjectIDs when they have the identifier shape and left alone otherwise.
//
// A nil predicate compiles to the empty filter, which matches every document.
func Compile(p criteria.Predicate, isIdentifierField func(string) bool, opts ...Option) (bson.D, error) {
	if p == nil {
		return bson.D{}, nil
	}
	if isIdentifierField == nil {
		isIdentifierField = func(string) bool { return false }
	}
	c := compiler{isIdentifier: isIdentifierField, options: newOptions(opts)}
	return c.compile(p)
}

type compiler struct {
	isIdentifier func(string) bool
	options      options
}

func (c compiler) compile(p criteria.Predicate) (bson.D, error) {
	switch node := p.(type) {
	case *criteria.Logical:
		return c.compileLogical(node)
	case *criteria.Comparison:
		return c.compileComparison(node)
	default:
		return nil, fmt.Errorf("%w: %T", criteria.ErrUnknownPredicate, p)
	}
}

func (c compiler) compileLogical(node *criteria.Logical) (bson.D, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil logical node", criteria.ErrUnknownPredicate)
	}
	key := opAnd
	if node.Op() == criteria.OpOr {
		key = opOr
	}
	clauses := node.Clauses()
	if len(clauses) == 0 {
		return nil, fmt.Errorf("%s: %w", node.Op(), criteria.ErrEmptyLogical)
	}
	out := make(bson.A, 0, len(clauses))
	for i, clause := range clauses {
		compiled, err := c.compile(clause)
		if err != nil {
			return nil, fmt.Errorf("%s clause %d: %w", node.Op(), i, err)
		}
		out = append(out, compiled)
	}
	return bson.D{{Key: key, Value: out}}, nil
}

func (c compiler) compileComparison(node *criteria.Comparison) (bson.D, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil comparison node", criteria.ErrUnknownPredicate)
	}
	field, op, operand := node.Field(), node.Op(), node.Operand()
	fold := c.options.foldCase[op]

	switch op {
	case criteria.Like:
		s, ok := operand.AsString()
		if !ok {
			return nil, fmt.Errorf("field %q: like needs a string pattern: %w", field, criteria.ErrOperandShape)
		}
		return bson.D{{Key: field, Value: bson.D{{Key: opRegex, Value: regexValue(LikePattern(s), fold)}}}}, nil

	case criteria.In, criteria.NotIn:
		items, ok := operand.AsList()
		if !ok {
			return nil, fmt.Errorf("field %q operator %q: %w", field, op, criteria.ErrOperandShape)
		}
		list := make(bson.A, len(items))
		for i, item := range items {
			v, err := c.operandValue(field, item, fold)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return bson.D{{Key: field, Value: bson.D{{Key: comparisonKeys[op], Value: list}}}}, nil

	case criteria.Eq:
		v, err := c.operandValue(field, operand, fold)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: field, Value: v}}, nil

	case criteria.Ne:
		v, err := c.operandValue(field, operand, fold)
		if err != nil {
			return nil, err
		}
		if isRegex(v) {
			return bson.D{{Key: field, Value: bson.D{{Key: opNot, Value: v}}}}, nil
		}
		return bson.D{{Key: field, Value: bson.D{{Key: opNe, Value: v}}}}, nil

	case criteria.Lt, criteria.Lte, criteria.Gt, criteria.Gte:
		v, err := c.operandValue(field, operand, false)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: field, Value: bson.D{{Key: comparisonKeys[op], Value: v}}}}, nil

	default:
		return nil, fmt.Errorf("field %q: %w: %q", field, criteria.ErrUnknownOperator, string(op))
	}
}

// operandValue coerces identifier-shaped strings on identifier fields, and turns the
// remaining strings into case-insensitive whole-value regexes when fold is set.
func (c compiler) operandValue(field string, v criteria.Value, fold bool) (interface{}, error) {
	if c.isIdentifier(field) {
		oid, ok, err := NormalizeIdentifier(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		if ok {
			return oid, nil
		}
	}
	if s, ok := v.AsString(); ok && fold {
		return regexValue(exactPattern(s), true), nil
	}
	return nativeValue(v), nil
}

func isRegex(v interface{}) bool {
	_, ok := v.(primitive.Regex)
	return ok
}
