package criteria

import (
	"fmt"
	"strings"
)

// Operator is a comparison operator of a predicate leaf.
type Operator string

// Comparison operators. The string form matches the stage-three criteria tokens.
const (
	Eq    Operator = "="
	Lt    Operator = "<"
	Lte   Operator = "<="
	Gt    Operator = ">"
	Gte   Operator = ">="
	Ne    Operator = "!="
	In    Operator = "in"
	NotIn Operator = "nin"
	Like  Operator = "like"
)

// Operators lists every supported operator.
var Operators = []Operator{Eq, Lt, Lte, Gt, Gte, Ne, In, NotIn, Like}

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case Eq, Lt, Lte, Gt, Gte, Ne, In, NotIn, Like:
		return true
	}
	return false
}

// TakesList reports whether op expects a list operand.
func (op Operator) TakesList() bool {
	return op == In || op == NotIn
}

// ParseOperator resolves a criteria modifier token (case-insensitive).
func ParseOperator(token string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(token)))
	if op == "==" {
		op = Eq
	}
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperator, token)
	}
	return op, nil
}

// LogicalOp distinguishes conjunction from disjunction.
type LogicalOp uint8

// Logical operators
const (
	OpAnd LogicalOp = iota
	OpOr
)

// String returns "and" or "or".
func (op LogicalOp) String() string {
	if op == OpOr {
		return "or"
	}
	return "and"
}

// Predicate is a node of a predicate tree: either a *Logical or a *Comparison.
// A nil Predicate places no constraint on the result.
type Predicate interface {
	isPredicate()
	String() string
}

// Logical combines clauses with and/or. Clause order is preserved.
type Logical struct {
	op      LogicalOp
	clauses []Predicate
}

func (*Logical) isPredicate() {}

// Op returns the combinator.
func (l *Logical) Op() LogicalOp { return l.op }

// Clauses returns a copy of the combined clauses.
func (l *Logical) Clauses() []Predicate {
	out := make([]Predicate, len(l.clauses))
	copy(out, l.clauses)
	return out
}

// String renders the node for logs.
func (l *Logical) String() string {
	parts := make([]string, len(l.clauses))
	for i, c := range l.clauses {
		parts[i] = c.String()
	}
	return l.op.String() + "(" + strings.Join(parts, ", ") + ")"
}

// And builds a conjunction. It fails when no clause is given or a clause is nil.
func And(clauses ...Predicate) (Predicate, error) {
	return newLogical(OpAnd, clauses)
}

// Or builds a disjunction. It fails when no clause is given or a clause is nil.
func Or(clauses ...Predicate) (Predicate, error) {
	return newLogical(OpOr, clauses)
}

// MustAnd is like And but panics on error.
func MustAnd(clauses ...Predicate) Predicate {
	p, err := And(clauses...)
	if err != nil {
		panic(err)
	}
	return p
}

// MustOr is like Or but panics on error.
func MustOr(clauses ...Predicate) Predicate {
	p, err := Or(clauses...)
	if err != nil {
		panic(err)
	}
	return p
}

func newLogical(op LogicalOp, clauses []Predicate) (Predicate, error) {
	if len(clauses) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyLogical)
	}
	out := make([]Predicate, len(clauses))
	for i, c := range clauses {
		if c == nil {
			return nil, fmt.Errorf("%s clause %d is nil: %w", op, i, ErrUnknownPredicate)
		}
		out[i] = c
	}
	return &Logical{op: op, clauses: out}, nil
}

// Comparison is a predicate leaf comparing a physical field against an operand.
type Comparison struct {
	field   string
	op      Operator
	operand Value
}

func (*Comparison) isPredicate() {}

// Field returns the physical field name.
func (c *Comparison) Field() string { return c.field }

// Op returns the comparison operator.
func (c *Comparison) Op() Operator { return c.op }

// Operand returns the operand.
func (c *Comparison) Operand() Value { return c.operand }

// String renders the node for logs.
func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.field, c.op, c.operand)
}

// Compare builds a comparison leaf, enforcing that in/nin carry a list operand
// and every other operator a scalar.
func Compare(field string, op Operator, operand Value) (Predicate, error) {
	if strings.TrimSpace(field) == "" {
		return nil, ErrEmptyField
	}
	if !op.Valid() {
		return nil, fmt.Errorf("field %q: %w: %q", field, ErrUnknownOperator, string(op))
	}
	isList := operand.Kind() == KindList
	if op.TakesList() != isList {
		return nil, fmt.Errorf("field %q operator %q with %s operand: %w", field, op, operand.Kind(), ErrOperandShape)
	}
	if op == Like && operand.Kind() != KindString {
		return nil, fmt.Errorf("field %q: like needs a string pattern, got %s: %w", field, operand.Kind(), ErrOperandShape)
	}
	if isList {
		items, _ := operand.AsList()
		for i, item := range items {
			if item.Kind() == KindList {
				return nil, fmt.Errorf("field %q item %d is a nested list: %w", field, i, ErrOperandShape)
			}
		}
	}
	return &Comparison{field: field, op: op, operand: operand}, nil
}

// MustCompare is like Compare but panics on error.
func MustCompare(field string, op Operator, operand Value) Predicate {
	p, err := Compare(field, op, operand)
	if err != nil {
		panic(err)
	}
	return p
}
