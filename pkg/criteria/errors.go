package criteria

import (
	"errors"
	"fmt"
)

// Contract violations. These are returned, wrapped with the offending field or value,
// when a caller hands in a structurally invalid query description.
var (
	// ErrEmptyLogical is returned when an and/or combinator has no clauses.
	ErrEmptyLogical = errors.New("logical combinator requires at least one clause")

	// ErrUnknownOperator is returned for operator tokens outside the supported set.
	ErrUnknownOperator = errors.New("unknown comparison operator")

	// ErrOperandShape is returned when an operand does not fit its operator
	// (in/nin need a list, every other operator needs a scalar).
	ErrOperandShape = errors.New("operand shape does not match operator")

	// ErrEmptyField is returned when a comparison names no field.
	ErrEmptyField = errors.New("comparison field is required")

	// ErrInvalidDirection is returned for sort directions other than asc/desc.
	ErrInvalidDirection = errors.New("invalid sort direction")

	// ErrInvalidPage is returned for negative skip or limit values.
	ErrInvalidPage = errors.New("invalid limit or skip")

	// ErrUnknownPredicate is returned when a predicate node is not one of the known variants.
	ErrUnknownPredicate = errors.New("unknown predicate node")

	// ErrInvalidModel is returned when model metadata is inconsistent.
	ErrInvalidModel = errors.New("invalid model metadata")
)

// InvalidIdentifierError is returned on write paths when a primary or foreign key
// value cannot be used as a database identifier.
type InvalidIdentifierError struct {
	Attribute string
	Value     Value
	Err       error
}

// Error implements the error interface.
func (e *InvalidIdentifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid identifier for attribute %q: %s: %v", e.Attribute, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid identifier for attribute %q: %s is not a valid object id", e.Attribute, e.Value)
}

// Unwrap returns the underlying cause, if any.
func (e *InvalidIdentifierError) Unwrap() error {
	return e.Err
}
