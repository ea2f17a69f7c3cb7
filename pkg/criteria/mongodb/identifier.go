// Package mongodb compiles criteria query descriptions into MongoDB's filter value
// model, reifies values crossing the storage boundary, and classifies native write errors.
//
// Every function in this package is a pure transform: no I/O, no shared state.
// Inputs are never mutated.
package mongodb

import (
	"fmt"
	"regexp"

	"github.com/nimburion/mongocriteria/pkg/criteria"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// identifierShape is the canonical textual form of an ObjectID, as emitted by ObjectID.Hex.
var identifierShape = regexp.MustCompile(`^[0-9a-f]{24}$`)

// objectIDFromHex is the identifier codec. Tests replace it to exercise the round-trip fault.
var objectIDFromHex = primitive.ObjectIDFromHex

// ConsistencyError reports that a well-formed identifier string did not survive a
// decode/encode round trip. It indicates a bug in the identifier codec or corrupted
// state, never bad user input.
type ConsistencyError struct {
	Input  string
	Output string
	Err    error
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identifier codec consistency violation: %q is well-formed but failed to decode (%v); this is a codec bug or corrupted state, not invalid input", e.Input, e.Err)
	}
	return fmt.Sprintf("identifier codec consistency violation: %q round-tripped to %q; this is a codec bug or corrupted state, not invalid input", e.Input, e.Output)
}

// Unwrap returns the codec error, if any.
func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// IsIdentifierShaped reports whether s has the canonical 24-hex-digit ObjectID shape.
func IsIdentifierShaped(s string) bool {
	return identifierShape.MatchString(s)
}

// NormalizeIdentifier decides whether v is a database identifier.
//
// Native identifiers are returned unchanged. Canonically shaped strings are decoded
// and re-encoded; a mismatch yields a *ConsistencyError. For every other value ok is
// false and err is nil: the caller decides whether that is acceptable.
func NormalizeIdentifier(v criteria.Value) (id primitive.ObjectID, ok bool, err error) {
	if oid, isID := v.AsObjectID(); isID {
		return oid, true, nil
	}
	s, isString := v.AsString()
	if !isString || !IsIdentifierShaped(s) {
		return primitive.NilObjectID, false, nil
	}
	oid, decodeErr := objectIDFromHex(s)
	if decodeErr != nil {
		return primitive.NilObjectID, false, &ConsistencyError{Input: s, Err: decodeErr}
	}
	if out := FormatIdentifier(oid); out != s {
		return primitive.NilObjectID, false, &ConsistencyError{Input: s, Output: out}
	}
	return oid, true, nil
}

// NormalizeStrict is the write-path variant of NormalizeIdentifier: anything that is
// not an identifier becomes a *criteria.InvalidIdentifierError naming attribute.
func NormalizeStrict(attribute string, v criteria.Value) (primitive.ObjectID, error) {
	oid, ok, err := NormalizeIdentifier(v)
	if err != nil {
		return primitive.NilObjectID, &criteria.InvalidIdentifierError{Attribute: attribute, Value: v, Err: err}
	}
	if !ok {
		return primitive.NilObjectID, &criteria.InvalidIdentifierError{Attribute: attribute, Value: v}
	}
	return oid, nil
}

// FormatIdentifier is the inverse of NormalizeIdentifier for native identifiers.
func FormatIdentifier(id primitive.ObjectID) string {
	return id.Hex()
}
