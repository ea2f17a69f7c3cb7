package mongodb

import (
	"encoding/hex"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/nimburion/mongocriteria/pkg/criteria"
)

func genIdentifierHex() gopter.Gen {
	return gen.SliceOfN(12, gen.UInt8()).Map(func(b []uint8) string {
		return hex.EncodeToString(b)
	})
}

// Property: every canonical 24-hex-digit string survives normalize/format.
func TestProperty_IdentifierRoundTrip(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("format(normalize(s)) == s", prop.ForAll(
		func(s string) bool {
			oid, ok, err := NormalizeIdentifier(criteria.String(s))
			return err == nil && ok && FormatIdentifier(oid) == s
		},
		genIdentifierHex(),
	))

	properties.TestingRun(t)
}

// Property: tolerant filters keep non-identifiers, strict writes reject them.
func TestProperty_TolerantStrictDivergence(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	model := criteria.MustModel("pet", "id",
		criteria.Attribute{Name: "id", Column: "_id"},
		criteria.Attribute{Name: "owner", ForeignKey: true},
	)

	properties.Property("non-identifier strings diverge between filter and write", prop.ForAll(
		func(s string) bool {
			if IsIdentifierShaped(s) {
				return true
			}
			filter, err := Compile(criteria.MustCompare("owner", criteria.Eq, criteria.String(s)), model.IsIdentifierColumn)
			if err != nil || len(filter) != 1 || filter[0].Value != s {
				return false
			}
			_, err = ReifyForWrite(map[string]criteria.Value{"owner": criteria.String(s)}, model)
			return err != nil
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// Property: compiling twice yields identical filters and leaves the tree unchanged.
func TestProperty_CompileIdempotent(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("compile is pure", prop.ForAll(
		func(age int64, status string, id string) bool {
			p := criteria.MustAnd(
				criteria.MustCompare("age", criteria.Gte, criteria.Int(age)),
				criteria.MustOr(
					criteria.MustCompare("status", criteria.Eq, criteria.String(status)),
					criteria.MustCompare("_id", criteria.In, criteria.List(criteria.String(id), criteria.String(status))),
				),
			)
			before := p.String()
			isID := func(f string) bool { return f == "_id" }
			a, errA := Compile(p, isID)
			b, errB := Compile(p, isID)
			return errA == nil && errB == nil && reflect.DeepEqual(a, b) && p.String() == before
		},
		gen.Int64(),
		gen.AlphaString(),
		genIdentifierHex(),
	))

	properties.TestingRun(t)
}
