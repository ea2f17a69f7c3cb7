package mongodb

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// KindUniquenessViolation is the footprint kind of duplicate-key write errors.
const KindUniquenessViolation = "uniqueness_violation"

// Server error codes reporting a duplicate key.
var duplicateKeyCodes = map[int]bool{
	11000: true,
	11001: true,
	12582: true,
}

// codeDuplicateKeyInUpdate is returned by older servers for duplicate keys raised by
// update operators; it only means a duplicate when the message carries E11000.
const codeDuplicateKeyInUpdate = 16460

var dupKeyPattern = regexp.MustCompile(`dup key: \{\s*(?:[^:{}]*:\s*)?(.+?)\s*\}\s*$`)

var objectIDLiteral = regexp.MustCompile(`^ObjectId\(['"]([0-9a-f]{24})['"]\)$`)

// Footprint describes the likely cause of a classified write error.
// CandidateFields holds at most one field: the inference never guesses between
// equally plausible fields.
type Footprint struct {
	Kind            string
	CandidateFields []string
}

// UniquenessError augments a native duplicate-key error with a footprint.
// The native error stays reachable through Unwrap.
type UniquenessError struct {
	Err       error
	Footprint Footprint
}

// Error implements the error interface.
func (e *UniquenessError) Error() string {
	if len(e.Footprint.CandidateFields) == 1 {
		return fmt.Sprintf("uniqueness violation on %q: %v", e.Footprint.CandidateFields[0], e.Err)
	}
	return fmt.Sprintf("uniqueness violation: %v", e.Err)
}

// Unwrap returns the native error.
func (e *UniquenessError) Unwrap() error {
	return e.Err
}

// IsUniquenessViolation reports whether err carries a uniqueness footprint.
func IsUniquenessViolation(err error) (*Footprint, bool) {
	var ue *UniquenessError
	if errors.As(err, &ue) {
		return &ue.Footprint, true
	}
	return nil, false
}

// ClassifyWriteError inspects a native write error. Duplicate-key errors come back as
// *UniquenessError; when exactly one attempted field holds the offending value that
// field is named as the candidate. Every other error, nil included, is returned as is.
func ClassifyWriteError(err error, attempted bson.M) error {
	if err == nil {
		return nil
	}
	var ue *UniquenessError
	if errors.As(err, &ue) {
		return err
	}
	dup, found := findDuplicateKey(err)
	if !found {
		return err
	}
	fp := Footprint{Kind: KindUniquenessViolation, CandidateFields: []string{}}
	if offending, ok := offendingValue(dup); ok {
		if field, ok := soleMatch(attempted, offending); ok {
			fp.CandidateFields = []string{field}
		}
	}
	return &UniquenessError{Err: err, Footprint: fp}
}

// duplicateKey is the part of a native error describing a duplicate key.
type duplicateKey struct {
	message string
	raw     bson.Raw
}

func findDuplicateKey(err error) (duplicateKey, bool) {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if isDuplicateCode(e.Code, e.Message) {
				return duplicateKey{message: e.Message, raw: e.Raw}, true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if isDuplicateCode(e.Code, e.Message) {
				return duplicateKey{message: e.Message, raw: e.Raw}, true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && isDuplicateCode(int(ce.Code), ce.Message) {
		return duplicateKey{message: ce.Message, raw: ce.Raw}, true
	}
	return duplicateKey{}, false
}

func isDuplicateCode(code int, message string) bool {
	if duplicateKeyCodes[code] {
		return true
	}
	return code == codeDuplicateKeyInUpdate && strings.Contains(message, "E11000")
}

// offendingValue reads the duplicated value from the server's keyValue document,
// falling back to the "dup key: { ... }" fragment of the message.
func offendingValue(dup duplicateKey) (interface{}, bool) {
	if len(dup.raw) > 0 {
		if kv, err := dup.raw.LookupErr("keyValue"); err == nil {
			if doc, ok := kv.DocumentOK(); ok {
				if elems, err := doc.Elements(); err == nil && len(elems) == 1 {
					return rawToComparable(elems[0].Value())
				}
				return nil, false
			}
		}
	}
	m := dupKeyPattern.FindStringSubmatch(dup.message)
	if m == nil {
		return nil, false
	}
	return parseKeyLiteral(m[1])
}

func rawToComparable(v bson.RawValue) (interface{}, bool) {
	switch v.Type {
	case bson.TypeString:
		return v.StringValue(), true
	case bson.TypeObjectID:
		return v.ObjectID(), true
	case bson.TypeInt32:
		return int64(v.Int32()), true
	case bson.TypeInt64:
		return v.Int64(), true
	case bson.TypeDouble:
		return v.Double(), true
	case bson.TypeBoolean:
		return v.Boolean(), true
	case bson.TypeNull:
		return nil, true
	}
	return nil, false
}

func parseKeyLiteral(lit string) (interface{}, bool) {
	lit = strings.TrimSpace(lit)
	if strings.Contains(lit, ", ") && !strings.HasPrefix(lit, `"`) {
		// compound key
		return nil, false
	}
	if strings.HasPrefix(lit, `"`) {
		s, err := strconv.Unquote(lit)
		if err != nil {
			return nil, false
		}
		return s, true
	}
	if m := objectIDLiteral.FindStringSubmatch(lit); m != nil {
		oid, err := primitive.ObjectIDFromHex(m[1])
		if err != nil {
			return nil, false
		}
		return oid, true
	}
	switch lit {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null":
		return nil, true
	}
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		return f, true
	}
	return nil, false
}

// soleMatch returns the only attempted field whose value equals offending.
func soleMatch(attempted bson.M, offending interface{}) (string, bool) {
	fields := make([]string, 0, len(attempted))
	for field := range attempted {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	match := ""
	count := 0
	for _, field := range fields {
		if sameValue(attempted[field], offending) {
			match = field
			count++
		}
	}
	return match, count == 1
}

func sameValue(attempted, offending interface{}) bool {
	if offending == nil {
		return attempted == nil
	}
	if a, ok := toNumber(attempted); ok {
		b, ok := toNumber(offending)
		return ok && a.equal(b)
	}
	switch o := offending.(type) {
	case string:
		switch a := attempted.(type) {
		case string:
			return a == o
		case primitive.ObjectID:
			return FormatIdentifier(a) == o
		}
	case primitive.ObjectID:
		switch a := attempted.(type) {
		case primitive.ObjectID:
			return a == o
		case string:
			return a == FormatIdentifier(o)
		}
	case bool:
		a, ok := attempted.(bool)
		return ok && a == o
	}
	return false
}

// number keeps integers exact; only doubles go through float64.
type number struct {
	integral bool
	i        int64
	f        float64
}

func (n number) equal(o number) bool {
	if n.integral && o.integral {
		return n.i == o.i
	}
	if n.integral {
		return exactFloat(n.i, o.f)
	}
	if o.integral {
		return exactFloat(o.i, n.f)
	}
	return n.f == o.f
}

// exactFloat reports whether f holds exactly the integer i.
func exactFloat(i int64, f float64) bool {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return false
	}
	return int64(f) == i
}

func toNumber(v interface{}) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{integral: true, i: int64(n)}, true
	case int32:
		return number{integral: true, i: int64(n)}, true
	case int64:
		return number{integral: true, i: n}, true
	case float32:
		return number{f: float64(n)}, true
	case float64:
		if math.IsNaN(n) {
			return number{}, false
		}
		return number{f: n}, true
	}
	return number{}, false
}
