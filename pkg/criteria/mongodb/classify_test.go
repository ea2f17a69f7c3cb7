package mongodb

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func keyValueRaw(t *testing.T, key bson.D) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(bson.D{{Key: "keyValue", Value: key}})
	if err != nil {
		t.Fatalf("marshal keyValue: %v", err)
	}
	return raw
}

func duplicateWrite(code int, message string, raw bson.Raw) error {
	return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: code, Message: message, Raw: raw}}}
}

func TestClassifyWriteError_CandidateInference(t *testing.T) {
	tests := []struct {
		name      string
		key       interface{}
		attempted bson.M
		want      []string
	}{
		{name: "sole match", key: "X", attempted: bson.M{"a": "X", "b": "Y"}, want: []string{"a"}},
		{name: "ambiguous match", key: "X", attempted: bson.M{"a": "X", "b": "X"}, want: []string{}},
		{name: "no match", key: "X", attempted: bson.M{"a": "Y"}, want: []string{}},
		{name: "no attempted values", key: "X", attempted: nil, want: []string{}},
		{name: "large integers are not rounded together", key: int64(1) << 53, attempted: bson.M{"a": int64(1)<<53 + 1, "b": 1}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := keyValueRaw(t, bson.D{{Key: "email", Value: tt.key}})
			native := duplicateWrite(11000, "E11000 duplicate key error collection: db.users index: email_1", raw)
			err := ClassifyWriteError(native, tt.attempted)
			fp, ok := IsUniquenessViolation(err)
			if !ok {
				t.Fatalf("expected uniqueness violation, got %v", err)
			}
			if fp.Kind != KindUniquenessViolation {
				t.Fatalf("kind = %q", fp.Kind)
			}
			if !reflect.DeepEqual(fp.CandidateFields, tt.want) {
				t.Fatalf("candidates = %#v, want %#v", fp.CandidateFields, tt.want)
			}
			var we mongo.WriteException
			if !errors.As(err, &we) {
				t.Fatal("native error must stay reachable")
			}
		})
	}
}

func TestClassifyWriteError_NumericKeys(t *testing.T) {
	const big = int64(1) << 53

	tests := []struct {
		name      string
		key       interface{}
		attempted bson.M
		want      []string
	}{
		{name: "int64 beyond float precision differs", key: big, attempted: bson.M{"a": big + 1, "b": int64(1)}, want: []string{}},
		{name: "int64 beyond float precision equal", key: big + 1, attempted: bson.M{"a": big + 1, "b": big}, want: []string{"a"}},
		{name: "int32 key and int64 value", key: int32(7), attempted: bson.M{"n": int64(7), "m": int64(8)}, want: []string{"n"}},
		{name: "double key and integral value", key: 7.0, attempted: bson.M{"n": int64(7)}, want: []string{"n"}},
		{name: "fractional double never equals integer", key: 7.5, attempted: bson.M{"n": int64(7)}, want: []string{}},
		{name: "double rounding onto large integer", key: float64(big), attempted: bson.M{"n": big + 1}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			native := duplicateWrite(11000, "E11000", keyValueRaw(t, bson.D{{Key: "x", Value: tt.key}}))
			fp, ok := IsUniquenessViolation(ClassifyWriteError(native, tt.attempted))
			if !ok {
				t.Fatal("expected uniqueness violation")
			}
			if !reflect.DeepEqual(fp.CandidateFields, tt.want) {
				t.Fatalf("candidates = %#v, want %#v", fp.CandidateFields, tt.want)
			}
		})
	}

	// message fallback keeps integers exact too
	native := duplicateWrite(11000, `E11000 dup key: { x: 9007199254740992 }`, nil)
	fp, _ := IsUniquenessViolation(ClassifyWriteError(native, bson.M{"a": big + 1, "b": big}))
	if fp == nil || !reflect.DeepEqual(fp.CandidateFields, []string{"b"}) {
		t.Fatalf("message literal candidates = %v", fp)
	}
}

func TestClassifyWriteError_OffendingValueSources(t *testing.T) {
	oid := mustOID(t, validHex)

	tests := []struct {
		name      string
		err       error
		attempted bson.M
		want      []string
	}{
		{
			name:      "numeric key value matches int64",
			err:       duplicateWrite(11000, "E11000", keyValueRaw(t, bson.D{{Key: "n", Value: int32(7)}})),
			attempted: bson.M{"n": int64(7), "m": int64(8)},
			want:      []string{"n"},
		},
		{
			name:      "object id key value",
			err:       duplicateWrite(11000, "E11000", keyValueRaw(t, bson.D{{Key: "_id", Value: oid}})),
			attempted: bson.M{"_id": oid, "name": "rex"},
			want:      []string{"_id"},
		},
		{
			name:      "compound key value is not inferred",
			err:       duplicateWrite(11000, "E11000", keyValueRaw(t, bson.D{{Key: "a", Value: "X"}, {Key: "b", Value: "Y"}})),
			attempted: bson.M{"a": "X", "b": "Y"},
			want:      []string{},
		},
		{
			name:      "message fallback with string",
			err:       duplicateWrite(11000, `E11000 duplicate key error collection: db.users index: email_1 dup key: { email: "x@y.z" }`, nil),
			attempted: bson.M{"email": "x@y.z", "name": "x"},
			want:      []string{"email"},
		},
		{
			name:      "legacy message fallback without field name",
			err:       duplicateWrite(11001, `E11000 duplicate key error index: db.users.$email_1 dup key: { : "x@y.z" }`, nil),
			attempted: bson.M{"email": "x@y.z"},
			want:      []string{"email"},
		},
		{
			name:      "message fallback with object id",
			err:       duplicateWrite(11000, fmt.Sprintf(`E11000 dup key: { _id: ObjectId('%s') }`, validHex), nil),
			attempted: bson.M{"_id": oid},
			want:      []string{"_id"},
		},
		{
			name:      "update duplicate code needs E11000",
			err:       duplicateWrite(16460, `E11000 duplicate key error dup key: { : 3 }`, nil),
			attempted: bson.M{"n": 3},
			want:      []string{"n"},
		},
		{
			name:      "bulk write",
			err:       mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Code: 11000, Raw: keyValueRaw(t, bson.D{{Key: "sku", Value: "A1"}})}}}},
			attempted: bson.M{"sku": "A1"},
			want:      []string{"sku"},
		},
		{
			name:      "command error",
			err:       mongo.CommandError{Code: 11000, Message: `E11000 dup key: { sku: "A1" }`},
			attempted: bson.M{"sku": "A1", "alt": "A2"},
			want:      []string{"sku"},
		},
		{
			name:      "wrapped native error",
			err:       fmt.Errorf("insert failed: %w", duplicateWrite(11000, "E11000", keyValueRaw(t, bson.D{{Key: "sku", Value: "A1"}}))),
			attempted: bson.M{"sku": "A1"},
			want:      []string{"sku"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, ok := IsUniquenessViolation(ClassifyWriteError(tt.err, tt.attempted))
			if !ok {
				t.Fatal("expected uniqueness violation")
			}
			if !reflect.DeepEqual(fp.CandidateFields, tt.want) {
				t.Fatalf("candidates = %#v, want %#v", fp.CandidateFields, tt.want)
			}
		})
	}
}

func TestClassifyWriteError_PassThrough(t *testing.T) {
	if ClassifyWriteError(nil, bson.M{"a": 1}) != nil {
		t.Fatal("nil must stay nil")
	}

	plain := errors.New("connection reset")
	if got := ClassifyWriteError(plain, nil); got != plain {
		t.Fatalf("unrelated error must be returned unchanged, got %v", got)
	}

	other := duplicateWrite(121, "Document failed validation", nil)
	if _, ok := IsUniquenessViolation(ClassifyWriteError(other, nil)); ok {
		t.Fatal("validation failure is not a uniqueness violation")
	}

	noMarker := duplicateWrite(16460, "some other update failure", nil)
	if _, ok := IsUniquenessViolation(ClassifyWriteError(noMarker, nil)); ok {
		t.Fatal("16460 without E11000 is not a uniqueness violation")
	}

	classified := ClassifyWriteError(duplicateWrite(11000, "E11000", nil), nil)
	if again := ClassifyWriteError(classified, bson.M{"a": "X"}); again != classified {
		t.Fatal("classification must be idempotent")
	}
}

func TestUniquenessError_Message(t *testing.T) {
	native := duplicateWrite(11000, "E11000", keyValueRaw(t, bson.D{{Key: "email", Value: "X"}}))

	named := ClassifyWriteError(native, bson.M{"email": "X"})
	if got := named.Error(); got[:len(`uniqueness violation on "email"`)] != `uniqueness violation on "email"` {
		t.Fatalf("unexpected message %q", got)
	}
	anonymous := ClassifyWriteError(native, nil)
	if got := anonymous.Error(); got[:len("uniqueness violation: ")] != "uniqueness violation: " {
		t.Fatalf("unexpected message %q", got)
	}
}
