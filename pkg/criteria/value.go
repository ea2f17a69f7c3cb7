// Package criteria defines the database-agnostic query description consumed by the
// MongoDB compiler: operand values, predicate trees, select/sort/page directives and
// the per-entity model metadata that tells the compiler which fields hold identifiers.
package criteria

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind identifies the variant held by a Value.
type Kind uint8

// Value kinds
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObjectID
	KindBinary
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindObjectID:
		return "objectid"
	case KindBinary:
		return "binary"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an operand or write value. The zero Value is Null.
// Values are immutable: constructors and accessors copy slices.
type Value struct {
	kind    Kind
	b       bool
	integer bool
	i       int64
	f       float64
	s       string
	list    []Value
	oid     primitive.ObjectID
	bin     []byte
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integral number.
func Int(i int64) Value { return Value{kind: KindNumber, integer: true, i: i} }

// Float returns a floating point number.
func Float(f float64) Value { return Value{kind: KindNumber, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a list value holding a copy of items.
func List(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

// ObjectID returns a value that already holds a native identifier.
func ObjectID(id primitive.ObjectID) Value { return Value{kind: KindObjectID, oid: id} }

// Bytes returns a binary value holding a copy of b.
func Bytes(b []byte) Value {
	out := make([]byte, len(b))
	copy(out, b)
	return Value{kind: KindBinary, bin: out}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer held by v. Floats are not converted.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindNumber && v.integer }

// AsFloat returns the number held by v as a float64.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if v.integer {
		return float64(v.i), true
	}
	return v.f, true
}

// IsInteger reports whether v is a number created by Int.
func (v Value) IsInteger() bool { return v.kind == KindNumber && v.integer }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns a copy of the items held by v.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, true
}

// Len returns the number of list items, or 0 for non-list values.
func (v Value) Len() int { return len(v.list) }

// AsObjectID returns the native identifier held by v.
func (v Value) AsObjectID() (primitive.ObjectID, bool) { return v.oid, v.kind == KindObjectID }

// AsBytes returns a copy of the bytes held by v.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBinary {
		return nil, false
	}
	out := make([]byte, len(v.bin))
	copy(out, v.bin)
	return out, true
}

// Equal reports structural equality. Numbers compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if v.integer && o.integer {
			return v.i == o.i
		}
		a, _ := v.AsFloat()
		b, _ := o.AsFloat()
		return a == b
	case KindString:
		return v.s == o.s
	case KindObjectID:
		return v.oid == o.oid
	case KindBinary:
		return string(v.bin) == string(o.bin)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v for error messages and logs.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		if v.integer {
			return strconv.FormatInt(v.i, 10)
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindObjectID:
		return "ObjectId(" + strconv.Quote(v.oid.Hex()) + ")"
	case KindBinary:
		return fmt.Sprintf("Binary(%d bytes)", len(v.bin))
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return v.kind.String()
}

// ValueOf converts a decoded Go value (from YAML, JSON or plain Go code) into a Value.
// Integral floats decoded from JSON stay floats; use Int for integer semantics.
func ValueOf(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return unsignedValue(uint64(t))
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return unsignedValue(t)
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case primitive.ObjectID:
		return ObjectID(t), nil
	case []Value:
		return List(t...), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Value{kind: KindList, list: items}, nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, raw := range t {
			item, err := ValueOf(raw)
			if err != nil {
				return Value{}, fmt.Errorf("list item %d: %w", i, err)
			}
			items[i] = item
		}
		return Value{kind: KindList, list: items}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

func unsignedValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("unsigned value %d overflows int64", u)
	}
	return Int(int64(u)), nil
}
