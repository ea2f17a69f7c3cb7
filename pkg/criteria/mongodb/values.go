package mongodb

import (
	"github.com/nimburion/mongocriteria/pkg/criteria"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// binaryGeneric is the BSON generic binary subtype.
const binaryGeneric byte = 0x00

// nativeValue converts a criteria value into its BSON-ready Go form.
func nativeValue(v criteria.Value) interface{} {
	switch v.Kind() {
	case criteria.KindNull:
		return nil
	case criteria.KindBool:
		b, _ := v.AsBool()
		return b
	case criteria.KindNumber:
		if i, ok := v.AsInt(); ok {
			return i
		}
		f, _ := v.AsFloat()
		return f
	case criteria.KindString:
		s, _ := v.AsString()
		return s
	case criteria.KindObjectID:
		oid, _ := v.AsObjectID()
		return oid
	case criteria.KindBinary:
		data, _ := v.AsBytes()
		return primitive.Binary{Subtype: binaryGeneric, Data: data}
	case criteria.KindList:
		items, _ := v.AsList()
		out := make(bson.A, len(items))
		for i, item := range items {
			out[i] = nativeValue(item)
		}
		return out
	}
	return nil
}
