package mongodb

import (
	"github.com/nimburion/mongocriteria/pkg/criteria"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReifyFromStorage converts a document read from the store into the caller's
// representation. Identifier fields holding ObjectIDs become hex strings, binary
// fields are unwrapped to their bytes, and everything else passes through, including
// legacy identifier values that are not ObjectIDs. doc is not modified.
func ReifyFromStorage(doc bson.M, model *criteria.Model) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for column, raw := range doc {
		out[column] = raw
		if model == nil {
			continue
		}
		if model.IsIdentifierColumn(column) {
			if oid, ok := raw.(primitive.ObjectID); ok {
				out[column] = FormatIdentifier(oid)
			}
			continue
		}
		if model.IsBinaryColumn(column) {
			switch bin := raw.(type) {
			case primitive.Binary:
				out[column] = copyBytes(bin.Data)
			case *primitive.Binary:
				if bin != nil {
					out[column] = copyBytes(bin.Data)
				}
			}
		}
	}
	return out
}

// ReifyEachFromStorage applies ReifyFromStorage to every document.
func ReifyEachFromStorage(docs []bson.M, model *criteria.Model) []map[string]interface{} {
	out := make([]map[string]interface{}, len(docs))
	for i, doc := range docs {
		out[i] = ReifyFromStorage(doc, model)
	}
	return out
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
