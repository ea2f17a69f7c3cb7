package mongodb

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nimburion/mongocriteria/pkg/criteria"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func petModel() *criteria.Model {
	return criteria.MustModel("pet", "id",
		criteria.Attribute{Name: "id", Column: "_id"},
		criteria.Attribute{Name: "name"},
		criteria.Attribute{Name: "owner", Column: "owner_id", ForeignKey: true},
		criteria.Attribute{Name: "vet", ForeignKey: true},
		criteria.Attribute{Name: "avatar", Binary: true},
	)
}

func TestReifyForWrite(t *testing.T) {
	oid := mustOID(t, validHex)
	values := map[string]criteria.Value{
		"_id":      criteria.Null(),
		"name":     criteria.String("rex"),
		"owner_id": criteria.String(validHex),
		"vet":      criteria.Null(),
		"avatar":   criteria.Bytes([]byte{1, 2}),
		"tags":     criteria.List(criteria.String("a"), criteria.Int(2)),
	}

	got, err := ReifyForWrite(values, petModel())
	if err != nil {
		t.Fatalf("ReifyForWrite() error = %v", err)
	}
	want := bson.M{
		"name":     "rex",
		"owner_id": oid,
		"vet":      nil,
		"avatar":   primitive.Binary{Subtype: 0x00, Data: []byte{1, 2}},
		"tags":     bson.A{"a", int64(2)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReifyForWrite() =\n%#v\nwant\n%#v", got, want)
	}
	if _, still := values["_id"]; !still {
		t.Fatal("caller's map was mutated")
	}
	if values["owner_id"].Kind() != criteria.KindString {
		t.Fatal("caller's value was replaced")
	}
}

func TestReifyForWrite_PrimaryKey(t *testing.T) {
	oid := mustOID(t, validHex)

	got, err := ReifyForWrite(map[string]criteria.Value{"_id": criteria.String(validHex)}, petModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["_id"] != oid {
		t.Fatalf("_id = %#v, want %s", got["_id"], oid.Hex())
	}

	got, err = ReifyForWrite(map[string]criteria.Value{"_id": criteria.ObjectID(oid)}, petModel())
	if err != nil || got["_id"] != oid {
		t.Fatalf("native id should pass through, got %#v, %v", got["_id"], err)
	}
}

func TestReifyForWrite_RejectsInvalidIdentifiers(t *testing.T) {
	tests := []struct {
		name      string
		values    map[string]criteria.Value
		attribute string
	}{
		{name: "pk string", values: map[string]criteria.Value{"_id": criteria.String("abc")}, attribute: "id"},
		{name: "pk number", values: map[string]criteria.Value{"_id": criteria.Int(12)}, attribute: "id"},
		{name: "fk string", values: map[string]criteria.Value{"owner_id": criteria.String("not-an-id")}, attribute: "owner"},
		{name: "fk uppercase", values: map[string]criteria.Value{"vet": criteria.String("5F1D7F3E9B1E8A0012345678")}, attribute: "vet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReifyForWrite(tt.values, petModel())
			var ie *criteria.InvalidIdentifierError
			if !errors.As(err, &ie) {
				t.Fatalf("expected InvalidIdentifierError, got %v", err)
			}
			if ie.Attribute != tt.attribute {
				t.Fatalf("attribute = %q, want %q", ie.Attribute, tt.attribute)
			}
		})
	}

	if _, err := ReifyForWrite(nil, nil); !errors.Is(err, criteria.ErrInvalidModel) {
		t.Fatalf("nil model must be rejected, got %v", err)
	}
}

func TestReifyEachForWrite(t *testing.T) {
	records := []map[string]criteria.Value{
		{"name": criteria.String("a")},
		{"owner_id": criteria.String("bad")},
	}
	_, err := ReifyEachForWrite(records, petModel())
	var ie *criteria.InvalidIdentifierError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidIdentifierError, got %v", err)
	}
	if got := err.Error(); got[:8] != "record 1" {
		t.Fatalf("error should name the record index: %s", got)
	}

	docs, err := ReifyEachForWrite(records[:1], petModel())
	if err != nil || len(docs) != 1 || docs[0]["name"] != "a" {
		t.Fatalf("unexpected result %v, %v", docs, err)
	}
}

func TestReifyFromStorage(t *testing.T) {
	oid := mustOID(t, validHex)
	doc := bson.M{
		"_id":      oid,
		"name":     "rex",
		"owner_id": "legacy-owner",
		"vet":      oid,
		"avatar":   primitive.Binary{Subtype: 0x00, Data: []byte{9}},
		"other":    oid,
	}

	got := ReifyFromStorage(doc, petModel())
	want := map[string]interface{}{
		"_id":      validHex,
		"name":     "rex",
		"owner_id": "legacy-owner",
		"vet":      validHex,
		"avatar":   []byte{9},
		"other":    oid,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReifyFromStorage() =\n%#v\nwant\n%#v", got, want)
	}
	if doc["_id"] != oid {
		t.Fatal("input document was mutated")
	}

	all := ReifyEachFromStorage([]bson.M{doc, {"_id": "x"}}, petModel())
	if len(all) != 2 || all[1]["_id"] != "x" {
		t.Fatalf("ReifyEachFromStorage() = %v", all)
	}
}
