package mongodb

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.mongodb.org/mongo-driver/bson"
)

// Property 3: Close prevents subsequent operations
func TestProperty_ClosePreventsOperations(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 20
	properties := gopter.NewProperties(params)

	properties.Property("closed adapter always fails ping", prop.ForAll(
		func() bool {
			a := &Adapter{closed: true}
			return a.Ping(context.Background()) != nil
		},
	))

	properties.Property("closed adapter rejects reads on any collection", prop.ForAll(
		func(collection string) bool {
			a := &Adapter{closed: true}
			_, err := a.Find(context.Background(), collection, bson.D{}, nil)
			_, cerr := a.CountDocuments(context.Background(), collection, bson.D{})
			return errors.Is(err, ErrClosed) && errors.Is(cerr, ErrClosed)
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
