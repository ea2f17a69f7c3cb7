package document

import (
	"context"
	"fmt"

	criteriamongo "github.com/nimburion/mongocriteria/pkg/criteria/mongodb"
	mongostore "github.com/nimburion/mongocriteria/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Executor runs compiled filters and reified documents against a collection.
// Write errors must be returned as the driver produced them.
type Executor interface {
	Find(ctx context.Context, collection string, filter bson.D, directives criteriamongo.Directives) ([]bson.M, error)
	Count(ctx context.Context, collection string, filter bson.D) (int64, error)
	InsertOne(ctx context.Context, collection string, doc bson.M) (interface{}, error)
	InsertMany(ctx context.Context, collection string, docs []bson.M) ([]interface{}, error)
	UpdateMany(ctx context.Context, collection string, filter bson.D, set bson.M) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter bson.D) (int64, error)
}

// MongoDBExecutor adapts the store/mongodb adapter to the Executor contract.
type MongoDBExecutor struct {
	adapter *mongostore.Adapter
}

// NewMongoDBExecutor creates a new MongoDBExecutor instance.
func NewMongoDBExecutor(adapter *mongostore.Adapter) (*MongoDBExecutor, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	return &MongoDBExecutor{adapter: adapter}, nil
}

// Find returns the documents matching filter, shaped by directives.
func (e *MongoDBExecutor) Find(ctx context.Context, collection string, filter bson.D, directives criteriamongo.Directives) ([]bson.M, error) {
	return e.adapter.Find(ctx, collection, filter, findOptions(directives))
}

// Count counts the documents matching filter.
func (e *MongoDBExecutor) Count(ctx context.Context, collection string, filter bson.D) (int64, error) {
	return e.adapter.CountDocuments(ctx, collection, filter)
}

// InsertOne inserts a document into the collection and returns its _id.
func (e *MongoDBExecutor) InsertOne(ctx context.Context, collection string, doc bson.M) (interface{}, error) {
	result, err := e.adapter.InsertOne(ctx, collection, doc)
	if err != nil {
		return nil, err
	}
	return result.InsertedID, nil
}

// InsertMany inserts docs in order and returns their _id values.
func (e *MongoDBExecutor) InsertMany(ctx context.Context, collection string, docs []bson.M) ([]interface{}, error) {
	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		batch[i] = doc
	}
	result, err := e.adapter.InsertMany(ctx, collection, batch)
	if err != nil {
		return nil, err
	}
	return result.InsertedIDs, nil
}

// UpdateMany sets the given fields on every matching document.
func (e *MongoDBExecutor) UpdateMany(ctx context.Context, collection string, filter bson.D, set bson.M) (int64, error) {
	result, err := e.adapter.UpdateMany(ctx, collection, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// DeleteMany deletes every matching document.
func (e *MongoDBExecutor) DeleteMany(ctx context.Context, collection string, filter bson.D) (int64, error) {
	result, err := e.adapter.DeleteMany(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func findOptions(d criteriamongo.Directives) *options.FindOptions {
	opts := options.Find()
	if d.Projection != nil {
		opts.SetProjection(d.Projection)
	}
	if d.Sort != nil {
		opts.SetSort(d.Sort)
	}
	if d.Limit != nil {
		opts.SetLimit(*d.Limit)
	}
	if d.Skip != nil {
		opts.SetSkip(*d.Skip)
	}
	return opts
}
