// Package mongodb executes compiled criteria against a MongoDB database.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimburion/mongocriteria/pkg/observability/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ErrClosed is returned by every operation on a closed adapter.
var ErrClosed = errors.New("mongodb adapter is closed")

// Adapter provides MongoDB connectivity.
type Adapter struct {
	client   *mongo.Client
	database string
	logger   logger.Logger
	timeout  time.Duration
	mu       sync.RWMutex
	closed   bool
}

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("mongodb URL is required")
	}
	if c.Database == "" {
		return fmt.Errorf("mongodb database is required")
	}
	return nil
}

// Cosa fa: inizializza un adapter MongoDB e verifica connettività via ping.
// Cosa NON fa: non crea indici o collezioni automaticamente.
// Esempio minimo: adapter, err := mongodb.NewAdapter(cfg, log)
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	return &Adapter{
		client:   client,
		database: cfg.Database,
		logger:   log,
		timeout:  cfg.OperationTimeout,
	}, nil
}

// DatabaseName returns the configured database name.
func (a *Adapter) DatabaseName() string {
	return a.database
}

func (a *Adapter) collection(name string) *mongo.Collection {
	return a.client.Database(a.database).Collection(name)
}

func (a *Adapter) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

func (a *Adapter) Ping(ctx context.Context) error {
	if a.isClosed() {
		return ErrClosed
	}
	return a.client.Ping(ctx, readpref.Primary())
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

// Cosa fa: esegue una find e decodifica tutti i documenti del cursore.
// Cosa NON fa: non interpreta limit 0; il chiamante deve evitarlo se vuole zero risultati.
// Esempio minimo: docs, err := adapter.Find(ctx, "users", filter, options.Find().SetLimit(10))
func (a *Adapter) Find(ctx context.Context, collection string, filter interface{}, opts *options.FindOptions) ([]bson.M, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	if opts == nil {
		opts = options.Find()
	}
	cursor, err := a.collection(collection).Find(opCtx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	docs := []bson.M{}
	if err := cursor.All(opCtx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s documents: %w", collection, err)
	}
	return docs, nil
}

func (a *Adapter) CountDocuments(ctx context.Context, collection string, filter interface{}) (int64, error) {
	if a.isClosed() {
		return 0, ErrClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	n, err := a.collection(collection).CountDocuments(opCtx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// Cosa fa: inserisce un documento nella collection target.
// Cosa NON fa: non valida lo schema del documento.
// Esempio minimo: _, err := adapter.InsertOne(ctx, "users", doc)
//
// Write errors are returned unwrapped so duplicate-key detection sees the driver types.
func (a *Adapter) InsertOne(ctx context.Context, collection string, doc interface{}) (*mongo.InsertOneResult, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.collection(collection).InsertOne(opCtx, doc)
}

// InsertMany inserts docs in order and stops at the first failure.
func (a *Adapter) InsertMany(ctx context.Context, collection string, docs []interface{}) (*mongo.InsertManyResult, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.collection(collection).InsertMany(opCtx, docs, options.InsertMany().SetOrdered(true))
}

// UpdateMany applies update to every document matching filter.
func (a *Adapter) UpdateMany(ctx context.Context, collection string, filter, update interface{}) (*mongo.UpdateResult, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.collection(collection).UpdateMany(opCtx, filter, update)
}

func (a *Adapter) DeleteMany(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.collection(collection).DeleteMany(opCtx, filter)
}

// EnsureIndex creates an index over keys. Unique indexes back duplicate-key detection.
func (a *Adapter) EnsureIndex(ctx context.Context, collection string, keys bson.D, unique bool) (string, error) {
	if a.isClosed() {
		return "", ErrClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	model := mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(unique)}
	name, err := a.collection(collection).Indexes().CreateOne(opCtx, model)
	if err != nil {
		return "", fmt.Errorf("failed to create index on %s: %w", collection, err)
	}
	return name, nil
}

// Drop removes the collection and its indexes.
func (a *Adapter) Drop(ctx context.Context, collection string) error {
	if a.isClosed() {
		return ErrClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.collection(collection).Drop(opCtx)
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
