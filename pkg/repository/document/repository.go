// Package document binds criteria models to a MongoDB collection: queries are
// compiled to native filters, written values are reified, and write errors are
// classified before they reach the caller.
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimburion/mongocriteria/pkg/criteria"
	criteriamongo "github.com/nimburion/mongocriteria/pkg/criteria/mongodb"
	"github.com/nimburion/mongocriteria/pkg/observability/logger"
	"github.com/nimburion/mongocriteria/pkg/observability/metrics"
	"github.com/nimburion/mongocriteria/pkg/observability/tracing"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/trace"
)

// PrimaryKeyColumn is the only physical primary key MongoDB supports.
const PrimaryKeyColumn = "_id"

// Operation names used in logs and metrics.
const (
	OpFind       = "find"
	OpFindOne    = "find_one"
	OpCount      = "count"
	OpCreate     = "create"
	OpCreateEach = "create_each"
	OpUpdate     = "update"
	OpDestroy    = "destroy"
)

// Write error kinds reported by the criteria_write_errors_total metric.
const (
	KindInvalidIdentifier = "invalid_identifier"
	KindOther             = "other"
)

var (
	// ErrNotFound is returned by FindOne when nothing matches.
	ErrNotFound = errors.New("document not found")
	// ErrEmptyUpdate is returned by Update when there is nothing to set.
	ErrEmptyUpdate = errors.New("update has no values")
	// ErrPrimaryKeyUpdate is returned by Update when the values change the primary key.
	ErrPrimaryKeyUpdate = errors.New("primary key cannot be updated")
)

// Reader provides read operations over a model's collection.
type Reader interface {
	Find(ctx context.Context, q criteria.Query) ([]map[string]interface{}, error)
	FindOne(ctx context.Context, q criteria.Query) (map[string]interface{}, error)
	Count(ctx context.Context, where criteria.Predicate) (int64, error)
}

// Writer provides write operations over a model's collection. Values are keyed by
// physical column.
type Writer interface {
	Create(ctx context.Context, values map[string]criteria.Value) (map[string]interface{}, error)
	CreateEach(ctx context.Context, records []map[string]criteria.Value) ([]map[string]interface{}, error)
	Update(ctx context.Context, where criteria.Predicate, values map[string]criteria.Value) (int64, error)
	Destroy(ctx context.Context, where criteria.Predicate) (int64, error)
}

var (
	_ Reader = (*Repository)(nil)
	_ Writer = (*Repository)(nil)
)

// Repository is the storage gateway for one model.
type Repository struct {
	model       *criteria.Model
	collection  string
	database    string
	exec        Executor
	log         logger.Logger
	metrics     *metrics.Gateway
	compileOpts []criteriamongo.Option
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics records operation metrics into g.
func WithMetrics(g *metrics.Gateway) Option {
	return func(r *Repository) { r.metrics = g }
}

// WithCompileOptions sets the options passed to the filter compiler.
func WithCompileOptions(opts ...criteriamongo.Option) Option {
	return func(r *Repository) { r.compileOpts = append(r.compileOpts, opts...) }
}

// WithCollection overrides the collection name, which defaults to the model identity.
func WithCollection(name string) Option {
	return func(r *Repository) {
		if name != "" {
			r.collection = name
		}
	}
}

// WithDatabaseName tags spans with the database name.
func WithDatabaseName(name string) Option {
	return func(r *Repository) { r.database = name }
}

// Cosa fa: collega un modello a una collection ed esegue query compilate.
// Cosa NON fa: non crea indici; l'unicità dipende dagli indici già presenti.
// Esempio minimo: repo, err := document.NewRepository(model, exec, document.WithLogger(log))
func NewRepository(model *criteria.Model, exec Executor, opts ...Option) (*Repository, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", criteria.ErrInvalidModel)
	}
	if model.PrimaryKeyColumn() != PrimaryKeyColumn {
		return nil, fmt.Errorf("%w: primary key %q must map to column %q, got %q",
			criteria.ErrInvalidModel, model.PrimaryKey().Name, PrimaryKeyColumn, model.PrimaryKeyColumn())
	}
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	r := &Repository{
		model:      model,
		collection: model.Identity(),
		exec:       exec,
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("collection", r.collection)
	return r, nil
}

// Model returns the bound model.
func (r *Repository) Model() *criteria.Model {
	return r.model
}

// Collection returns the bound collection name.
func (r *Repository) Collection() string {
	return r.collection
}

// Find returns the reified records matching q. The query's model is ignored in
// favour of the bound one. A zero limit returns no records without querying.
func (r *Repository) Find(ctx context.Context, q criteria.Query) (records []map[string]interface{}, err error) {
	return r.find(ctx, OpFind, q)
}

// FindOne returns the first record matching q, honouring its sort and skip.
func (r *Repository) FindOne(ctx context.Context, q criteria.Query) (map[string]interface{}, error) {
	if q.Directives.Limit != 0 {
		q.Directives.Limit = 1
	}
	records, err := r.find(ctx, OpFindOne, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func (r *Repository) find(ctx context.Context, op string, q criteria.Query) (records []map[string]interface{}, err error) {
	q.Model = r.model
	bundle, err := criteriamongo.CompileQuery(q, r.compileOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s query: %w", r.collection, err)
	}

	ctx, span, done := r.begin(ctx, op, tracing.SpanOperationDBQuery, bundle.Filter)
	defer func() { done(err) }()

	if bundle.Limit != nil && *bundle.Limit == 0 {
		r.log.WithContext(ctx).Debug("zero limit, skipping round trip")
		tracing.RecordAffected(span, 0)
		return []map[string]interface{}{}, nil
	}

	docs, err := r.exec.Find(ctx, r.collection, bundle.Filter, bundle.Directives)
	if err != nil {
		return nil, err
	}
	tracing.RecordAffected(span, int64(len(docs)))
	return criteriamongo.ReifyEachFromStorage(docs, r.model), nil
}

// Count returns the number of documents matching where.
func (r *Repository) Count(ctx context.Context, where criteria.Predicate) (n int64, err error) {
	filter, err := criteriamongo.Compile(where, r.model.IsIdentifierColumn, r.compileOpts...)
	if err != nil {
		return 0, fmt.Errorf("failed to compile %s count: %w", r.collection, err)
	}

	ctx, span, done := r.begin(ctx, OpCount, tracing.SpanOperationDBCount, filter)
	defer func() { done(err) }()

	n, err = r.exec.Count(ctx, r.collection, filter)
	if err != nil {
		return 0, err
	}
	tracing.RecordAffected(span, n)
	return n, nil
}

// Create stores one record and returns it as stored, with the assigned primary
// key rendered as a hex string.
func (r *Repository) Create(ctx context.Context, values map[string]criteria.Value) (record map[string]interface{}, err error) {
	doc, err := criteriamongo.ReifyForWrite(values, r.model)
	if err != nil {
		r.countWriteError(err)
		return nil, err
	}

	ctx, span, done := r.begin(ctx, OpCreate, tracing.SpanOperationDBInsert, nil)
	defer func() { done(err) }()

	id, err := r.exec.InsertOne(ctx, r.collection, doc)
	if err != nil {
		return nil, r.classify(err, doc)
	}
	if _, ok := doc[PrimaryKeyColumn]; !ok && id != nil {
		doc[PrimaryKeyColumn] = id
	}
	tracing.RecordAffected(span, 1)
	return criteriamongo.ReifyFromStorage(doc, r.model), nil
}

// CreateEach stores records in order. Nothing is sent when any record fails to
// reify; a store failure may leave earlier records written.
func (r *Repository) CreateEach(ctx context.Context, records []map[string]criteria.Value) (created []map[string]interface{}, err error) {
	if len(records) == 0 {
		return []map[string]interface{}{}, nil
	}
	docs, err := criteriamongo.ReifyEachForWrite(records, r.model)
	if err != nil {
		r.countWriteError(err)
		return nil, err
	}

	ctx, span, done := r.begin(ctx, OpCreateEach, tracing.SpanOperationDBInsert, nil)
	defer func() { done(err) }()

	ids, err := r.exec.InsertMany(ctx, r.collection, docs)
	if err != nil {
		return nil, r.classify(err, failedDocument(err, docs))
	}
	for i, doc := range docs {
		if _, ok := doc[PrimaryKeyColumn]; !ok && i < len(ids) && ids[i] != nil {
			doc[PrimaryKeyColumn] = ids[i]
		}
	}
	tracing.RecordAffected(span, int64(len(docs)))
	return criteriamongo.ReifyEachFromStorage(docs, r.model), nil
}

// Update sets values on every record matching where and returns how many changed.
func (r *Repository) Update(ctx context.Context, where criteria.Predicate, values map[string]criteria.Value) (n int64, err error) {
	if pk, ok := values[PrimaryKeyColumn]; ok && !pk.IsNull() {
		return 0, ErrPrimaryKeyUpdate
	}
	set, err := criteriamongo.ReifyForWrite(values, r.model)
	if err != nil {
		r.countWriteError(err)
		return 0, err
	}
	if len(set) == 0 {
		return 0, ErrEmptyUpdate
	}
	filter, err := criteriamongo.Compile(where, r.model.IsIdentifierColumn, r.compileOpts...)
	if err != nil {
		return 0, fmt.Errorf("failed to compile %s update: %w", r.collection, err)
	}

	ctx, span, done := r.begin(ctx, OpUpdate, tracing.SpanOperationDBUpdate, filter)
	defer func() { done(err) }()

	n, err = r.exec.UpdateMany(ctx, r.collection, filter, set)
	if err != nil {
		return 0, r.classify(err, set)
	}
	tracing.RecordAffected(span, n)
	return n, nil
}

// Destroy deletes every record matching where. A nil predicate deletes everything.
func (r *Repository) Destroy(ctx context.Context, where criteria.Predicate) (n int64, err error) {
	filter, err := criteriamongo.Compile(where, r.model.IsIdentifierColumn, r.compileOpts...)
	if err != nil {
		return 0, fmt.Errorf("failed to compile %s destroy: %w", r.collection, err)
	}

	ctx, span, done := r.begin(ctx, OpDestroy, tracing.SpanOperationDBDelete, filter)
	defer func() { done(err) }()

	n, err = r.exec.DeleteMany(ctx, r.collection, filter)
	if err != nil {
		return 0, err
	}
	tracing.RecordAffected(span, n)
	return n, nil
}

// begin opens the span for op and returns the function that closes it, records
// metrics and logs the outcome.
func (r *Repository) begin(ctx context.Context, op string, spanOp tracing.SpanOperation, filter bson.D) (context.Context, trace.Span, func(error)) {
	start := time.Now()
	spanOpts := []tracing.DatabaseSpanOption{
		tracing.WithDBTable(r.collection),
		tracing.WithDBSystem("mongodb"),
	}
	if r.database != "" {
		spanOpts = append(spanOpts, tracing.WithDBName(r.database))
	}
	if filter != nil {
		spanOpts = append(spanOpts, tracing.WithDBStatement(statement(filter)))
	}
	ctx, span := tracing.StartDatabaseSpan(ctx, spanOp, spanOpts...)
	log := r.log.WithContext(ctx)

	return ctx, span, func(err error) {
		elapsed := time.Since(start)
		r.metrics.ObserveOperation(op, r.collection, err, elapsed)
		if err != nil {
			tracing.RecordError(span, err)
			log.Warn("operation failed", "operation", op, "duration", elapsed, "error", err)
		} else {
			tracing.RecordSuccess(span)
			log.Debug("operation completed", "operation", op, "duration", elapsed)
		}
		span.End()
	}
}

// classify wraps duplicate-key errors with their footprint, naming the candidate by
// attribute, and counts the failure.
func (r *Repository) classify(err error, attempted bson.M) error {
	classified := criteriamongo.ClassifyWriteError(err, attempted)
	if fp, ok := criteriamongo.IsUniquenessViolation(classified); ok {
		// attempted is keyed by column; callers know attributes
		for i, column := range fp.CandidateFields {
			if a, found := r.model.AttributeByColumn(column); found {
				fp.CandidateFields[i] = a.Name
			}
		}
		r.metrics.IncWriteError(r.collection, fp.Kind)
		return classified
	}
	r.metrics.IncWriteError(r.collection, KindOther)
	return classified
}

func (r *Repository) countWriteError(err error) {
	var ie *criteria.InvalidIdentifierError
	if errors.As(err, &ie) {
		r.metrics.IncWriteError(r.collection, KindInvalidIdentifier)
		return
	}
	r.metrics.IncWriteError(r.collection, KindOther)
}

// failedDocument picks the document a batch insert failed on, when the driver
// reports its index.
func failedDocument(err error, docs []bson.M) bson.M {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		if i := bwe.WriteErrors[0].Index; i >= 0 && i < len(docs) {
			return docs[i]
		}
	}
	if len(docs) == 1 {
		return docs[0]
	}
	return nil
}

func statement(filter bson.D) string {
	out, err := bson.MarshalExtJSON(filter, false, false)
	if err != nil {
		return fmt.Sprintf("%v", filter)
	}
	return string(out)
}
