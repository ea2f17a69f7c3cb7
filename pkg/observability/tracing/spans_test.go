package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	previous := otel.GetTracerProvider()
	spanRecorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	return spanRecorder
}

func TestStartDatabaseSpan(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		operation     SpanOperation
		opts          []DatabaseSpanOption
		expectedName  string
		expectedAttrs map[string]interface{}
	}{
		{
			name:          "query without options",
			operation:     SpanOperationDBQuery,
			expectedName:  "DB db.query",
			expectedAttrs: map[string]interface{}{"db.operation": "db.query"},
		},
		{
			name:         "count with collection",
			operation:    SpanOperationDBCount,
			opts:         []DatabaseSpanOption{WithDBTable("pets")},
			expectedName: "DB db.count pets",
			expectedAttrs: map[string]interface{}{
				"db.operation": "db.count",
				"db.table":     "pets",
			},
		},
		{
			name:      "insert with all options",
			operation: SpanOperationDBInsert,
			opts: []DatabaseSpanOption{
				WithDBTable("pets"),
				WithDBSystem("mongodb"),
				WithDBStatement(`{"name":"rex"}`),
				WithDBName("zoo"),
			},
			expectedName: "DB db.insert pets",
			expectedAttrs: map[string]interface{}{
				"db.operation": "db.insert",
				"db.table":     "pets",
				"db.system":    "mongodb",
				"db.statement": `{"name":"rex"}`,
				"db.name":      "zoo",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := setupTestTracer(t)

			_, span := StartDatabaseSpan(ctx, tt.operation, tt.opts...)
			RecordAffected(span, 2)
			span.End()

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			recorded := spans[0]
			if recorded.Name() != tt.expectedName {
				t.Fatalf("expected span name %q, got %q", tt.expectedName, recorded.Name())
			}

			attrs := map[string]interface{}{}
			for _, attr := range recorded.Attributes() {
				attrs[string(attr.Key)] = attr.Value.AsInterface()
			}
			for key, expectedValue := range tt.expectedAttrs {
				if attrs[key] != expectedValue {
					t.Fatalf("expected attribute %s=%v, got %v", key, expectedValue, attrs[key])
				}
			}
			if attrs["db.documents_affected"] != int64(2) {
				t.Fatalf("expected documents_affected=2, got %v", attrs["db.documents_affected"])
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := otel.Tracer("test").Start(context.Background(), "test-span")
	testErr := errors.New("test error")
	RecordError(span, testErr)
	RecordError(span, nil)
	span.End()

	recorded := recorder.Ended()[0]
	if events := recorded.Events(); len(events) != 1 || events[0].Name != "exception" {
		t.Fatalf("expected one exception event, got %v", events)
	}
	if recorded.Status().Code != codes.Error || recorded.Status().Description != testErr.Error() {
		t.Fatalf("unexpected status %+v", recorded.Status())
	}
}

func TestRecordSuccess(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := otel.Tracer("test").Start(context.Background(), "test-span")
	RecordSuccess(span)
	span.End()

	if got := recorder.Ended()[0].Status().Code; got != codes.Ok {
		t.Fatalf("expected span status Ok, got %v", got)
	}
}
