package tracing

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewTracerProvider(ctx, TracerConfig{ServiceName: "criteriactl"})
	if err != nil {
		t.Fatalf("expected no error for disabled tracing, got: %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider to be non-nil")
	}

	_, span := provider.Tracer("test").Start(ctx, "test-span")
	if span.SpanContext().IsSampled() {
		t.Fatal("disabled provider must not sample")
	}
	span.End()
}

func TestNewTracerProvider_ValidationErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		config      TracerConfig
		expectedErr string
	}{
		{
			name:        "missing service name",
			config:      TracerConfig{Enabled: true, Endpoint: "localhost:4317"},
			expectedErr: "service name is required",
		},
		{
			name:        "missing endpoint",
			config:      TracerConfig{ServiceName: "criteriactl", Enabled: true},
			expectedErr: "OTLP endpoint is required",
		},
		{
			name:        "invalid sample rate - negative",
			config:      TracerConfig{ServiceName: "criteriactl", Endpoint: "localhost:4317", SampleRate: -0.1, Enabled: true},
			expectedErr: "sample rate must be between 0 and 1",
		},
		{
			name:        "invalid sample rate - too high",
			config:      TracerConfig{ServiceName: "criteriactl", Endpoint: "localhost:4317", SampleRate: 1.5, Enabled: true},
			expectedErr: "sample rate must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTracerProvider(ctx, tt.config)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Fatalf("expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

func TestTracerProvider_ShutdownAndFlush(t *testing.T) {
	ctx := context.Background()

	provider, err := NewTracerProvider(ctx, TracerConfig{ServiceName: "criteriactl"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := provider.ForceFlush(flushCtx); err != nil {
		t.Fatalf("expected no error on force flush, got: %v", err)
	}
	if err := provider.Shutdown(ctx); err != nil {
		t.Fatalf("expected no error on shutdown, got: %v", err)
	}

	var empty TracerProvider
	if err := empty.Shutdown(ctx); err != nil {
		t.Fatalf("zero provider shutdown should be a no-op, got %v", err)
	}
}

func TestTracerConfig_ValidSampleRates(t *testing.T) {
	for _, rate := range []float64{0.0, 0.01, 0.1, 0.5, 1.0} {
		t.Run(fmt.Sprintf("sample_rate_%v", rate), func(t *testing.T) {
			cfg := TracerConfig{ServiceName: "criteriactl", Endpoint: "localhost:4317", SampleRate: rate, Enabled: true}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected no error for sample rate %f, got: %v", rate, err)
			}
		})
	}
}
