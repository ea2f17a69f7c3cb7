package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeAdapter struct {
	err   error
	delay time.Duration
}

func (f fakeAdapter) HealthCheck(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestAdapterChecker(t *testing.T) {
	healthy := NewAdapterChecker("mongodb", fakeAdapter{}, 0).Check(context.Background())
	if healthy.Status != StatusHealthy || healthy.Message != "OK" || healthy.Name != "mongodb" {
		t.Fatalf("unexpected result %+v", healthy)
	}

	failed := NewAdapterChecker("mongodb", fakeAdapter{err: errors.New("no reachable servers")}, 0).Check(context.Background())
	if failed.Status != StatusUnhealthy || failed.Error != "no reachable servers" {
		t.Fatalf("unexpected result %+v", failed)
	}

	slow := NewAdapterChecker("mongodb", fakeAdapter{delay: time.Second}, 10*time.Millisecond).Check(context.Background())
	if slow.Status != StatusUnhealthy {
		t.Fatalf("expected timeout to fail the check, got %+v", slow)
	}
}

func TestQueryChecker(t *testing.T) {
	tests := []struct {
		name   string
		count  CountFunc
		min    int64
		status Status
	}{
		{name: "enough documents", count: func(context.Context) (int64, error) { return 3, nil }, min: 1, status: StatusHealthy},
		{name: "too few documents", count: func(context.Context) (int64, error) { return 0, nil }, min: 1, status: StatusDegraded},
		{name: "query fails", count: func(context.Context) (int64, error) { return 0, errors.New("boom") }, status: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewQueryChecker("probe", tt.count, tt.min, time.Second).Check(context.Background())
			if got.Status != tt.status {
				t.Fatalf("status = %q, want %q (%+v)", got.Status, tt.status, got)
			}
		})
	}
}

func TestRegistry_Check(t *testing.T) {
	r := NewRegistry()
	r.Register(NewAdapterChecker("mongodb", fakeAdapter{}, 0))
	r.Register(NewQueryChecker("pets", func(context.Context) (int64, error) { return 0, nil }, 1, 0))

	agg := r.Check(context.Background())
	if agg.Status != StatusDegraded || agg.IsHealthy() {
		t.Fatalf("expected degraded aggregate, got %+v", agg)
	}
	if len(agg.Checks) != 2 || agg.Checks[0].Name != "mongodb" || agg.Checks[1].Name != "pets" {
		t.Fatalf("results must be ordered by name: %+v", agg.Checks)
	}

	r.Register(NewAdapterChecker("mongodb", fakeAdapter{err: errors.New("down")}, 0))
	if agg := r.Check(context.Background()); agg.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy aggregate, got %q", agg.Status)
	}

	if _, err := r.CheckOne(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown check")
	}
	one, err := r.CheckOne(context.Background(), "pets")
	if err != nil || one.Status != StatusDegraded {
		t.Fatalf("CheckOne() = %+v, %v", one, err)
	}
}

func TestRegistry_Empty(t *testing.T) {
	if agg := NewRegistry().Check(context.Background()); !agg.IsHealthy() || len(agg.Checks) != 0 {
		t.Fatalf("empty registry must be healthy, got %+v", agg)
	}
}
