package health

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single check when the checker was built without one.
const DefaultTimeout = 5 * time.Second

// Checkable is implemented by the store adapter.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker reports the health of a store adapter.
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a new health checker for an adapter
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &AdapterChecker{name: name, adapter: adapter, timeout: timeout}
}

// Check performs the health check on the adapter
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	return run(ctx, c.name, c.timeout, func(ctx context.Context) (map[string]interface{}, error) {
		return nil, c.adapter.HealthCheck(ctx)
	})
}

// Name returns the name of the health check
func (c *AdapterChecker) Name() string {
	return c.name
}

// CountFunc counts the documents a probe query matches.
type CountFunc func(ctx context.Context) (int64, error)

// QueryChecker runs a compiled probe query. It is degraded when the probe
// matches fewer documents than expected and unhealthy when the query fails.
type QueryChecker struct {
	name     string
	count    CountFunc
	minCount int64
	timeout  time.Duration
}

// NewQueryChecker creates a checker around a probe count.
func NewQueryChecker(name string, count CountFunc, minCount int64, timeout time.Duration) *QueryChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &QueryChecker{name: name, count: count, minCount: minCount, timeout: timeout}
}

// Check runs the probe.
func (c *QueryChecker) Check(ctx context.Context) CheckResult {
	result := run(ctx, c.name, c.timeout, func(ctx context.Context) (map[string]interface{}, error) {
		n, err := c.count(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"matched": n}, nil
	})
	if result.Status == StatusHealthy && result.Metadata["matched"].(int64) < c.minCount {
		result.Status = StatusDegraded
		result.Message = "probe matched fewer documents than expected"
	}
	return result
}

// Name returns the name of the health check
func (c *QueryChecker) Name() string {
	return c.name
}

func run(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) (map[string]interface{}, error)) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metadata, err := fn(checkCtx)
	result := CheckResult{
		Name:      name,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Metadata:  metadata,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		return result
	}
	result.Status = StatusHealthy
	result.Message = "OK"
	return result
}
