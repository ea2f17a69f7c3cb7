// Package metrics provides Prometheus metrics for the criteria gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry manages Prometheus metrics registration and exposure.
// It owns the gateway metrics and includes Go runtime metrics by default.
type Registry struct {
	registry *prometheus.Registry
	gateway  *Gateway
}

// NewRegistry creates a new metrics registry with default collectors.
// It automatically registers:
// - gateway operation duration and write error counters
// - Go runtime metrics (goroutines, memory, GC)
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	gw := NewGateway()
	gw.register(reg)

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Registry{
		registry: reg,
		gateway:  gw,
	}
}

// Gateway returns the gateway metrics registered with r.
func (r *Registry) Gateway() *Gateway {
	return r.gateway
}

// Register registers a custom Prometheus collector.
func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

// MustRegister registers a custom Prometheus collector and panics on error.
func (r *Registry) MustRegister(collectors ...prometheus.Collector) {
	r.registry.MustRegister(collectors...)
}

// Unregister removes a collector from the registry.
// This is primarily useful for testing.
func (r *Registry) Unregister(collector prometheus.Collector) bool {
	return r.registry.Unregister(collector)
}

// WriteToTextfile writes every gathered metric to path in the text exposition
// format, atomically, for node_exporter's textfile collector.
func (r *Registry) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// Gatherer returns the underlying prometheus.Gatherer.
// This is useful for advanced use cases like custom metric exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
