package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Gateway holds the metrics recorded around every repository operation.
type Gateway struct {
	// operationDuration tracks gateway operation duration in seconds.
	// Labels: operation, collection, status
	operationDuration *prometheus.HistogramVec

	// writeErrors counts failed writes by classified kind.
	// Labels: collection, kind
	writeErrors *prometheus.CounterVec
}

// NewGateway creates unregistered gateway metrics. NewRegistry registers them;
// use this directly only with your own registerer.
func NewGateway() *Gateway {
	return &Gateway{
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "criteria_gateway_operation_duration_seconds",
				Help:    "Duration of criteria gateway operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "collection", "status"},
		),
		writeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "criteria_write_errors_total",
				Help: "Total number of failed writes by error kind",
			},
			[]string{"collection", "kind"},
		),
	}
}

func (g *Gateway) register(reg prometheus.Registerer) {
	reg.MustRegister(g.operationDuration, g.writeErrors)
}

// Collectors returns the collectors to register with a custom registerer.
func (g *Gateway) Collectors() []prometheus.Collector {
	return []prometheus.Collector{g.operationDuration, g.writeErrors}
}

// ObserveOperation records one operation. A nil Gateway records nothing.
func (g *Gateway) ObserveOperation(operation, collection string, err error, duration time.Duration) {
	if g == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	g.operationDuration.WithLabelValues(operation, collection, status).Observe(duration.Seconds())
}

// IncWriteError counts a failed write of the given kind. A nil Gateway records nothing.
func (g *Gateway) IncWriteError(collection, kind string) {
	if g == nil {
		return
	}
	g.writeErrors.WithLabelValues(collection, kind).Inc()
}
