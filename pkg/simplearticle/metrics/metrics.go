// Package metrics provides Prometheus metrics for the article engine
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tendant/simple-article/pkg/simplearticle"
)

// Metrics holds all Prometheus metrics for the engine and implements
// simplearticle.MetricsRecorder.
type Metrics struct {
	OperationsTotal         *prometheus.CounterVec
	OperationDuration       *prometheus.HistogramVec
	RedirectsTotal          *prometheus.CounterVec
	ChainDepthExceededTotal prometheus.Counter
}

var _ simplearticle.MetricsRecorder = (*Metrics)(nil)

// New creates and registers all metrics with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simplearticle_operations_total",
				Help: "Total number of article operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simplearticle_operation_duration_seconds",
				Help:    "Duration of article operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RedirectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simplearticle_redirects_total",
				Help: "Redirect stub writes by outcome",
			},
			[]string{"outcome"},
		),
		ChainDepthExceededTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "simplearticle_redirect_chain_depth_exceeded_total",
				Help: "Redirect lookups that hit the depth cap or a loop",
			},
		),
	}
}

// ObserveOperation records one service call.
func (m *Metrics) ObserveOperation(op string, err error, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(op, Status(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RedirectOutcome adds count redirects with the given outcome.
func (m *Metrics) RedirectOutcome(outcome string, count int) {
	if count <= 0 {
		return
	}
	m.RedirectsTotal.WithLabelValues(outcome).Add(float64(count))
}

// ChainDepthExceeded counts one redirect chain anomaly.
func (m *Metrics) ChainDepthExceeded() {
	m.ChainDepthExceededTotal.Inc()
}

// Status maps an operation error to a low-cardinality label value.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, simplearticle.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, simplearticle.ErrValidation):
		return "invalid"
	case errors.Is(err, simplearticle.ErrNotFound):
		return "not_found"
	case errors.Is(err, simplearticle.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
