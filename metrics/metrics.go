// Package metrics provides Prometheus instrumentation for decision-table
// evaluation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for decision-table evaluation.
type Metrics struct {
	// EvaluateLatency is the end-to-end latency of Engine.Evaluate, labeled
	// by namespace.
	EvaluateLatency *prometheus.HistogramVec

	// Outcomes counts evaluation results by hit policy and result kind
	// (absent, scalar, mapping, sequence, or a failure kind).
	Outcomes *prometheus.CounterVec

	// CompileLatency is the latency of compiling a decision table's
	// expressions.
	CompileLatency prometheus.Histogram
}

// New creates a Metrics instance with every decision-table metric
// registered against the default registry.
func New() *Metrics {
	return &Metrics{
		EvaluateLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dmntable_evaluate_duration_seconds",
			Help:    "Duration of decision table evaluations by namespace",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"namespace"}),

		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dmntable_evaluate_outcomes_total",
			Help: "Total decision table evaluation outcomes by hit policy and result kind",
		}, []string{"hit_policy", "outcome"}),

		CompileLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dmntable_compile_duration_seconds",
			Help:    "Duration of decision table expression compilation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}
}

// ObserveEvaluateLatency records the duration of one Engine.Evaluate call.
func (m *Metrics) ObserveEvaluateLatency(namespace string, d time.Duration) {
	if m != nil {
		m.EvaluateLatency.WithLabelValues(namespace).Observe(d.Seconds())
	}
}

// IncrementOutcome records one evaluation outcome.
func (m *Metrics) IncrementOutcome(hitPolicy, outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(hitPolicy, outcome).Inc()
	}
}

// ObserveCompileLatency records the duration of compiling a decision
// table's expressions.
func (m *Metrics) ObserveCompileLatency(d time.Duration) {
	if m != nil {
		m.CompileLatency.Observe(d.Seconds())
	}
}
