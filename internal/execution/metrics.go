package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks execution.request messages consumed, by
	// signal type (arbitrage or edge).
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbees_execution_requests_total",
			Help: "Total execution requests evaluated, by signal type",
		},
		[]string{"signal_type"},
	)

	// RejectionsTotal tracks gate rejections, by structured reason code.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbees_execution_rejections_total",
			Help: "Total execution requests rejected by a gate, by reason",
		},
		[]string{"reason"},
	)

	// ResultsTotal tracks terminal non-rejection outcomes, by status.
	ResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbees_execution_results_total",
			Help: "Total execution results, by terminal status",
		},
		[]string{"status"},
	)

	// ExecutionLatencySeconds tracks gate-to-result latency.
	ExecutionLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbees_execution_latency_seconds",
		Help:    "Latency from execution.request receipt to execution.result emission",
		Buckets: []float64{.005, .01, .025, .05, .1, .2, .3, .5, .75, 1, 2, 5},
	})

	// FlattenFailuresTotal tracks failed corrective orders after a
	// one-sided arbitrage pair fill.
	FlattenFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbees_execution_flatten_failures_total",
		Help: "Total corrective flatten orders that themselves failed, leaving an unhedged position",
	})
)
