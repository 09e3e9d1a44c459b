// Package metrics provides the Prometheus-backed metrics collector for
// provider calls and engine activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/rag-arena/internal/ports"
)

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements the MetricsCollector interface on top of
// a Prometheus registry. It monitors search traffic per provider and
// run-level engine activity.
type PrometheusMetrics struct {
	searchLatency  *prometheus.HistogramVec
	searchRequests *prometheus.CounterVec
	chunksReturned *prometheus.HistogramVec
	runDuration    *prometheus.HistogramVec
	engineCounter  *prometheus.CounterVec
}

// NewPrometheusMetrics creates a collector registered against the given
// registerer. Passing nil registers into the default global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		searchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_arena_search_latency_seconds",
				Help:    "Latency of provider search calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "status"},
		),
		searchRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_arena_search_requests_total",
				Help: "Total provider search calls by outcome.",
			},
			[]string{"provider", "status"},
		),
		chunksReturned: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_arena_search_chunks_returned",
				Help:    "Number of chunks returned per successful search.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"provider", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_arena_run_duration_seconds",
				Help:    "Wall-clock duration of benchmark runs and comparisons.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"operation", "status"},
		),
		engineCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_arena_engine_operations_total",
				Help: "Total engine operations by outcome.",
			},
			[]string{"operation", "status"},
		),
	}
}

// RecordLatency records the wall-clock duration of an engine operation.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.runDuration.WithLabelValues(operation, statusLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter increments the counter behind the named metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "search_requests_total":
		pm.searchRequests.WithLabelValues(providerLabel(labels), statusLabel(labels)).Add(value)
	default:
		pm.engineCounter.WithLabelValues(metric, statusLabel(labels)).Add(value)
	}
}

// RecordHistogram records a sample in the histogram behind the named
// metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "search_latency_seconds":
		pm.searchLatency.WithLabelValues(providerLabel(labels), statusLabel(labels)).Observe(value)
	case "search_chunks_returned":
		pm.chunksReturned.WithLabelValues(providerLabel(labels), statusLabel(labels)).Observe(value)
	default:
		pm.runDuration.WithLabelValues(metric, statusLabel(labels)).Observe(value)
	}
}

func providerLabel(labels map[string]string) string {
	if p, ok := labels["provider"]; ok {
		return p
	}
	return "unknown"
}

func statusLabel(labels map[string]string) string {
	if s, ok := labels["status"]; ok {
		return s
	}
	return "unknown"
}
