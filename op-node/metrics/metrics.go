// Package metrics exposes the driver's Prometheus surface: per-tick
// throughput, Engine API call outcomes, prefetcher queue depth, and
// validator error counts (SPEC_FULL.md §4.10), generalized from the
// teacher's SequencerMetrics interface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DriverMetrics is implemented by NoopMetrics (metrics disabled) and
// PrometheusMetrics (the daemon).
type DriverMetrics interface {
	RecordL1BlockProcessed(number uint64)
	RecordOperationBuilt(kind string)
	RecordEngineCall(method string, status string)
	RecordPrefetcherQueueDepth(depth int)
	RecordValidationResult(successful bool, apiUnavailable bool)
	RecordTickDuration(component string, seconds float64)
}

// NoopMetrics discards every observation; the node uses it when no metrics
// address is configured, and NewDriver falls back to it when given nil.
type NoopMetrics struct{}

func (NoopMetrics) RecordL1BlockProcessed(uint64)                {}
func (NoopMetrics) RecordOperationBuilt(string)                  {}
func (NoopMetrics) RecordEngineCall(string, string)              {}
func (NoopMetrics) RecordPrefetcherQueueDepth(int)               {}
func (NoopMetrics) RecordValidationResult(bool, bool)            {}
func (NoopMetrics) RecordTickDuration(string, float64)           {}

// PrometheusMetrics backs the daemon's /metrics endpoint.
type PrometheusMetrics struct {
	l1BlocksProcessed   prometheus.Counter
	operationsBuilt     *prometheus.CounterVec
	engineCalls         *prometheus.CounterVec
	prefetcherQueueSize prometheus.Gauge
	validationsTotal    *prometheus.CounterVec
	tickDuration        *prometheus.HistogramVec
}

// NewPrometheusMetrics registers every metric on reg (pass
// prometheus.DefaultRegisterer for the process-wide registry).
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		l1BlocksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "l1_blocks_processed_total",
			Help:      "Number of L1 blocks fully processed by the derivation loop.",
		}),
		operationsBuilt: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_built_total",
			Help:      "Number of deposit transactions built, labeled by operation kind.",
		}, []string{"kind"}),
		engineCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_calls_total",
			Help:      "Engine API calls, labeled by method and outcome status.",
		}, []string{"method", "status"}),
		prefetcherQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prefetcher_queue_depth",
			Help:      "Number of L1 blocks currently scheduled or in flight in the prefetcher.",
		}),
		validationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validator runs, labeled by outcome.",
		}, []string{"outcome"}),
		tickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "component_duration_seconds",
			Help:      "Per-component elapsed time within a single driver tick.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
	}
}

func (m *PrometheusMetrics) RecordL1BlockProcessed(number uint64) {
	m.l1BlocksProcessed.Inc()
}

func (m *PrometheusMetrics) RecordOperationBuilt(kind string) {
	m.operationsBuilt.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) RecordEngineCall(method string, status string) {
	m.engineCalls.WithLabelValues(method, status).Inc()
}

func (m *PrometheusMetrics) RecordPrefetcherQueueDepth(depth int) {
	m.prefetcherQueueSize.Set(float64(depth))
}

func (m *PrometheusMetrics) RecordValidationResult(successful bool, apiUnavailable bool) {
	outcome := "failed"
	switch {
	case apiUnavailable:
		outcome = "api_unavailable"
	case successful:
		outcome = "ok"
	}
	m.validationsTotal.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) RecordTickDuration(component string, seconds float64) {
	m.tickDuration.WithLabelValues(component).Observe(seconds)
}
