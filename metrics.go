package flags

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes used as the "outcome" label of remote fetch metrics.
const (
	fetchOutcomeSuccess  = "success"
	fetchOutcomeFailure  = "failure"
	fetchOutcomeRejected = "rejected"
)

// MetricsCollector provides Prometheus metrics for flag resolution and the
// remote refresh path. It is safe for concurrent use, and every Record
// method is a no-op on a nil collector.
type MetricsCollector struct {
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec

	remoteFetchesTotal  *prometheus.CounterVec
	remoteFetchDuration *prometheus.HistogramVec

	circuitBreakerState *prometheus.GaugeVec

	cacheSize *prometheus.GaugeVec

	deduplicationHits prometheus.Counter

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)

	return &MetricsCollector{
		resolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flags_resolutions_total",
				Help: "Total number of flag resolutions by provenance",
			},
			[]string{"provenance"},
		),
		resolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flags_resolution_duration_seconds",
				Help:    "Duration of flag resolutions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"provenance"},
		),
		remoteFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flags_remote_fetches_total",
				Help: "Total number of remote fetch attempts by outcome",
			},
			[]string{"outcome"},
		),
		remoteFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flags_remote_fetch_duration_seconds",
				Help:    "Duration of remote fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flags_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		cacheSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flags_cache_size",
				Help: "Current number of flags in cache",
			},
			[]string{"name"},
		),
		deduplicationHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "flags_deduplication_hits_total",
				Help: "Total number of resolutions that joined an in-flight fetch",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flags_errors_total",
				Help: "Total number of errors encountered by type",
			},
			[]string{"type"},
		),
		registry: registry,
	}
}

// RecordResolution counts a resolution and observes its duration.
func (mc *MetricsCollector) RecordResolution(provenance Provenance, duration time.Duration) {
	if mc == nil {
		return
	}

	label := provenance.String()
	mc.resolutionsTotal.WithLabelValues(label).Inc()
	mc.resolutionDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordFetch counts a remote fetch attempt.
func (mc *MetricsCollector) RecordFetch(outcome string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.remoteFetchesTotal.WithLabelValues(outcome).Inc()
	if outcome != fetchOutcomeRejected {
		mc.remoteFetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// RecordCircuitBreakerState sets gauge to breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case StateClosed:
		stateValue = 0
	case StateOpen:
		stateValue = 1
	case StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType string) {
	if mc == nil {
		return
	}
	if errorType == "" {
		errorType = "unknown"
	}

	mc.errorsTotal.WithLabelValues(errorType).Inc()
}

// RecordDeduplicationHit increments de-dup hit counter.
func (mc *MetricsCollector) RecordDeduplicationHit() {
	if mc == nil {
		return
	}

	mc.deduplicationHits.Inc()
}

// Registry exposes the registerer the collector was created with.
func (mc *MetricsCollector) Registry() prometheus.Registerer {
	if mc == nil {
		return nil
	}
	return mc.registry
}
