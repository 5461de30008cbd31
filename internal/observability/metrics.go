package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	requestsTotal          *prometheus.CounterVec
	latencySeconds         *prometheus.HistogramVec
	errorsTotal            *prometheus.CounterVec
	progressCacheRequests  *prometheus.CounterVec
	watcherRefreshesTotal  *prometheus.CounterVec
	sweepTransitionsTotal  *prometheus.CounterVec
	invalidationsTotal     prometheus.Counter
	accessDivergenceTotal  prometheus.Counter
	activeWatchersGauge    prometheus.Gauge
	streamSubscribersGauge prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siswa_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siswa_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siswa_errors_total",
			Help: "Total number of error responses returned.",
		}, []string{"method", "route", "status"})

		progressCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siswa_progress_cache_requests_total",
			Help: "Progress aggregation cache lookups by outcome.",
		}, []string{"outcome"})

		watcherRefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siswa_watcher_refreshes_total",
			Help: "Countdown watcher authority refreshes by outcome.",
		}, []string{"outcome"})

		sweepTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siswa_sweep_transitions_total",
			Help: "Period status transitions applied by background sweeps.",
		}, []string{"transition"})

		invalidationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siswa_cache_invalidations_total",
			Help: "Total number of record-change cache invalidations.",
		})

		accessDivergenceTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siswa_access_divergence_total",
			Help: "Times the access check disagreed with the derived window state.",
		})

		activeWatchersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siswa_active_watchers",
			Help: "Countdown watchers currently running.",
		})

		streamSubscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siswa_stream_subscribers",
			Help: "Live countdown stream subscribers currently connected.",
		})

		prometheus.MustRegister(
			requestsTotal,
			latencySeconds,
			errorsTotal,
			progressCacheRequests,
			watcherRefreshesTotal,
			sweepTransitionsTotal,
			invalidationsTotal,
			accessDivergenceTotal,
			activeWatchersGauge,
			streamSubscribersGauge,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// ProgressCacheRequests exposes the cache outcome counter.
func ProgressCacheRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return progressCacheRequests
}

// WatcherRefreshes exposes the authority refresh outcome counter.
func WatcherRefreshes() *prometheus.CounterVec {
	RegisterMetrics()
	return watcherRefreshesTotal
}

// SweepTransitions exposes the sweep transition counter.
func SweepTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return sweepTransitionsTotal
}

// RecordInvalidations exposes the invalidation counter.
func RecordInvalidations() prometheus.Counter {
	RegisterMetrics()
	return invalidationsTotal
}

// AccessDivergence exposes the divergence counter.
func AccessDivergence() prometheus.Counter {
	RegisterMetrics()
	return accessDivergenceTotal
}

// ActiveWatchers exposes the running watcher gauge.
func ActiveWatchers() prometheus.Gauge {
	RegisterMetrics()
	return activeWatchersGauge
}

// StreamSubscribers exposes the connected stream subscriber gauge.
func StreamSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return streamSubscribersGauge
}
