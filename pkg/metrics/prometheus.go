// Package metrics provides Prometheus metrics for the ladder ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the ladder service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Submission Metrics - The write path
	submissionsTotal   prometheus.Counter
	submissionErrors   prometheus.Counter
	submissionLatency  prometheus.Histogram
	sideEffectFailures *prometheus.CounterVec

	// Scale Metrics
	totalPlayers  prometheus.Gauge
	totalSessions prometheus.Gauge

	// Cache Metrics - Hit ratios per cache tier
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec

	// Store Metrics - Query and write latencies
	storeQueryLatency prometheus.Histogram
	storeWriteLatency prometheus.Histogram

	// Queue Metrics - Recompute request queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    prometheus.Counter
	jobsCoalesced    prometheus.Counter

	// Recompute Metrics - Job execution per scope (full|incremental)
	jobsProcessed     *prometheus.CounterVec
	jobsFailed        *prometheus.CounterVec
	jobsRetried       *prometheus.CounterVec
	jobsDead          *prometheus.CounterVec
	recomputeDuration *prometheus.HistogramVec
	deadSetSize       prometheus.Gauge
	lastFullUnix      prometheus.Gauge
	workerActiveCount prometheus.Gauge
	throttleWait      prometheus.Histogram

	// Notification Metrics
	notificationsEmitted prometheus.Counter
	notificationErrors   prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ladder",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Submission Metrics - The write path
	m.submissionsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_total",
		Help:      "Total number of score submissions committed",
	})

	m.submissionErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submission_errors_total",
		Help:      "Total number of failed score submissions",
	})

	m.submissionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submission_latency_milliseconds",
		Help:      "Histogram of submission transaction latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.sideEffectFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "side_effect_failures_total",
			Help:      "Post-commit side effect failures that were swallowed (cache, enqueue, notify)",
		},
		[]string{"effect"},
	)

	// Scale Metrics
	m.totalPlayers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "total_players",
		Help:      "Total number of players with an aggregate entry",
	})

	m.totalSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "total_sessions",
		Help:      "Total number of recorded game sessions",
	})

	// Cache Metrics - label "cache" is top or rank
	m.cacheHits = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits by cache tier",
		},
		[]string{"cache"},
	)

	m.cacheMisses = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses by cache tier",
		},
		[]string{"cache"},
	)

	m.cacheInvalidations = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_invalidations_total",
			Help:      "Total number of explicit cache invalidations by cache tier",
		},
		[]string{"cache"},
	)

	// Store Metrics
	m.storeQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_query_latency_milliseconds",
		Help:      "Store read query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeWriteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_write_latency_milliseconds",
		Help:      "Store write/transaction latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Queue Metrics
	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current number of pending recompute requests",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum recompute queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization_ratio",
		Help:      "Queue utilization ratio (current size / capacity)",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Total number of recompute requests enqueued",
	})

	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Total number of recompute requests dequeued",
	})

	m.queueRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_rejected_total",
		Help:      "Total number of recompute requests rejected (queue full or closed)",
	})

	m.jobsCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "jobs_coalesced_total",
		Help:      "Total number of recompute requests coalesced into an already-pending job",
	})

	// Recompute Metrics - label "scope" is full or incremental
	m.jobsProcessed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "jobs_processed_total",
			Help:      "Total number of recompute jobs completed by scope",
		},
		[]string{"scope"},
	)

	m.jobsFailed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "jobs_failed_total",
			Help:      "Total number of recompute job attempts that failed by scope",
		},
		[]string{"scope"},
	)

	m.jobsRetried = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "jobs_retried_total",
			Help:      "Total number of recompute job retries by scope",
		},
		[]string{"scope"},
	)

	m.jobsDead = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "jobs_dead_total",
			Help:      "Total number of recompute jobs parked in the dead set by scope",
		},
		[]string{"scope"},
	)

	m.recomputeDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "recompute_duration_milliseconds",
			Help:      "Recompute job execution duration in milliseconds by scope",
			Buckets:   m.histogramBuckets,
		},
		[]string{"scope"},
	)

	m.deadSetSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dead_set_size",
		Help:      "Current number of dead-lettered recompute jobs",
	})

	m.lastFullUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_full_recompute_unix",
		Help:      "Unix timestamp of the last completed full rank recomputation",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Number of running recompute workers",
	})

	m.throttleWait = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "throttle_wait_milliseconds",
		Help:      "Time recompute jobs spent waiting on the throughput cap",
		Buckets:   m.histogramBuckets,
	})

	// Notification Metrics
	m.notificationsEmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_emitted_total",
		Help:      "Total number of score-changed notifications emitted",
	})

	m.notificationErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notification_errors_total",
		Help:      "Total number of notification publish failures (swallowed)",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// Submission Metrics Functions.

// RecordSubmission records a committed submission and its latency.
func RecordSubmission(latencyMs float64) {
	globalManager.submissionsTotal.Inc()
	globalManager.submissionLatency.Observe(latencyMs)
}

// RecordSubmissionError increments the failed submission counter.
func RecordSubmissionError() {
	globalManager.submissionErrors.Inc()
}

// RecordSideEffectFailure records a swallowed post-commit side effect failure.
// Effect is one of: cache, enqueue, notify.
func RecordSideEffectFailure(effect string) {
	globalManager.sideEffectFailures.WithLabelValues(effect).Inc()
}

// UpdateTotalPlayers sets the total player count.
func UpdateTotalPlayers(count int64) {
	globalManager.totalPlayers.Set(float64(count))
}

// UpdateTotalSessions sets the total session count.
func UpdateTotalSessions(count int64) {
	globalManager.totalSessions.Set(float64(count))
}

// Cache Metrics Functions.

// RecordCacheHit increments the hit counter for a cache tier (top or rank).
func RecordCacheHit(cache string) {
	globalManager.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss increments the miss counter for a cache tier.
func RecordCacheMiss(cache string) {
	globalManager.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordCacheInvalidation increments the invalidation counter for a cache tier.
func RecordCacheInvalidation(cache string) {
	globalManager.cacheInvalidations.WithLabelValues(cache).Inc()
}

// Store Metrics Functions.

// RecordStoreQueryLatency records store read latency in milliseconds.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordStoreWriteLatency records store write latency in milliseconds.
func RecordStoreWriteLatency(latencyMs float64) {
	globalManager.storeWriteLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected increments the rejected-enqueue counter.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// RecordJobCoalesced increments the coalesced-request counter.
func RecordJobCoalesced() {
	globalManager.jobsCoalesced.Inc()
}

// Recompute Metrics Functions.

// RecordJobProcessed records a completed recompute job and its duration.
func RecordJobProcessed(scope string, durationMs float64) {
	globalManager.jobsProcessed.WithLabelValues(scope).Inc()
	globalManager.recomputeDuration.WithLabelValues(scope).Observe(durationMs)
}

// RecordJobFailed increments the failed-attempt counter for a scope.
func RecordJobFailed(scope string) {
	globalManager.jobsFailed.WithLabelValues(scope).Inc()
}

// RecordJobRetry increments the retry counter for a scope.
func RecordJobRetry(scope string) {
	globalManager.jobsRetried.WithLabelValues(scope).Inc()
}

// RecordJobDead increments the dead-letter counter for a scope.
func RecordJobDead(scope string) {
	globalManager.jobsDead.WithLabelValues(scope).Inc()
}

// UpdateDeadSetSize sets the current dead set size.
func UpdateDeadSetSize(size int) {
	globalManager.deadSetSize.Set(float64(size))
}

// UpdateLastFullRecompute sets the unix timestamp of the last full pass.
func UpdateLastFullRecompute(unix int64) {
	globalManager.lastFullUnix.Set(float64(unix))
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordThrottleWait records time spent waiting on the throughput cap.
func RecordThrottleWait(waitMs float64) {
	globalManager.throttleWait.Observe(waitMs)
}

// Notification Metrics Functions.

// RecordNotification increments the emitted-notification counter.
func RecordNotification() {
	globalManager.notificationsEmitted.Inc()
}

// RecordNotificationError increments the notification failure counter.
func RecordNotificationError() {
	globalManager.notificationErrors.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
