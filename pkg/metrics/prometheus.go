// Package metrics provides Prometheus metrics for the ladder leaderboard service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Leaderboard engine
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	operationErrors  *prometheus.CounterVec
	recordsReturned  *prometheus.HistogramVec

	// Store commands
	storeCommands       *prometheus.CounterVec
	storeCommandLatency *prometheus.HistogramVec
	storeErrors         *prometheus.CounterVec
	storeBatchSize      prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// Ingestion pipeline
	eventsAccepted    prometheus.Counter
	eventsDuplicate   prometheus.Counter
	eventsApplied     *prometheus.CounterVec
	eventsFailed      *prometheus.CounterVec
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueueError *prometheus.CounterVec
	workerCount       prometheus.Gauge
	workerLatency     prometheus.Histogram

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ladder",
		subsystem:        "leaderboard",
		histogramBuckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() {
	m.operations = m.counterVec("operations_total", "Leaderboard operations by name", "op")
	m.operationLatency = m.histogramVec("operation_latency_milliseconds", "Leaderboard operation latency in milliseconds", "op")
	m.operationErrors = m.counterVec("operation_errors_total", "Leaderboard operations that returned an error", "op")
	m.recordsReturned = m.histogramVec("records_returned", "Records returned per query", "op")

	m.storeCommands = m.counterVec("store_commands_total", "Ordered-set store commands issued", "backend", "command")
	m.storeCommandLatency = m.histogramVec("store_command_latency_milliseconds", "Store command latency in milliseconds", "backend", "command")
	m.storeErrors = m.counterVec("store_errors_total", "Store commands that failed", "backend", "command")
	m.storeBatchSize = m.histogram("store_batch_size", "Commands per atomic batch", []float64{1, 2, 4, 8, 16, 32, 64, 128, 256})

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.httpErrors = m.counterVec("http_errors_total", "HTTP error responses by endpoint, method and error type", "endpoint", "method", "error_type")

	m.eventsAccepted = m.counter("events_accepted_total", "Score events accepted for asynchronous processing")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Score events rejected as duplicates")
	m.eventsApplied = m.counterVec("events_applied_total", "Score events applied by workers", "mode", "changed")
	m.eventsFailed = m.counterVec("events_failed_total", "Score events that failed to apply", "mode")
	m.queueSize = m.gauge("queue_size", "Current number of queued score events")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued score events")
	m.queueEnqueueError = m.counterVec("queue_enqueue_errors_total", "Rejected enqueue attempts", "reason")
	m.workerCount = m.gauge("worker_count", "Number of score event workers")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Time to apply one score event", m.histogramBuckets)

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Allocated heap memory in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Leaderboard engine.

// RecordOperation records one engine operation and its latency.
func RecordOperation(op string, latencyMs float64, err error) {
	globalManager.operations.WithLabelValues(op).Inc()
	globalManager.operationLatency.WithLabelValues(op).Observe(latencyMs)
	if err != nil {
		globalManager.operationErrors.WithLabelValues(op).Inc()
	}
}

// RecordRecordsReturned observes how many records a query produced.
func RecordRecordsReturned(op string, n int) {
	globalManager.recordsReturned.WithLabelValues(op).Observe(float64(n))
}

// Store commands.

// RecordStoreCommand records a store command against a backend.
func RecordStoreCommand(backend, command string, latencyMs float64, err error) {
	globalManager.storeCommands.WithLabelValues(backend, command).Inc()
	globalManager.storeCommandLatency.WithLabelValues(backend, command).Observe(latencyMs)
	if err != nil {
		globalManager.storeErrors.WithLabelValues(backend, command).Inc()
	}
}

// RecordStoreBatch observes the number of commands in one atomic batch.
func RecordStoreBatch(size int) {
	globalManager.storeBatchSize.Observe(float64(size))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError records an error response.
func RecordHTTPError(endpoint, method, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// Ingestion pipeline.

// RecordEventAccepted increments the accepted events counter.
func RecordEventAccepted() { globalManager.eventsAccepted.Inc() }

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordEventApplied counts an event applied by a worker.
func RecordEventApplied(mode string, changed bool) {
	c := "false"
	if changed {
		c = "true"
	}
	globalManager.eventsApplied.WithLabelValues(mode, c).Inc()
}

// RecordEventFailed counts an event a worker could not apply.
func RecordEventFailed(mode string) { globalManager.eventsFailed.WithLabelValues(mode).Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueError.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records how long one event took to apply.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry holding the service collectors.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the service collectors in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
