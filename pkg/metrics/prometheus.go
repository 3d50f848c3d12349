// Package metrics provides Prometheus metrics for the eldlog timeline service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Timeline
	eventsNormalized  prometheus.Counter
	eventsDropped     prometheus.Counter
	statusFallbacks   prometheus.Counter
	submissions       *prometheus.CounterVec
	fetchFailures     prometheus.Counter
	pendingOperations prometheus.Gauge
	eventListSize     prometheus.Gauge
	renderPasses      prometheus.Counter
	renderLatency     prometheus.Histogram
	reportsExported   *prometheus.CounterVec
	streamClients     prometheus.Gauge

	// Collaborator and snapshot store
	collaboratorLatency *prometheus.HistogramVec
	storeLatency        *prometheus.HistogramVec

	// Submission queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Submission workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "eldlog",
		subsystem:        "timeline",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval is how often gauge-style runtime metrics should be sampled.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// RefreshInterval is the sampling interval of the global manager.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

func (m *Manager) counter(auto promauto.Factory, name, help string) prometheus.Counter {
	return auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(auto promauto.Factory, name, help string) prometheus.Gauge {
	return auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(auto promauto.Factory, name, help string) prometheus.Histogram {
	return auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) counterVec(auto promauto.Factory, name, help string, labels ...string) *prometheus.CounterVec {
	return auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(auto promauto.Factory, name, help string, labels ...string) *prometheus.HistogramVec {
	return auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.eventsNormalized = m.counter(auto, "events_normalized_total", "Status records accepted into the event list")
	m.eventsDropped = m.counter(auto, "events_dropped_total", "Status records dropped for an unparseable timestamp")
	m.statusFallbacks = m.counter(auto, "status_fallbacks_total", "Status records whose status code was unknown and shown as off duty")
	m.submissions = m.counterVec(auto, "submissions_total", "Status change submissions by outcome", "outcome")
	m.fetchFailures = m.counter(auto, "fetch_failures_total", "Failed status log fetches")
	m.pendingOperations = m.gauge(auto, "pending_operations", "Submissions waiting for the collaborator")
	m.eventListSize = m.gauge(auto, "event_list_size", "Events in the displayed list, pending included")
	m.renderPasses = m.counter(auto, "render_passes_total", "Render passes performed")
	m.renderLatency = m.histogram(auto, "render_latency_milliseconds", "Render pass latency in milliseconds")
	m.reportsExported = m.counterVec(auto, "reports_exported_total", "Daily log exports by sink", "sink")
	m.streamClients = m.gauge(auto, "stream_clients", "Connected live timeline clients")

	m.collaboratorLatency = m.histogramVec(auto, "collaborator_latency_milliseconds",
		"Collaborator call latency in milliseconds", "call", "outcome")
	m.storeLatency = m.histogramVec(auto, "store_latency_milliseconds",
		"Snapshot store latency in milliseconds", "op")

	m.queueSize = m.gauge(auto, "queue_size", "Submissions waiting in the dispatch queue")
	m.queueCapacity = m.gauge(auto, "queue_capacity", "Maximum dispatch queue capacity")
	m.queueUtilization = m.gauge(auto, "queue_utilization_ratio", "Dispatch queue utilization (size / capacity)")
	m.queueEnqueued = m.counter(auto, "queue_enqueue_total", "Submissions enqueued")
	m.queueDequeued = m.counter(auto, "queue_dequeue_total", "Submissions dequeued")
	m.queueEnqueueErrors = m.counter(auto, "queue_enqueue_errors_total", "Submissions refused by the queue")
	m.queueProcessingLatency = m.histogram(auto, "queue_processing_latency_milliseconds",
		"Time a submission spends in the queue in milliseconds")

	m.workerCount = m.gauge(auto, "worker_count", "Configured submission workers")
	m.workerActiveCount = m.gauge(auto, "worker_active_count", "Submission workers currently running")
	m.workerProcessingLatency = m.histogram(auto, "worker_processing_latency_milliseconds",
		"Submission delivery latency in milliseconds")
	m.workerErrors = m.counter(auto, "worker_errors_total", "Submission deliveries that failed")

	m.httpRequests = m.counterVec(auto, "http_requests_total",
		"HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec(auto, "http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec(auto, "errors_by_component_total",
		"Errors by component", "component", "error_type")
	m.errorsByEndpoint = m.counterVec(auto, "errors_by_endpoint_total",
		"Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge(auto, "system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge(auto, "system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// RecordEventsNormalized counts records accepted by normalization.
func RecordEventsNormalized(n int) {
	globalManager.eventsNormalized.Add(float64(n))
}

// RecordEventsDropped counts records dropped by normalization.
func RecordEventsDropped(n int) {
	globalManager.eventsDropped.Add(float64(n))
}

// RecordStatusFallbacks counts records shown with the fallback status.
func RecordStatusFallbacks(n int) {
	globalManager.statusFallbacks.Add(float64(n))
}

// RecordSubmission counts a submission outcome: invalid, pending,
// confirmed or rolled_back.
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordFetchFailure increments the failed fetch counter.
func RecordFetchFailure() {
	globalManager.fetchFailures.Inc()
}

// UpdatePendingOperations sets the pending submission gauge.
func UpdatePendingOperations(n int) {
	globalManager.pendingOperations.Set(float64(n))
}

// UpdateEventListSize sets the displayed event count.
func UpdateEventListSize(n int) {
	globalManager.eventListSize.Set(float64(n))
}

// RecordRenderPass records one render pass and its latency.
func RecordRenderPass(latencyMs float64) {
	globalManager.renderPasses.Inc()
	globalManager.renderLatency.Observe(latencyMs)
}

// RecordReportExported counts a daily log written to sink.
func RecordReportExported(sink string) {
	globalManager.reportsExported.WithLabelValues(sink).Inc()
}

// UpdateStreamClients sets the number of live timeline subscribers.
func UpdateStreamClients(n int) {
	globalManager.streamClients.Set(float64(n))
}

// RecordCollaboratorCall records a collaborator request latency.
func RecordCollaboratorCall(call, outcome string, latencyMs float64) {
	globalManager.collaboratorLatency.WithLabelValues(call, outcome).Observe(latencyMs)
}

// RecordStoreLatency records a snapshot store operation latency.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

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

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records how long a submission waited.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records a delivery latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
