// Package metrics provides Prometheus metrics for the PepAI drill service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the PepAI service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	latencyBuckets   []float64
	registry         prometheus.Registerer

	// Generation
	drillsGenerated      *prometheus.CounterVec
	generationAttempts   prometheus.Counter
	generationRetries    prometheus.Counter
	generationHighDemand prometheus.Counter
	generationLatency    *prometheus.HistogramVec
	malformedResponses   prometheus.Counter

	// Billing
	billingDeductions   *prometheus.CounterVec
	insufficientBalance *prometheus.CounterVec
	billingEvents       *prometheus.CounterVec

	// History and sharing
	historySaves      prometheus.Counter
	historyDuplicates prometheus.Counter
	shareLinks        *prometheus.CounterVec

	// Voice
	voiceSessionsActive prometheus.Gauge
	voiceToolCalls      *prometheus.CounterVec
	mcpToolCalls        *prometheus.CounterVec

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerCount             prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pepai",
		subsystem:        "drills",
		histogramBuckets: prometheus.DefBuckets,
		// Model calls take seconds; HTTP handlers mostly milliseconds.
		latencyBuckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000},
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	m.drillsGenerated = m.counterVec("generated_total", "Drills produced by the model, by request kind", "kind")
	m.generationAttempts = m.counter("generation_attempts_total", "Model requests issued, including retries")
	m.generationRetries = m.counter("generation_retries_total", "Model requests retried after an overload response")
	m.generationHighDemand = m.counter("generation_high_demand_total", "Generations abandoned after exhausting retries")
	m.generationLatency = m.histogramVec("generation_latency_milliseconds", "End-to-end generation latency", m.latencyBuckets, "kind")
	m.malformedResponses = m.counter("malformed_responses_total", "Model responses that could not be parsed into a drill")

	m.billingDeductions = m.counterVec("billing_deductions_total", "Balance deductions by currency", "currency")
	m.insufficientBalance = m.counterVec("billing_insufficient_total", "Paid actions refused for lack of balance", "currency")
	m.billingEvents = m.counterVec("billing_events_total", "Payment-provider events processed", "kind", "outcome")

	m.historySaves = m.counter("history_saves_total", "Drills written to history")
	m.historyDuplicates = m.counter("history_duplicates_total", "History saves dropped by idempotency key")
	m.shareLinks = m.counterVec("share_links_total", "Share links created or resolved", "kind", "op")

	m.voiceSessionsActive = m.gauge("voice_sessions_active", "Open voice assistant sessions")
	m.voiceToolCalls = m.counterVec("voice_tool_calls_total", "Tool calls applied by the voice assistant", "tool")
	m.mcpToolCalls = m.counterVec("mcp_tool_calls_total", "MCP tool calls by tool and result", "tool", "result")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Document store call latency", m.histogramBuckets, "op")
	m.storeErrors = m.counterVec("store_errors_total", "Document store failures", "op")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.latencyBuckets, "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current size of the history-save queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum history-save queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueues")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})

	m.workerCount = m.gauge("worker_count", "Current number of history-save workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Jobs processed per second across the pool")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Job processing latency in milliseconds",
		m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of failed jobs")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of failed operations", m.latencyBuckets,
		"component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50})
}

// Generation.

// RecordDrillGenerated counts a successfully normalized drill for kind (oneshot, stream, refine).
func RecordDrillGenerated(kind string) {
	globalManager.drillsGenerated.WithLabelValues(kind).Inc()
}

// RecordGenerationAttempt counts one model request.
func RecordGenerationAttempt() {
	globalManager.generationAttempts.Inc()
}

// RecordGenerationRetry counts a retry scheduled after an overload response.
func RecordGenerationRetry() {
	globalManager.generationRetries.Inc()
}

// RecordGenerationHighDemand counts a generation abandoned after MaxAttempts.
func RecordGenerationHighDemand() {
	globalManager.generationHighDemand.Inc()
}

// RecordGenerationLatency observes end-to-end generation latency in milliseconds.
func RecordGenerationLatency(kind string, latencyMs float64) {
	globalManager.generationLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordMalformedResponse counts a model response the normalizer rejected.
func RecordMalformedResponse() {
	globalManager.malformedResponses.Inc()
}

// Billing.

// RecordBillingDeduction counts a balance deduction.
func RecordBillingDeduction(currency string) {
	globalManager.billingDeductions.WithLabelValues(currency).Inc()
}

// RecordInsufficientBalance counts a refused paid action.
func RecordInsufficientBalance(currency string) {
	globalManager.insufficientBalance.WithLabelValues(currency).Inc()
}

// RecordBillingEvent counts a processed subscription or payment event.
func RecordBillingEvent(kind, outcome string) {
	globalManager.billingEvents.WithLabelValues(kind, outcome).Inc()
}

// History and sharing.

// RecordHistorySave counts drills persisted to history.
func RecordHistorySave(n int) {
	globalManager.historySaves.Add(float64(n))
}

// RecordHistoryDuplicate counts a save dropped by its idempotency key.
func RecordHistoryDuplicate() {
	globalManager.historyDuplicates.Inc()
}

// RecordShareLink counts share link activity; kind is stored or legacy, op is create or resolve.
func RecordShareLink(kind, op string) {
	globalManager.shareLinks.WithLabelValues(kind, op).Inc()
}

// Voice.

// IncVoiceSessions marks a voice session as opened.
func IncVoiceSessions() {
	globalManager.voiceSessionsActive.Inc()
}

// DecVoiceSessions marks a voice session as closed.
func DecVoiceSessions() {
	globalManager.voiceSessionsActive.Dec()
}

// RecordVoiceToolCall counts a tool call applied by the voice assistant.
func RecordVoiceToolCall(tool string) {
	globalManager.voiceToolCalls.WithLabelValues(tool).Inc()
}

// RecordMCPToolCall counts an MCP tool call.
func RecordMCPToolCall(tool, result string) {
	globalManager.mcpToolCalls.WithLabelValues(tool, result).Inc()
}

// Store.

// RecordStoreLatency observes a document store call.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a failed document store call.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
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

// Queue.

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
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records enqueue latency in milliseconds.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the pool throughput.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records job processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
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
