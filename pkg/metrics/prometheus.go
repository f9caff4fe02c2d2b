// Package metrics provides Prometheus metrics for the skyscraper service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Session lifecycle
	sessionsCreated     *prometheus.CounterVec
	sessionCreateErrors prometheus.Counter
	inventorySize       prometheus.Histogram

	// Leaderboard
	submissions      *prometheus.CounterVec
	classifications  *prometheus.CounterVec
	leaderboardSize  prometheus.Gauge
	storeLatency     *prometheus.HistogramVec
	storeErrors      *prometheus.CounterVec
	publishAttempts  prometheus.Counter
	announcementErrs prometheus.Counter

	// Scheduling
	scheduleOps   *prometheus.CounterVec
	jobsCancelled prometheus.Counter
	jobRuns       *prometheus.CounterVec
	activeJobs    prometheus.Gauge

	// HTTP and bridge
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsConnections       prometheus.Gauge
	wsMessages          *prometheus.CounterVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skyscraper",
		subsystem:        "core",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.sessionsCreated = auto.NewCounterVec(m.counterOpts("sessions_created_total", "Sessions created and seeded, by trigger"), []string{"trigger"})
	m.sessionCreateErrors = auto.NewCounter(m.counterOpts("session_create_errors_total", "Session creations that failed"))
	m.inventorySize = auto.NewHistogram(m.histogramOpts("inventory_shapes", "Number of shapes per generated inventory", prometheus.LinearBuckets(9, 1, 8)))

	m.submissions = auto.NewCounterVec(m.counterOpts("score_submissions_total", "Score submissions by outcome"), []string{"outcome"})
	m.classifications = auto.NewCounterVec(m.counterOpts("highscore_classifications_total", "High score classifications by result"), []string{"result"})
	m.leaderboardSize = auto.NewGauge(m.gaugeOpts("leaderboard_players", "Distinct players on the leaderboard"))
	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_latency_milliseconds", "Backing store call latency in milliseconds", m.histogramBuckets), []string{"backend", "op"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total", "Backing store call failures"), []string{"backend", "op"})
	m.publishAttempts = auto.NewCounter(m.counterOpts("publish_attempts_total", "Content unit publish attempts, including retries"))
	m.announcementErrs = auto.NewCounter(m.counterOpts("announcement_errors_total", "Event announcements that could not be delivered"))

	m.scheduleOps = auto.NewCounterVec(m.counterOpts("schedule_operations_total", "Schedule operations by op and outcome"), []string{"op", "outcome"})
	m.jobsCancelled = auto.NewCounter(m.counterOpts("jobs_cancelled_total", "Scheduled jobs cancelled"))
	m.jobRuns = auto.NewCounterVec(m.counterOpts("job_runs_total", "Scheduled job executions by job name and outcome"), []string{"job", "outcome"})
	m.activeJobs = auto.NewGauge(m.gaugeOpts("active_jobs", "Jobs currently known to the scheduler"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})
	m.wsConnections = auto.NewGauge(m.gaugeOpts("ws_connections", "Open view bridge connections"))
	m.wsMessages = auto.NewCounterVec(m.counterOpts("ws_messages_total", "View bridge messages by type"), []string{"type"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// Session lifecycle.

// RecordSessionCreated counts a seeded session; trigger is "schedule" or "manual".
func RecordSessionCreated(trigger string, shapes int) {
	globalManager.sessionsCreated.WithLabelValues(trigger).Inc()
	globalManager.inventorySize.Observe(float64(shapes))
}

// RecordSessionCreateError counts a failed session creation.
func RecordSessionCreateError() {
	globalManager.sessionCreateErrors.Inc()
}

// Leaderboard.

// RecordSubmission counts a submission; accepted reports whether the best score moved.
func RecordSubmission(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordSubmissionError counts a submission that failed against the store.
func RecordSubmissionError() {
	globalManager.submissions.WithLabelValues("error").Inc()
}

// RecordClassification counts a high score classification.
func RecordClassification(high bool) {
	result := "not_high"
	if high {
		result = "high"
	}
	globalManager.classifications.WithLabelValues(result).Inc()
}

// UpdateLeaderboardSize sets the distinct player gauge.
func UpdateLeaderboardSize(n int) {
	globalManager.leaderboardSize.Set(float64(n))
}

// RecordStoreLatency observes one backing store call.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError counts one failed backing store call.
func RecordStoreError(backend, op string) {
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// RecordPublishAttempt counts one content unit publish attempt.
func RecordPublishAttempt() {
	globalManager.publishAttempts.Inc()
}

// RecordAnnouncementError counts an undelivered announcement.
func RecordAnnouncementError() {
	globalManager.announcementErrs.Inc()
}

// Scheduling.

// RecordScheduleOp counts a schedule manager operation.
func RecordScheduleOp(op, outcome string) {
	globalManager.scheduleOps.WithLabelValues(op, outcome).Inc()
}

// RecordJobsCancelled adds n to the cancelled jobs counter.
func RecordJobsCancelled(n int) {
	if n > 0 {
		globalManager.jobsCancelled.Add(float64(n))
	}
}

// RecordJobRun counts one scheduled job execution.
func RecordJobRun(job string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	globalManager.jobRuns.WithLabelValues(job, outcome).Inc()
}

// UpdateActiveJobs sets the number of jobs known to the scheduler.
func UpdateActiveJobs(n int) {
	globalManager.activeJobs.Set(float64(n))
}

// HTTP and bridge.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// AddWSConnections adjusts the open bridge connection gauge by delta.
func AddWSConnections(delta int) {
	globalManager.wsConnections.Add(float64(delta))
}

// RecordWSMessage counts one inbound bridge message.
func RecordWSMessage(msgType string) {
	globalManager.wsMessages.WithLabelValues(msgType).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets heap usage in bytes.
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
