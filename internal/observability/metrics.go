package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	opDurationBuckets   = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Approval workflow metrics
	WorkflowsCreatedTotal   prometheus.Counter
	StageDecisionsTotal     *prometheus.CounterVec
	WorkflowCompletionsTotal *prometheus.CounterVec
	DecisionDuration        *prometheus.HistogramVec

	// Escalation metrics
	EscalationsRaisedTotal    *prometheus.CounterVec
	EscalationLevelChangesTotal *prometheus.CounterVec
	EscalationsResolvedTotal  prometheus.Counter
	RemindersSentTotal        prometheus.Counter
	SweepDuration             prometheus.Histogram
	SweepLevelChanges         prometheus.Histogram

	// Event sink metrics
	EventsPublishedTotal *prometheus.CounterVec
	EventPublishFailures *prometheus.CounterVec

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvald_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approvald_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approvald_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approvald_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Approvals
		WorkflowsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approvald_workflows_created_total",
			Help: "Total number of approval workflows created.",
		}),
		StageDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvald_stage_decisions_total",
			Help: "Total number of stage decisions.",
		}, []string{"stage", "outcome"}),
		WorkflowCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvald_workflow_completions_total",
			Help: "Total number of workflows reaching a terminal status.",
		}, []string{"final_status"}),
		DecisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approvald_decision_duration_seconds",
			Help:    "Stage decision processing duration in seconds.",
			Buckets: opDurationBuckets,
		}, []string{"stage"}),

		// Escalations
		EscalationsRaisedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvald_escalations_raised_total",
			Help: "Total number of escalations raised.",
		}, []string{"severity"}),
		EscalationLevelChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvald_escalation_level_changes_total",
			Help: "Total number of escalation level increases.",
		}, []string{"level"}),
		EscalationsResolvedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approvald_escalations_resolved_total",
			Help: "Total number of escalations resolved.",
		}),
		RemindersSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approvald_reminders_sent_total",
			Help: "Total number of escalation reminders sent.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "approvald_sweep_duration_seconds",
			Help:    "Escalation sweep duration in seconds.",
			Buckets: opDurationBuckets,
		}),
		SweepLevelChanges: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "approvald_sweep_level_changes",
			Help:    "Number of escalation level changes per sweep.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		}),

		// Event sink
		EventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvald_events_published_total",
			Help: "Total number of integration events published.",
		}, []string{"event_type"}),
		EventPublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvald_event_publish_failures_total",
			Help: "Total number of failed event publishes.",
		}, []string{"event_type"}),

		// Cache
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approvald_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approvald_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Approvals
		m.WorkflowsCreatedTotal,
		m.StageDecisionsTotal,
		m.WorkflowCompletionsTotal,
		m.DecisionDuration,
		// Escalations
		m.EscalationsRaisedTotal,
		m.EscalationLevelChangesTotal,
		m.EscalationsResolvedTotal,
		m.RemindersSentTotal,
		m.SweepDuration,
		m.SweepLevelChanges,
		// Event sink
		m.EventsPublishedTotal,
		m.EventPublishFailures,
		// Cache
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordWorkflowCreated records a new approval workflow.
func (m *Metrics) RecordWorkflowCreated() {
	m.WorkflowsCreatedTotal.Inc()
}

// RecordStageDecision records an approve or reject decision on a stage.
func (m *Metrics) RecordStageDecision(stage, outcome string, duration time.Duration) {
	m.StageDecisionsTotal.WithLabelValues(stage, outcome).Inc()
	m.DecisionDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordWorkflowCompletion records a workflow reaching a terminal status.
func (m *Metrics) RecordWorkflowCompletion(finalStatus string) {
	m.WorkflowCompletionsTotal.WithLabelValues(finalStatus).Inc()
}

// RecordEscalationRaised records a newly raised escalation.
func (m *Metrics) RecordEscalationRaised(severity string) {
	m.EscalationsRaisedTotal.WithLabelValues(severity).Inc()
}

// RecordEscalationLevelChange records an escalation level increase.
func (m *Metrics) RecordEscalationLevelChange(level int) {
	m.EscalationLevelChangesTotal.WithLabelValues(strconv.Itoa(level)).Inc()
}

// RecordEscalationResolved records a resolved escalation.
func (m *Metrics) RecordEscalationResolved() {
	m.EscalationsResolvedTotal.Inc()
}

// RecordReminderSent records an escalation reminder.
func (m *Metrics) RecordReminderSent() {
	m.RemindersSentTotal.Inc()
}

// RecordSweep records an escalation sweep run.
func (m *Metrics) RecordSweep(duration time.Duration, levelChanges int) {
	m.SweepDuration.Observe(duration.Seconds())
	m.SweepLevelChanges.Observe(float64(levelChanges))
}

// RecordEventPublished records a published integration event.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordEventPublishFailure records a failed event publish.
func (m *Metrics) RecordEventPublishFailure(eventType string) {
	m.EventPublishFailures.WithLabelValues(eventType).Inc()
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	m.CapabilityCacheMissesTotal.Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
