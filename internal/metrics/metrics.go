// Package metrics exposes Prometheus collectors for the daemon.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexd_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codexd_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveProcesses tracks registered codex processes
	ActiveProcesses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codexd_active_processes",
			Help: "Number of running codex processes",
		},
	)

	// Launches counts launch attempts by outcome
	Launches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexd_launches_total",
			Help: "Total number of conversation launches",
		},
		[]string{"status"},
	)

	// ProcessDuration tracks how long codex processes run
	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codexd_process_duration_seconds",
			Help:    "Codex process lifetime in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// EventsEmitted counts normalized events by type
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexd_events_total",
			Help: "Total number of emitted events",
		},
		[]string{"type"},
	)

	// EventBufferDrops tracks dropped events due to buffer overflow
	EventBufferDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codexd_event_buffer_drops_total",
			Help: "Total number of events dropped due to buffer overflow",
		},
	)

	// PendingApprovals tracks approvals waiting for a decision
	PendingApprovals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codexd_pending_approvals",
			Help: "Number of approval requests awaiting a decision",
		},
	)

	// ApprovalResponses counts approval decisions by outcome
	ApprovalResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexd_approval_responses_total",
			Help: "Total number of approval responses",
		},
		[]string{"outcome"},
	)

	// PtySessions tracks live terminal sessions
	PtySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codexd_pty_sessions",
			Help: "Number of live terminal sessions",
		},
	)

	// ToolCalls tracks MCP tool invocations
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexd_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)

	// Notifications counts outbound notifications by result
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexd_notifications_total",
			Help: "Total number of outbound notifications",
		},
		[]string{"status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps label cardinality bounded
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/mcp", "/metrics":
		return path
	}
	if strings.HasPrefix(path, "/mcp/") {
		return "/mcp"
	}
	return "other"
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordLaunch counts a launch attempt
func RecordLaunch(status string) {
	Launches.WithLabelValues(status).Inc()
}

// SetActiveProcesses sets the running process gauge
func SetActiveProcesses(count float64) {
	ActiveProcesses.Set(count)
}

// RecordProcessEnd records how long a process ran and how it ended
func RecordProcessEnd(status string, durationSeconds float64) {
	ProcessDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordEvent counts an emitted event
func RecordEvent(eventType string) {
	EventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordEventDrop records an event buffer drop. The conversation id is not
// used as a label.
func RecordEventDrop(_ string) {
	EventBufferDrops.Inc()
}

// SetPendingApprovals sets the pending approval gauge
func SetPendingApprovals(count float64) {
	PendingApprovals.Set(count)
}

// RecordApproval counts an approval response outcome
func RecordApproval(outcome string) {
	ApprovalResponses.WithLabelValues(outcome).Inc()
}

// SetPtySessions sets the live terminal gauge
func SetPtySessions(count float64) {
	PtySessions.Set(count)
}

// RecordToolCall records an MCP tool invocation
func RecordToolCall(tool, status string) {
	ToolCalls.WithLabelValues(tool, status).Inc()
}

// RecordNotification counts an outbound notification
func RecordNotification(status string) {
	Notifications.WithLabelValues(status).Inc()
}
