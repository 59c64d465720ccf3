package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/health":      "/health",
		"/mcp":         "/mcp",
		"/mcp/session": "/mcp",
		"/metrics":     "/metrics",
		"/anything":    "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/health", "418"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/health", "418")))
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(ApprovalResponses.WithLabelValues("approved"))
	RecordApproval("approved")
	assert.Equal(t, before+1, testutil.ToFloat64(ApprovalResponses.WithLabelValues("approved")))

	SetActiveProcesses(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ActiveProcesses))

	drops := testutil.ToFloat64(EventBufferDrops)
	RecordEventDrop("c1")
	assert.Equal(t, drops+1, testutil.ToFloat64(EventBufferDrops))
}
