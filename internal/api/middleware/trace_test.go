package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/solution-server/internal/api/shared"
	"github.com/phrazzld/solution-server/internal/platform/logger"
)

func TestTraceMiddleware(t *testing.T) {
	base, buf := logger.GetTestLogger(t)

	var traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	TraceMiddleware(base)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, traceID, shared.TraceIDLength)

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)

	var sawHandler bool
	for _, e := range entries {
		assert.Equal(t, traceID, e["trace_id"], "entry %v", e)
		if e["msg"] == "inside handler" {
			sawHandler = true
		}
	}
	assert.True(t, sawHandler)
}

func TestTraceMiddleware_UniquePerRequest(t *testing.T) {
	base, _ := logger.GetTestLogger(t)

	seen := make(map[string]bool)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[shared.GetTraceID(r.Context())] = true
	})
	h := TraceMiddleware(base)(next)

	for i := 0; i < 5; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Len(t, seen, 5)
}
