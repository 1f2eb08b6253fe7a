package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/phrazzld/solution-server/internal/platform/logger"
	"github.com/phrazzld/solution-server/internal/redact"
)

// ErrorBody is the JSON body of every error reply.
type ErrorBody struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// WriteError replies with message and the request's trace ID. Use it for
// request validation failures that carry no underlying error.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logger.FromContext(r.Context()).Debug("rejected request",
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", status,
		"message", message)
	writeErrorBody(w, r, status, message)
}

// WriteFailure replies with a client-safe message and logs the redacted
// cause. Server errors log at ERROR and client errors at DEBUG.
func WriteFailure(w http.ResponseWriter, r *http.Request, status int, message string, cause error) {
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logFailure(r, level, "request failed", status, message, cause)
	writeErrorBody(w, r, status, message)
}

// WriteUnavailable replies 503 with a Retry-After hint while the server is
// shutting down. It logs at WARN since refusals are expected then.
func WriteUnavailable(w http.ResponseWriter, r *http.Request, retryAfter time.Duration, message string, cause error) {
	if secs := int(retryAfter / time.Second); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	logFailure(r, slog.LevelWarn, "request refused during shutdown", http.StatusServiceUnavailable, message, cause)
	writeErrorBody(w, r, http.StatusServiceUnavailable, message)
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, message string) {
	WriteJSON(w, r, status, ErrorBody{Error: message, TraceID: GetTraceID(r.Context())})
}

func logFailure(r *http.Request, level slog.Level, msg string, status int, message string, cause error) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status_code", status),
		slog.String("user_message", message),
	}
	if cause != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(cause)),
			slog.String("error_type", fmt.Sprintf("%T", cause)))
	}
	logger.FromContext(r.Context()).LogAttrs(r.Context(), level, msg, attrs...)
}
