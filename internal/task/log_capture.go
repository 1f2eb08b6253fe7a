package task

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/solution-server/internal/platform/logger"
)

// DefaultLoggerName is the Logger of a record emitted without a "logger" attribute.
const DefaultLoggerName = "task"

// loggerKey is the attribute that names the emitting logger.
const loggerKey = "logger"

// Record is one captured log entry.
type Record struct {
	Time    time.Time              `json:"time"`
	Level   slog.Level             `json:"level"`
	Message string                 `json:"msg"`
	Logger  string                 `json:"logger"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
}

// LogCapture collects the log records emitted while one task executes.
// Records are only accepted between Attach and the returned detach call.
type LogCapture struct {
	taskID        string
	correlationID uuid.UUID

	mu       sync.Mutex
	records  []Record
	attached bool
}

// NewLogCapture creates an empty, detached capture for a task.
func NewLogCapture(taskID string, correlationID uuid.UUID) *LogCapture {
	return &LogCapture{
		taskID:        taskID,
		correlationID: correlationID,
	}
}

// Attach makes the capture the task-scoped sink for ctx. The returned context
// carries a logger that writes to both base and the capture, tagged with the
// task id and correlation id. Calling detach stops the capture from accepting
// records; it is safe to call more than once.
func (c *LogCapture) Attach(ctx context.Context, base *slog.Logger) (context.Context, func()) {
	if base == nil {
		base = logger.FromContext(ctx)
	}

	c.mu.Lock()
	c.attached = true
	c.mu.Unlock()

	scoped := slog.New(logger.NewFanoutHandler(base.Handler(), &captureHandler{capture: c})).
		With("task_id", c.taskID, "correlation_id", c.correlationID.String())

	var once sync.Once
	detach := func() {
		once.Do(func() {
			c.mu.Lock()
			c.attached = false
			c.mu.Unlock()
		})
	}
	return logger.WithLogger(ctx, scoped), detach
}

// Records returns a copy of the captured records in emission order.
func (c *LogCapture) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Len returns the number of captured records.
func (c *LogCapture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Contains reports whether any record's message contains substr.
func (c *LogCapture) Contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}

func (c *LogCapture) append(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return
	}
	c.records = append(c.records, r)
}

// captureHandler is the slog.Handler view of a LogCapture. Derived handlers
// share the capture and accumulate attributes and groups.
type captureHandler struct {
	capture *LogCapture
	attrs   []slog.Attr
	groups  []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		prefixed = append(prefixed, qualify(h.groups, a))
	}
	return &captureHandler{capture: h.capture, attrs: prefixed, groups: h.groups}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &captureHandler{capture: h.capture, attrs: h.attrs, groups: groups}
}

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	rec := Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Logger:  DefaultLoggerName,
		Attrs:   make(map[string]interface{}, len(h.attrs)+r.NumAttrs()),
	}

	add := func(a slog.Attr) {
		if a.Key == loggerKey && a.Value.Kind() == slog.KindString {
			rec.Logger = a.Value.String()
			return
		}
		flatten(rec.Attrs, "", a)
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(qualify(h.groups, a))
		return true
	})
	if len(rec.Attrs) == 0 {
		rec.Attrs = nil
	}

	h.capture.append(rec)
	return nil
}

// qualify prefixes an attribute key with the open groups.
func qualify(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 {
		return a
	}
	return slog.Attr{Key: strings.Join(groups, ".") + "." + a.Key, Value: a.Value}
}

// flatten stores a into dst with dotted keys for nested groups.
func flatten(dst map[string]interface{}, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := a.Key
	switch {
	case key == "":
		key = prefix
	case prefix != "":
		key = prefix + "." + key
	}
	if key == "" && v.Kind() != slog.KindGroup {
		return
	}

	switch v.Kind() {
	case slog.KindGroup:
		for _, ga := range v.Group() {
			flatten(dst, key, ga)
		}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[key] = err.Error()
			return
		}
		dst[key] = v.Any()
	default:
		dst[key] = v.Any()
	}
}
