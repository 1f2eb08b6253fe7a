package logger

import (
	"context"
	"errors"
	"log/slog"
)

// FanoutHandler is a slog.Handler that duplicates every record to each of
// its children. A child only receives records it has enabled.
type FanoutHandler struct {
	handlers []slog.Handler
}

// NewFanoutHandler creates a handler writing to all of hs. Nil handlers are skipped.
func NewFanoutHandler(hs ...slog.Handler) *FanoutHandler {
	handlers := make([]slog.Handler, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			handlers = append(handlers, h)
		}
	}
	return &FanoutHandler{handlers: handlers}
}

// Enabled implements the slog.Handler interface.
func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, child := range h.handlers {
		if child.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// WithAttrs implements the slog.Handler interface.
func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		handlers[i] = child.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: handlers}
}

// WithGroup implements the slog.Handler interface.
func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		handlers[i] = child.WithGroup(name)
	}
	return &FanoutHandler{handlers: handlers}
}

// Handle implements the slog.Handler interface. Each child gets its own
// clone of the record; errors from all children are joined.
func (h *FanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, child := range h.handlers {
		if !child.Enabled(ctx, record.Level) {
			continue
		}
		if err := child.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
