package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter dispatches task events synchronously to the handlers
// registered with it. It is safe for concurrent use.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers []registeredHandler
	logger   *slog.Logger
}

type registeredHandler struct {
	id      int
	handler EventHandler
}

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With("component", "event_emitter"),
	}
}

// RegisterHandler adds handler and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) (unregister func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers = append(e.handlers, registeredHandler{id: id, handler: handler})
	count := len(e.handlers)
	e.mu.Unlock()

	e.logger.Debug("registered event handler", "handler_count", count)

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

// HandlerCount returns the number of registered handlers.
func (e *InMemoryEventEmitter) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// EmitEvent delivers event to every handler in registration order. A
// failing or panicking handler does not stop delivery to the others; all
// failures are joined into the returned error.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	e.mu.RLock()
	handlers := make([]registeredHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := dispatch(ctx, h.handler, event); err != nil {
			e.logger.Warn("event handler failed",
				"error", err,
				"event_type", event.Type,
				"task_id", event.TaskID)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *InMemoryEventEmitter) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
			return
		}
	}
}

func dispatch(ctx context.Context, handler EventHandler, event *TaskEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return handler.HandleEvent(ctx, event)
}
