package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types, one per task status.
const (
	TypeTaskCreated  = "task.created"
	TypeTaskRunning  = "task.running"
	TypeTaskFinished = "task.finished"
	TypeTaskFailed   = "task.failed"
)

// TaskEvent describes a status change of one task. It carries plain values so
// the events package stays independent of the task package.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	TaskID        string    `json:"task_id"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	Status        string    `json:"status"`

	// Error is the redacted failure message of a failed task
	Error string `json:"error,omitempty"`

	// Payload contains optional event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload,omitempty"`

	// OccurredAt is the timestamp of the status change
	OccurredAt time.Time `json:"occurred_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskEvent creates a TaskEvent. A nil payload leaves Payload empty.
func NewTaskEvent(eventType, taskID string, correlationID uuid.UUID, status string, payload interface{}) (*TaskEvent, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	return &TaskEvent{
		ID:            uuid.New(),
		Type:          eventType,
		TaskID:        taskID,
		CorrelationID: correlationID,
		Status:        status,
		Payload:       raw,
		OccurredAt:    time.Now(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Handlers run on the emitting goroutine and must not block.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}
