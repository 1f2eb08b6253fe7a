package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task engine
var (
	// ErrTaskNotFound is returned when a task id is not in the registry.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition marks an illegal status change. It indicates a
	// programming error, never a failure of the work itself.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrQueueClosed is returned by Put after Close, and by Get once the
	// queue is closed and empty.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrTaskDoneUnderflow is returned when TaskDone is called more often
	// than tasks were put.
	ErrTaskDoneUnderflow = errors.New("task done called more times than tasks were queued")

	// ErrManagerClosed is returned by Submit once shutdown has started.
	ErrManagerClosed = errors.New("task manager is shut down")

	// ErrNilWork is returned by Submit when no work function is given.
	ErrNilWork = errors.New("task work must not be nil")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot transition from %s to %s", e.TaskID, e.From, e.To)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// WorkFailure wraps an error returned by a task's work, or a panic raised
// by it. It is what Task.Err returns for a FAILED task.
type WorkFailure struct {
	TaskID   string
	Cause    error
	Panicked bool
	// Stack is the goroutine stack at the point of the panic. It is only
	// logged, never returned to clients.
	Stack []byte
}

func (e *WorkFailure) Error() string {
	if e.Panicked {
		return fmt.Sprintf("task %s panicked: %v", e.TaskID, e.Cause)
	}
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *WorkFailure) Unwrap() error {
	return e.Cause
}

// panicCause converts a recovered value into an error.
func panicCause(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
