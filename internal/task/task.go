package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a task
type Status string

// Possible task status values. FINISHED and FAILED are terminal.
const (
	StatusCreated  Status = "CREATED"
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// WorkFunc is one deferred unit of work. The context carries the
// task-scoped logger (see logger.FromContext) and tracing span; it is not
// cancelled when the server shuts down. A non-nil error or a panic fails
// the task.
type WorkFunc func(ctx context.Context) (interface{}, error)

// Task is one submitted unit of work and its outcome. Identity fields are
// immutable; lifecycle fields are written only by the worker executing the
// task and may be read concurrently at any time.
type Task struct {
	id            string
	correlationID uuid.UUID
	work          WorkFunc
	capture       *LogCapture
	createdAt     time.Time

	mu         sync.RWMutex
	status     Status
	result     interface{}
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

func newTask(id string, work WorkFunc) *Task {
	correlationID := uuid.New()
	return &Task{
		id:            id,
		correlationID: correlationID,
		work:          work,
		capture:       NewLogCapture(id, correlationID),
		createdAt:     time.Now(),
		status:        StatusCreated,
	}
}

// ID returns the task identifier ("0", "1", ...).
func (t *Task) ID() string {
	return t.id
}

// CorrelationID returns the identifier attached to every log record and
// event produced for this task.
func (t *Task) CorrelationID() uuid.UUID {
	return t.correlationID
}

// CreatedAt returns the submission time.
func (t *Task) CreatedAt() time.Time {
	return t.createdAt
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Result returns the value produced by a FINISHED task, nil otherwise.
func (t *Task) Result() interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// Err returns the failure of a FAILED task, nil otherwise.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// LogHandler returns the task's log capture. It is the same instance for
// the whole lifetime of the task.
func (t *Task) LogHandler() *LogCapture {
	return t.capture
}

// MarkRunning moves a CREATED task to RUNNING.
func (t *Task) MarkRunning() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusCreated {
		return &TransitionError{TaskID: t.id, From: t.status, To: StatusRunning}
	}
	t.status = StatusRunning
	t.startedAt = time.Now()
	return nil
}

// MarkFinished moves a RUNNING task to FINISHED and stores its result.
func (t *Task) MarkFinished(result interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusRunning {
		return &TransitionError{TaskID: t.id, From: t.status, To: StatusFinished}
	}
	t.status = StatusFinished
	t.result = result
	t.finishedAt = time.Now()
	return nil
}

// MarkFailed moves a RUNNING task to FAILED and stores its error.
func (t *Task) MarkFailed(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusRunning {
		return &TransitionError{TaskID: t.id, From: t.status, To: StatusFailed}
	}
	if err == nil {
		err = errors.New("task failed without an error")
	}
	t.status = StatusFailed
	t.err = err
	t.finishedAt = time.Now()
	return nil
}

// Info is a point-in-time copy of a task's state.
type Info struct {
	ID            string     `json:"id"`
	CorrelationID uuid.UUID  `json:"correlation_id"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Err           error      `json:"-"`
}

// Snapshot returns a consistent copy of the task's state.
func (t *Task) Snapshot() Info {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info := Info{
		ID:            t.id,
		CorrelationID: t.correlationID,
		Status:        t.status,
		CreatedAt:     t.createdAt,
		Err:           t.err,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		info.StartedAt = &started
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		info.FinishedAt = &finished
	}
	return info
}
