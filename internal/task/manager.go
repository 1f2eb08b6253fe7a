package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/solution-server/internal/events"
	"github.com/phrazzld/solution-server/internal/platform/logger"
	"github.com/phrazzld/solution-server/internal/platform/telemetry"
	"github.com/phrazzld/solution-server/internal/redact"
)

// ManagerConfig holds configuration for the task manager
type ManagerConfig struct {
	// WorkerCount is the fixed number of workers executing tasks
	WorkerCount int

	// DrainPollInterval is how often Wait re-checks the unfinished count
	DrainPollInterval time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with reasonable defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:       DefaultWorkerPoolConfig().WorkerCount,
		DrainPollInterval: 50 * time.Millisecond,
	}
}

// Option customizes a TaskManager.
type Option func(*TaskManager)

// WithEventEmitter publishes a TaskEvent on every status change. The
// CREATED event is emitted while the registry is locked, so handlers must
// not call back into the manager.
func WithEventEmitter(emitter events.EventEmitter) Option {
	return func(m *TaskManager) {
		m.emitter = emitter
	}
}

// WithTracer wraps every task execution in a span.
func WithTracer(tracer *telemetry.Tracer) Option {
	return func(m *TaskManager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// Stats is a snapshot of the manager's counters.
type Stats struct {
	Workers    int    `json:"workers"`
	Queued     int    `json:"queued"`
	Running    int64  `json:"running"`
	Unfinished int    `json:"unfinished"`
	Submitted  uint64 `json:"submitted"`
	Finished   int64  `json:"finished"`
	Failed     int64  `json:"failed"`
}

// TaskManager owns the task registry, the id allocator, the queue and the
// worker pool. All methods are safe for concurrent use.
type TaskManager struct {
	mu       sync.RWMutex
	registry map[string]*Task
	nextID   uint64
	closed   bool

	queue  *TaskQueue
	pool   *WorkerPool
	config ManagerConfig
	logger *slog.Logger

	emitter events.EventEmitter
	tracer  *telemetry.Tracer

	running  atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64

	shutdownOnce sync.Once
	drained      bool
}

// NewTaskManager creates a manager. Workers are not running until Start.
func NewTaskManager(config ManagerConfig, logger *slog.Logger, opts ...Option) *TaskManager {
	if config.DrainPollInterval <= 0 {
		config.DrainPollInterval = DefaultManagerConfig().DrainPollInterval
	}

	m := &TaskManager{
		registry: make(map[string]*Task),
		config:   config,
		logger:   logger.With("component", "task_manager"),
		tracer:   telemetry.NewTracer(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.queue = NewTaskQueue(logger)
	m.pool = NewWorkerPool(m.queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, m.processTask, m.logger)
	return m
}

// Start launches the worker pool. It is safe to call more than once.
func (m *TaskManager) Start() {
	m.pool.Start()
}

// Submit registers work as a new CREATED task, queues it, and returns its id.
// The task is visible to GetTask before it can be picked up by a worker.
// Submit never blocks on the pool and never fails because of the eventual
// outcome of the work.
func (m *TaskManager) Submit(work WorkFunc) (string, error) {
	if work == nil {
		return "", ErrNilWork
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	id := strconv.FormatUint(m.nextID, 10)
	m.nextID++
	t := newTask(id, work)
	m.registry[id] = t
	// CREATED goes out before the task is queued, so no worker can emit
	// RUNNING ahead of it. Queued under the registry lock so queue order
	// matches id order and shutdown cannot slip in between registration
	// and enqueue.
	m.emit(t, StatusCreated)
	err := m.queue.Put(t)
	if err != nil {
		delete(m.registry, id)
	}
	m.mu.Unlock()

	if err != nil {
		// Unreachable while closed is guarded above; a failure here means
		// the queue was closed behind the manager's back.
		m.logger.Error("failed to enqueue registered task", "task_id", id, "error", err)
		return "", fmt.Errorf("enqueue task %s: %w", id, err)
	}

	m.logger.Debug("task submitted", "task_id", id, "correlation_id", t.CorrelationID().String())
	return id, nil
}

// GetTask returns the live task for id, or an error wrapping ErrTaskNotFound.
func (m *TaskManager) GetTask(id string) (*Task, error) {
	m.mu.RLock()
	t, ok := m.registry[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// Tasks returns snapshots of every registered task in id order.
func (m *TaskManager) Tasks() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.registry))
	for i := uint64(0); i < m.nextID; i++ {
		if t, ok := m.registry[strconv.FormatUint(i, 10)]; ok {
			infos = append(infos, t.Snapshot())
		}
	}
	return infos
}

// UnfinishedCount returns the number of tasks submitted but not yet fully
// processed by a worker.
func (m *TaskManager) UnfinishedCount() int {
	return m.queue.UnfinishedCount()
}

// Stats returns the manager's counters.
func (m *TaskManager) Stats() Stats {
	m.mu.RLock()
	submitted := m.nextID
	m.mu.RUnlock()

	return Stats{
		Workers:    m.pool.Size(),
		Queued:     m.queue.Len(),
		Running:    m.running.Load(),
		Unfinished: m.queue.UnfinishedCount(),
		Submitted:  submitted,
		Finished:   m.finished.Load(),
		Failed:     m.failed.Load(),
	}
}

// Wait polls until every submitted task has been processed or ctx is done.
// It returns ctx.Err() on timeout. There is deliberately no unbounded join.
func (m *TaskManager) Wait(ctx context.Context) error {
	if m.queue.UnfinishedCount() == 0 {
		return nil
	}

	ticker := time.NewTicker(m.config.DrainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.queue.UnfinishedCount() == 0 {
				return nil
			}
		}
	}
}

// Shutdown stops accepting tasks, waits up to timeout for queued and running
// tasks to complete, then stops the workers. It never interrupts a running
// task; on timeout idle workers exit and busy ones exit after their current
// task. It reports whether all tasks completed within timeout. Subsequent
// calls return the first result.
func (m *TaskManager) Shutdown(timeout time.Duration) bool {
	m.shutdownOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		m.drained = m.Wait(ctx) == nil
		m.queue.Close()

		if !m.drained {
			m.pool.Cancel()
			// Idle workers exit at once; busy ones keep running their task.
			m.pool.Wait(m.config.DrainPollInterval)
			m.logger.Warn("shutdown timed out with unfinished tasks",
				"timeout", timeout,
				"unfinished", m.queue.UnfinishedCount(),
				"running", m.running.Load())
			return
		}

		m.pool.Cancel()
		remaining := timeout - time.Since(start)
		if remaining < m.config.DrainPollInterval {
			remaining = m.config.DrainPollInterval
		}
		if !m.pool.Wait(remaining) {
			m.logger.Warn("workers did not exit after drain")
		}
		m.logger.Info("task manager shut down", "duration", time.Since(start))
	})
	return m.drained
}

// processTask runs one task to a terminal state. TaskDone is deferred so it
// runs exactly once whatever happens inside.
func (m *TaskManager) processTask(t *Task, workerID int) {
	log := m.logger.With(
		"task_id", t.ID(),
		"correlation_id", t.CorrelationID().String(),
		"worker_id", workerID,
	)

	defer func() {
		if err := m.queue.TaskDone(); err != nil {
			log.Error("failed to acknowledge task", "error", err)
		}
	}()

	if err := t.MarkRunning(); err != nil {
		log.Error("invalid task transition", "error", err)
		return
	}
	m.running.Add(1)
	defer m.running.Add(-1)
	m.emit(t, StatusRunning)

	result, err := m.execute(t, workerID)

	if err != nil {
		if markErr := t.MarkFailed(err); markErr != nil {
			log.Error("invalid task transition", "error", markErr)
			return
		}
		m.failed.Add(1)
		log.Warn("task failed", "error", redact.Error(err))
		m.emit(t, StatusFailed)
		return
	}

	if markErr := t.MarkFinished(result); markErr != nil {
		log.Error("invalid task transition", "error", markErr)
		return
	}
	m.finished.Add(1)
	log.Info("task finished")
	m.emit(t, StatusFinished)
}

// execute invokes the work inside a span and an attached log capture. The
// capture is detached before execute returns, so every record is final by
// the time the task becomes terminal.
func (m *TaskManager) execute(t *Task, workerID int) (interface{}, error) {
	ctx, span := m.tracer.StartTaskSpan(context.Background(), telemetry.TaskSpanOptions{
		TaskID:        t.ID(),
		CorrelationID: t.CorrelationID().String(),
		WorkerID:      workerID,
	})

	ctx, detach := t.LogHandler().Attach(ctx, m.logger.With("worker_id", workerID))
	defer detach()

	taskLog := logger.FromContext(ctx)
	taskLog.Info("task started")

	result, err := invoke(ctx, t)
	if err != nil {
		if wf, ok := err.(*WorkFailure); ok && wf.Panicked {
			m.logger.Error("task panicked",
				"task_id", t.ID(),
				"worker_id", workerID,
				"stack", string(wf.Stack))
		}
		taskLog.Error("task execution failed", "error", err.Error())
		m.tracer.EndTaskSpan(span, StatusFailed.String(), err)
		return nil, err
	}

	taskLog.Info("task execution completed")
	m.tracer.EndTaskSpan(span, StatusFinished.String(), nil)
	return result, nil
}

// invoke calls the work and converts both returned errors and panics into
// a *WorkFailure.
func invoke(ctx context.Context, t *Task) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &WorkFailure{
				TaskID:   t.ID(),
				Cause:    panicCause(r),
				Panicked: true,
				Stack:    debug.Stack(),
			}
		}
	}()

	result, err = t.work(ctx)
	if err != nil {
		return nil, &WorkFailure{TaskID: t.ID(), Cause: err}
	}
	return result, nil
}

func (m *TaskManager) emit(t *Task, status Status) {
	if m.emitter == nil {
		return
	}

	var eventType string
	switch status {
	case StatusCreated:
		eventType = events.TypeTaskCreated
	case StatusRunning:
		eventType = events.TypeTaskRunning
	case StatusFinished:
		eventType = events.TypeTaskFinished
	default:
		eventType = events.TypeTaskFailed
	}

	event, err := events.NewTaskEvent(eventType, t.ID(), t.CorrelationID(), status.String(), nil)
	if err != nil {
		m.logger.Warn("failed to build task event", "task_id", t.ID(), "error", err)
		return
	}
	if status == StatusFailed {
		event.Error = redact.Error(t.Err())
	}

	if err := m.emitter.EmitEvent(context.Background(), event); err != nil {
		m.logger.Warn("failed to emit task event", "task_id", t.ID(), "event_type", eventType, "error", err)
	}
}
