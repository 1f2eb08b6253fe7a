package task

import (
	"context"
	"log/slog"
	"sync"
)

// TaskQueue is an unbounded FIFO hand-off between submitters and workers.
// Put never blocks and never rejects for capacity, since a task is already
// visible in the registry when it is queued. The unfinished count moves
// under the same lock as the items so a drain check cannot observe zero
// while a Put is in flight.
type TaskQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	items      []*Task
	unfinished int
	closed     bool
	logger     *slog.Logger
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue(logger *slog.Logger) *TaskQueue {
	q := &TaskQueue{
		logger: logger.With("component", "task_queue"),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends a task and wakes one waiting worker.
// Returns ErrQueueClosed after Close.
func (q *TaskQueue) Put(t *Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, t)
	q.unfinished++
	queueLen := len(q.items)
	q.cond.Signal()
	q.mu.Unlock()

	q.logger.Debug("task enqueued",
		"task_id", t.ID(),
		"queue_len", queueLen)
	return nil
}

// Get removes and returns the oldest task, blocking while the queue is
// empty. It returns ctx.Err() once ctx is done, and ErrQueueClosed once the
// queue is closed and drained.
func (q *TaskQueue) Get(ctx context.Context) (*Task, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(q.items) > 0 {
			t := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			return t, nil
		}
		if q.closed {
			return nil, ErrQueueClosed
		}
		q.cond.Wait()
	}
}

// TaskDone acknowledges that one task taken with Get has been fully processed.
func (q *TaskQueue) TaskDone() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished == 0 {
		return ErrTaskDoneUnderflow
	}
	q.unfinished--
	return nil
}

// UnfinishedCount returns the number of tasks put but not yet acknowledged
// with TaskDone.
func (q *TaskQueue) UnfinishedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Len returns the number of tasks waiting to be picked up.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting tasks. Tasks already queued can
// still be taken with Get. Close is idempotent.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.logger.Info("task queue closed", "pending", len(q.items), "unfinished", q.unfinished)
}
