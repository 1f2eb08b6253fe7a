package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ProcessFunc handles one task taken from the queue. It must not panic.
type ProcessFunc func(t *Task, workerID int)

// WorkerPool manages a fixed pool of worker goroutines that take tasks
// from a TaskQueue one at a time.
type WorkerPool struct {
	// queue provides the tasks to be processed
	queue *TaskQueue

	// workerCount is the number of concurrent workers to start
	workerCount int

	// process executes a single task
	process ProcessFunc

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	logger    *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 2,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(queue *TaskQueue, config WorkerPoolConfig, process ProcessFunc, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:       queue,
		workerCount: workerCount,
		process:     process,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Size returns the number of workers in the pool.
func (p *WorkerPool) Size() int {
	return p.workerCount
}

// Start launches the workers. Calling Start again has no effect.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", "worker_count", p.workerCount)
		for i := 0; i < p.workerCount; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Cancel asks idle workers to exit. A worker busy with a task finishes it
// first and then exits without taking another.
func (p *WorkerPool) Cancel() {
	p.cancel()
}

// Wait blocks until every worker has exited or timeout elapses, and reports
// whether all workers exited.
func (p *WorkerPool) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// worker processes tasks until the pool is cancelled or the queue is
// closed and empty.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		t, err := p.queue.Get(p.ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				p.logger.Debug("task queue closed, stopping worker", "worker_id", id)
			} else {
				p.logger.Debug("stopping worker", "worker_id", id)
			}
			return
		}

		p.process(t, id)
	}
}
