// Package shutdown coordinates graceful process shutdown.
//
// Handlers are registered under a phase. Phases run in ascending order;
// handlers sharing a phase run concurrently. The server registers the HTTP
// listener first, then the task engine drain, then telemetry flush.
package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrTimeout is returned when the context ends before every phase ran.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed is returned when at least one handler returned an error.
	ErrHandlerFailed = errors.New("one or more shutdown handlers failed")
)

// Standard phases.
const (
	PhaseStopIntake = 10
	PhaseDrain      = 20
	PhaseFlush      = 30
)

// Handler is notified during shutdown.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// Func adapts a function to Handler.
type Func func(ctx context.Context) error

// OnShutdown calls f(ctx).
func (f Func) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult is the outcome of one handler.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result summarizes a completed shutdown.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult
	Err           error
}

// FailedHandlers returns the names of handlers that returned an error.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

type registration struct {
	name    string
	handler Handler
	phase   int
}

// Coordinator runs registered handlers once, in phase order.
type Coordinator struct {
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	handlers []registration

	once    sync.Once
	done    chan struct{}
	result  *Result
	signals chan os.Signal
}

// NewCoordinator creates a coordinator whose signal-triggered shutdowns are
// bounded by timeout.
func NewCoordinator(timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		timeout: timeout,
		logger:  logger.With("component", "shutdown"),
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
}

// Register adds a handler to phase.
func (c *Coordinator) Register(name string, phase int, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: handler, phase: phase})
}

// RegisterFunc adds a function handler to phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, Func(fn))
}

// Shutdown runs all handlers. Only the first call does work; later calls
// wait for it and return its error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.result = c.run(ctx)
		close(c.done)
	})
	<-c.done
	return c.result.Err
}

// ShutdownWithTimeout is Shutdown bounded by the coordinator timeout.
func (c *Coordinator) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals starts shutdown on SIGINT or SIGTERM.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c.signals:
			c.logger.Info("received signal, shutting down", "signal", sig.String())
			_ = c.ShutdownWithTimeout()
		case <-c.done:
		}
		signal.Stop(c.signals)
	}()
}

// Done is closed once shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the shutdown summary, or nil while shutdown has not completed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &Result{Results: make([]HandlerResult, 0, len(handlers))}
	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			result.Err = ErrTimeout
			break
		}
		for _, hr := range c.runPhase(ctx, group) {
			result.Results = append(result.Results, hr)
			if hr.Err != nil && result.Err == nil {
				result.Err = ErrHandlerFailed
			}
		}
	}
	result.TotalDuration = time.Since(start)

	c.logger.Info("shutdown completed",
		"duration", result.TotalDuration,
		"handlers", len(result.Results),
		"failed", result.FailedHandlers())
	return result
}

func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup
	for i, reg := range group {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()
			started := time.Now()
			err := r.handler.OnShutdown(ctx)
			results[idx] = HandlerResult{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(started),
				Err:      err,
			}
			if err != nil {
				c.logger.Error("shutdown handler failed", "handler", r.name, "phase", r.phase, "error", err)
			}
		}(i, reg)
	}
	wg.Wait()
	return results
}

func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i, h := range handlers {
		if i == 0 || h.phase != handlers[i-1].phase {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], h)
	}
	return groups
}
