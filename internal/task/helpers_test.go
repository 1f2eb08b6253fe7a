package task

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// newStartedManager creates a running manager that is shut down when the
// test ends.
func newStartedManager(t *testing.T, workers int, opts ...Option) *TaskManager {
	t.Helper()

	m := NewTaskManager(ManagerConfig{
		WorkerCount:       workers,
		DrainPollInterval: 5 * time.Millisecond,
	}, setupTestLogger(), opts...)
	m.Start()
	t.Cleanup(func() { m.Shutdown(5 * time.Second) })
	return m
}

// waitForDrain polls the manager until every task is processed, failing the
// test after timeout.
func waitForDrain(t *testing.T, m *TaskManager, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, m.Wait(ctx), "tasks did not finish within %s", timeout)
	require.Equal(t, 0, m.UnfinishedCount())
}

// waitStatus polls a task until it reaches want or the deadline passes.
func waitStatus(t *testing.T, task *Task, want Status, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if task.Status() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s: status %s, want %s", task.ID(), task.Status(), want)
}

func noopWork(ctx context.Context) (interface{}, error) {
	return nil, nil
}
