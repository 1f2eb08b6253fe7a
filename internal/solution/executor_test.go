package solution

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/solution-server/internal/task"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandExecutorStreamsOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	capture := task.NewLogCapture("0", uuid.New())
	ctx, detach := capture.Attach(context.Background(), setupTestLogger())

	err := NewCommandExecutor().Execute(ctx, Command{
		Argv: []string{"sh", "-c", `echo "run_start $GREETING"; echo "warning line" >&2; echo run_end`},
		Env:  []string{"GREETING=hello"},
	})
	detach()
	require.NoError(t, err)

	assert.True(t, capture.Contains("run_start hello"))
	assert.True(t, capture.Contains("run_end"))
	assert.True(t, capture.Contains("warning line"))

	for _, rec := range capture.Records() {
		if rec.Message == "warning line" {
			assert.Equal(t, "WARN", rec.Level.String())
			assert.Equal(t, ExecutorLoggerName, rec.Logger)
		}
	}
}

func TestCommandExecutorExitCode(t *testing.T) {
	t.Parallel()
	requireShell(t)

	err := NewCommandExecutor().Execute(context.Background(), Command{
		Argv: []string{"sh", "-c", "exit 3"},
	})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, err.Error(), "exited with status 3")
}

func TestCommandExecutorErrors(t *testing.T) {
	t.Parallel()

	err := NewCommandExecutor().Execute(context.Background(), Command{})
	assert.Error(t, err)

	err = NewCommandExecutor().Execute(context.Background(), Command{
		Argv: []string{"definitely-not-a-real-binary-" + uuid.NewString()},
	})
	assert.ErrorContains(t, err, "failed to start")
}

func TestCommandExecutorCancel(t *testing.T) {
	t.Parallel()
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewCommandExecutor().Execute(ctx, Command{Argv: []string{"sh", "-c", "exec sleep 5"}})
	assert.ErrorContains(t, err, "interrupted")
	assert.Less(t, time.Since(start), 4*time.Second)
}
