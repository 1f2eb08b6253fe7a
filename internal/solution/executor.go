package solution

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/phrazzld/solution-server/internal/platform/logger"
)

// ExecutorLoggerName is the logger name attached to command output records.
const ExecutorLoggerName = "solution.executor"

// Command is one process to execute for a solution action.
type Command struct {
	Argv []string
	Dir  string
	Env  []string
}

// Executor runs solution commands.
type Executor interface {
	Execute(ctx context.Context, cmd Command) error
}

// ExitError reports a command that ran and exited with a non-zero status.
type ExitError struct {
	Argv []string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Argv[0], e.Code)
}

// CommandExecutor runs commands as child processes. Every line the process
// writes is logged through the context logger: stdout at info, stderr at
// warn.
type CommandExecutor struct{}

// NewCommandExecutor creates a CommandExecutor.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

// Execute runs cmd and waits for it. Cancelling ctx kills the process.
func (e *CommandExecutor) Execute(ctx context.Context, cmd Command) error {
	if len(cmd.Argv) == 0 {
		return errors.New("empty command")
	}

	log := logger.FromContext(ctx).With("logger", ExecutorLoggerName)

	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}

	stdout, err := c.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout: %w", err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr: %w", err)
	}

	log.Debug("executing command", "argv", cmd.Argv, "dir", cmd.Dir)
	if err := c.Start(); err != nil {
		return fmt.Errorf("failed to start %q: %w", cmd.Argv[0], err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdout, log, slog.LevelInfo)
	go streamLines(&wg, stderr, log, slog.LevelWarn)
	// Pipes must be drained before Wait closes them.
	wg.Wait()

	if err := c.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("command %q interrupted: %w", cmd.Argv[0], ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Argv: cmd.Argv, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("command %q failed: %w", cmd.Argv[0], err)
	}
	return nil
}

func streamLines(wg *sync.WaitGroup, r io.Reader, log *slog.Logger, level slog.Level) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Log(context.Background(), level, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Warn("failed to read command output", "error", err)
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}
