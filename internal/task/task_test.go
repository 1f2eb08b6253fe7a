package task

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	t.Parallel()

	assert.False(t, StatusCreated.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusFinished.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.Equal(t, "RUNNING", StatusRunning.String())
}

func TestNewTask(t *testing.T) {
	t.Parallel()

	task := newTask("3", noopWork)

	assert.Equal(t, "3", task.ID())
	assert.Equal(t, StatusCreated, task.Status())
	assert.NotEqual(t, uuid.Nil, task.CorrelationID())
	assert.NotNil(t, task.LogHandler())
	assert.Same(t, task.LogHandler(), task.LogHandler(), "log handler is stable")
	assert.Nil(t, task.Result())
	assert.NoError(t, task.Err())
	assert.False(t, task.CreatedAt().IsZero())
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("finish", func(t *testing.T) {
		task := newTask("0", noopWork)

		require.NoError(t, task.MarkRunning())
		assert.Equal(t, StatusRunning, task.Status())
		require.NoError(t, task.MarkFinished("done"))
		assert.Equal(t, StatusFinished, task.Status())
		assert.Equal(t, "done", task.Result())
		assert.NoError(t, task.Err())

		info := task.Snapshot()
		require.NotNil(t, info.StartedAt)
		require.NotNil(t, info.FinishedAt)
		assert.False(t, info.FinishedAt.Before(*info.StartedAt))
	})

	t.Run("fail", func(t *testing.T) {
		task := newTask("1", noopWork)
		cause := errors.New("exit status 2")

		require.NoError(t, task.MarkRunning())
		require.NoError(t, task.MarkFailed(cause))
		assert.Equal(t, StatusFailed, task.Status())
		assert.Equal(t, cause, task.Err())
		assert.Nil(t, task.Result())
	})

	t.Run("fail without error keeps an error", func(t *testing.T) {
		task := newTask("2", noopWork)

		require.NoError(t, task.MarkRunning())
		require.NoError(t, task.MarkFailed(nil))
		assert.Error(t, task.Err())
	})
}

func TestTaskInvalidTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		setup  func(*Task)
		action func(*Task) error
		from   Status
		to     Status
	}{
		{
			name:   "finish before running",
			setup:  func(*Task) {},
			action: func(task *Task) error { return task.MarkFinished(nil) },
			from:   StatusCreated,
			to:     StatusFinished,
		},
		{
			name:   "fail before running",
			setup:  func(*Task) {},
			action: func(task *Task) error { return task.MarkFailed(errors.New("x")) },
			from:   StatusCreated,
			to:     StatusFailed,
		},
		{
			name:   "run twice",
			setup:  func(task *Task) { _ = task.MarkRunning() },
			action: func(task *Task) error { return task.MarkRunning() },
			from:   StatusRunning,
			to:     StatusRunning,
		},
		{
			name: "finish twice",
			setup: func(task *Task) {
				_ = task.MarkRunning()
				_ = task.MarkFinished("first")
			},
			action: func(task *Task) error { return task.MarkFinished("second") },
			from:   StatusFinished,
			to:     StatusFinished,
		},
		{
			name: "fail after finish",
			setup: func(task *Task) {
				_ = task.MarkRunning()
				_ = task.MarkFinished("first")
			},
			action: func(task *Task) error { return task.MarkFailed(errors.New("late")) },
			from:   StatusFinished,
			to:     StatusFailed,
		},
		{
			name: "run after failure",
			setup: func(task *Task) {
				_ = task.MarkRunning()
				_ = task.MarkFailed(errors.New("boom"))
			},
			action: func(task *Task) error { return task.MarkRunning() },
			from:   StatusFailed,
			to:     StatusRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newTask("9", noopWork)
			tt.setup(task)
			before := task.Snapshot()

			err := tt.action(task)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			var transitionErr *TransitionError
			require.ErrorAs(t, err, &transitionErr)
			assert.Equal(t, "9", transitionErr.TaskID)
			assert.Equal(t, tt.from, transitionErr.From)
			assert.Equal(t, tt.to, transitionErr.To)

			after := task.Snapshot()
			assert.Equal(t, before.Status, after.Status, "state must not be overwritten")
			assert.Equal(t, before.Err, after.Err)
		})
	}

	t.Run("result is kept after rejected finish", func(t *testing.T) {
		task := newTask("10", noopWork)
		require.NoError(t, task.MarkRunning())
		require.NoError(t, task.MarkFinished("first"))
		require.Error(t, task.MarkFinished("second"))
		assert.Equal(t, "first", task.Result())
	})
}

func TestTaskConcurrentReads(t *testing.T) {
	t.Parallel()

	task := newTask("0", noopWork)
	valid := map[Status]bool{StatusCreated: true, StatusRunning: true, StatusFinished: true}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					assert.True(t, valid[task.Status()])
					_ = task.Snapshot()
				}
			}
		}()
	}

	require.NoError(t, task.MarkRunning())
	require.NoError(t, task.MarkFinished(42))
	close(stop)
	wg.Wait()

	assert.Equal(t, 42, task.Result())
}

func TestWorkFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("solution exited with status 1")
	failure := &WorkFailure{TaskID: "4", Cause: cause}
	assert.Equal(t, "task 4 failed: solution exited with status 1", failure.Error())
	assert.ErrorIs(t, failure, cause)

	panicked := &WorkFailure{TaskID: "5", Cause: panicCause("nil map"), Panicked: true}
	assert.Equal(t, "task 5 panicked: nil map", panicked.Error())

	wrapped := panicCause(cause)
	assert.Same(t, cause, wrapped)
}
