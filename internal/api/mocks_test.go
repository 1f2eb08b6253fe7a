package api

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/solution-server/internal/solution"
	"github.com/phrazzld/solution-server/internal/task"
)

// mockSolutionService is a testify mock of SolutionService.
type mockSolutionService struct {
	mock.Mock
}

func (m *mockSolutionService) Index() solution.IndexView {
	return m.Called().Get(0).(solution.IndexView)
}

func (m *mockSolutionService) Catalogs() []solution.CatalogInfo {
	return m.Called().Get(0).([]solution.CatalogInfo)
}

func (m *mockSolutionService) AddCatalog(ctx context.Context, src string) (int, error) {
	args := m.Called(ctx, src)
	return args.Int(0), args.Error(1)
}

func (m *mockSolutionService) RemoveCatalog(src string) error {
	return m.Called(src).Error(0)
}

func (m *mockSolutionService) UpdateCatalog(ctx context.Context, name string) ([]solution.Changes, error) {
	args := m.Called(ctx, name)
	changes, _ := args.Get(0).([]solution.Changes)
	return changes, args.Error(1)
}

func (m *mockSolutionService) Status(ref solution.Ref) (solution.SolutionStatus, error) {
	args := m.Called(ref)
	return args.Get(0).(solution.SolutionStatus), args.Error(1)
}

func (m *mockSolutionService) RecentlyInstalled() []solution.RecentItem {
	return m.Called().Get(0).([]solution.RecentItem)
}

func (m *mockSolutionService) RecentlyLaunched() []solution.RecentItem {
	return m.Called().Get(0).([]solution.RecentItem)
}

func (m *mockSolutionService) Search(q string, limit int) ([]solution.SearchHit, error) {
	args := m.Called(q, limit)
	hits, _ := args.Get(0).([]solution.SearchHit)
	return hits, args.Error(1)
}

func (m *mockSolutionService) Install(ref solution.Ref) task.WorkFunc {
	return m.Called(ref).Get(0).(task.WorkFunc)
}

func (m *mockSolutionService) Run(ref solution.Ref, args []string) task.WorkFunc {
	return m.Called(ref, args).Get(0).(task.WorkFunc)
}

func (m *mockSolutionService) Test(ref solution.Ref) task.WorkFunc {
	return m.Called(ref).Get(0).(task.WorkFunc)
}

func (m *mockSolutionService) Uninstall(ref solution.Ref) task.WorkFunc {
	return m.Called(ref).Get(0).(task.WorkFunc)
}

func (m *mockSolutionService) Clone(src, targetDir, name string) (task.WorkFunc, error) {
	args := m.Called(src, targetDir, name)
	work, _ := args.Get(0).(task.WorkFunc)
	return work, args.Error(1)
}

func (m *mockSolutionService) Deploy(req solution.DeployRequest) (task.WorkFunc, error) {
	args := m.Called(req)
	work, _ := args.Get(0).(task.WorkFunc)
	return work, args.Error(1)
}

func (m *mockSolutionService) Upgrade(name string) task.WorkFunc {
	return m.Called(name).Get(0).(task.WorkFunc)
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newTestManager returns a started task manager that shuts down with the test.
func newTestManager(t *testing.T) *task.TaskManager {
	t.Helper()

	m := task.NewTaskManager(task.ManagerConfig{WorkerCount: 2, DrainPollInterval: 5 * time.Millisecond}, setupTestLogger())
	m.Start()
	t.Cleanup(func() { m.Shutdown(5 * time.Second) })
	return m
}

func newTestRouter(solutions SolutionService, tasks TaskManager) chi.Router {
	r := chi.NewRouter()
	NewTaskHandler(tasks).RegisterRoutes(r)
	NewSolutionHandler(solutions, tasks).RegisterRoutes(r)
	return r
}

func waitForTasks(t *testing.T, m *task.TaskManager) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func work(result interface{}, err error) task.WorkFunc {
	return func(ctx context.Context) (interface{}, error) {
		return result, err
	}
}
