package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/solution-server/internal/api/shared"
	"github.com/phrazzld/solution-server/internal/redact"
	"github.com/phrazzld/solution-server/internal/task"
)

// TaskManager is the part of the task engine used by the HTTP handlers.
type TaskManager interface {
	Submit(work task.WorkFunc) (string, error)
	GetTask(id string) (*task.Task, error)
	Tasks() []task.Info
	Stats() task.Stats
}

// TaskHandler serves task status, logs and listings.
type TaskHandler struct {
	tasks TaskManager
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskManager) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// RegisterRoutes mounts the task routes on r.
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status/{taskID}", h.GetStatus)
	r.Get("/logs/{taskID}", h.GetLogs)
	r.Get("/tasks", h.ListTasks)
}

// GetStatus handles GET /status/{taskID}
func (h *TaskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.WriteJSON(w, r, http.StatusOK, statusOf(t.Snapshot()))
}

// GetLogs handles GET /logs/{taskID}
func (h *TaskHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.WriteJSON(w, r, http.StatusOK, TaskLogsResponse{
		ID:      t.ID(),
		Status:  t.Status().String(),
		Records: t.LogHandler().Records(),
	})
}

// ListTasks handles GET /tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	infos := h.tasks.Tasks()
	resp := TaskListResponse{
		Tasks: make([]TaskStatusResponse, 0, len(infos)),
		Stats: h.tasks.Stats(),
	}
	for _, info := range infos {
		resp.Tasks = append(resp.Tasks, statusOf(info))
	}
	shared.WriteJSON(w, r, http.StatusOK, resp)
}

func statusOf(info task.Info) TaskStatusResponse {
	var errText string
	if info.Err != nil {
		errText = redact.Error(info.Err)
	}
	return toStatusResponse(info, errText)
}
