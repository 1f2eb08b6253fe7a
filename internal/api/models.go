package api

import (
	"time"

	"github.com/phrazzld/solution-server/internal/solution"
	"github.com/phrazzld/solution-server/internal/task"
)

// Common request/response structures

// SubmitResponse is returned by every route that starts a task.
type SubmitResponse struct {
	ID string `json:"id"`
}

// TaskStatusResponse is the state of one task.
type TaskStatusResponse struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	CorrelationID string     `json:"correlation_id"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// TaskLogsResponse holds the log records captured for a task.
type TaskLogsResponse struct {
	ID      string        `json:"id"`
	Status  string        `json:"status"`
	Records []task.Record `json:"records"`
}

// TaskListResponse lists every task with the manager's counters.
type TaskListResponse struct {
	Tasks []TaskStatusResponse `json:"tasks"`
	Stats task.Stats           `json:"stats"`
}

// AddCatalogResponse is returned when a catalog is added.
type AddCatalogResponse struct {
	CatalogID int `json:"catalog_id"`
}

// UpdateResponse lists the pending changes found by a catalog update.
type UpdateResponse struct {
	Changes []solution.Changes `json:"changes"`
}

// RecentResponse lists recently installed or launched solutions.
type RecentResponse struct {
	Solutions []solution.RecentItem `json:"solutions"`
}

// SearchResponse holds search hits.
type SearchResponse struct {
	Query string               `json:"query"`
	Hits  []solution.SearchHit `json:"hits"`
}

// CloneRequest holds the query parameters of the clone routes.
type CloneRequest struct {
	Source    string `query:"path" validate:"required"`
	TargetDir string `query:"target_dir" validate:"required"`
	Name      string `query:"name" validate:"required"`
}

// DeployRequest holds the query parameters of the deploy route.
type DeployRequest struct {
	Path        string `query:"path" validate:"required"`
	CatalogName string `query:"catalog_name" validate:"required"`
	GitName     string `query:"git_name"`
	GitEmail    string `query:"git_email"`
}

// CatalogSourceRequest holds the src parameter of the catalog routes.
type CatalogSourceRequest struct {
	Src string `query:"src" validate:"required"`
}

// SearchRequest holds the search parameters.
type SearchRequest struct {
	Query string `query:"q" validate:"required"`
	Limit int    `query:"limit" validate:"gte=0,lte=100"`
}

// toStatusResponse converts a task snapshot; error text is redacted by the caller.
func toStatusResponse(info task.Info, errText string) TaskStatusResponse {
	return TaskStatusResponse{
		ID:            info.ID,
		Status:        info.Status.String(),
		CorrelationID: info.CorrelationID.String(),
		CreatedAt:     info.CreatedAt,
		StartedAt:     info.StartedAt,
		FinishedAt:    info.FinishedAt,
		Error:         errText,
	}
}
