package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/phrazzld/solution-server/internal/api/shared"
	"github.com/phrazzld/solution-server/internal/solution"
	"github.com/phrazzld/solution-server/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes so that
// internal error types never reach clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, solution.ErrCatalogNotFound),
		errors.Is(err, solution.ErrSolutionNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, solution.ErrCatalogExists),
		errors.Is(err, solution.ErrSolutionBusy):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, solution.ErrInvalidCoordinates),
		errors.Is(err, solution.ErrInvalidSource),
		errors.Is(err, task.ErrNilWork):
		return http.StatusBadRequest

	// The task engine is shutting down
	case errors.Is(err, task.ErrManagerClosed),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err without
// internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, solution.ErrCatalogNotFound):
		return "Catalog not found"
	case errors.Is(err, solution.ErrSolutionNotFound):
		return "Solution not found"
	case errors.Is(err, solution.ErrCatalogExists):
		return "Catalog already exists"
	case errors.Is(err, solution.ErrSolutionBusy):
		return "Solution is busy"
	case errors.Is(err, solution.ErrInvalidCoordinates):
		return "Invalid solution coordinates"
	case errors.Is(err, solution.ErrInvalidSource):
		return "Invalid source"
	case errors.Is(err, task.ErrManagerClosed),
		errors.Is(err, task.ErrQueueClosed):
		return "Server is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// shutdownRetryAfter is the Retry-After hint sent while shutting down.
const shutdownRetryAfter = 5 * time.Second

// HandleAPIError writes the mapped status and safe message for err and logs
// the redacted error.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)
	if status == http.StatusServiceUnavailable {
		shared.WriteUnavailable(w, r, shutdownRetryAfter, GetSafeErrorMessage(err), err)
		return
	}
	shared.WriteFailure(w, r, status, GetSafeErrorMessage(err), err)
}
