package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/solution-server/internal/solution"
	"github.com/phrazzld/solution-server/internal/task"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err     error
		status  int
		message string
	}{
		{fmt.Errorf("%w: 12", task.ErrTaskNotFound), http.StatusNotFound, "Task not found"},
		{fmt.Errorf("%w: x", solution.ErrCatalogNotFound), http.StatusNotFound, "Catalog not found"},
		{solution.ErrSolutionNotFound, http.StatusNotFound, "Solution not found"},
		{solution.ErrCatalogExists, http.StatusConflict, "Catalog already exists"},
		{fmt.Errorf("cannot install: %w", solution.ErrSolutionBusy), http.StatusConflict, "Solution is busy"},
		{solution.ErrInvalidCoordinates, http.StatusBadRequest, "Invalid solution coordinates"},
		{solution.ErrInvalidSource, http.StatusBadRequest, "Invalid source"},
		{task.ErrManagerClosed, http.StatusServiceUnavailable, "Server is shutting down"},
		{task.ErrQueueClosed, http.StatusServiceUnavailable, "Server is shutting down"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, MapErrorToStatusCode(tt.err))
			assert.Equal(t, tt.message, GetSafeErrorMessage(tt.err))
		})
	}

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}
