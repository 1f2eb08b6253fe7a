package api

import (
	"net/http"

	"github.com/phrazzld/solution-server/internal/api/shared"
)

// ConfigHandler serves GET /config with a fixed view of the effective
// configuration. The view must not contain secrets.
func ConfigHandler(view interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shared.WriteJSON(w, r, http.StatusOK, view)
	}
}
