package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/solution-server/internal/api"
	apiMiddleware "github.com/phrazzld/solution-server/internal/api/middleware"
)

// setupRouter creates the router with middleware and every route.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/config", api.ConfigHandler(app.configView()))
	r.Method(http.MethodGet, "/events", app.stream)

	api.NewTaskHandler(app.tasks).RegisterRoutes(r)
	api.NewSolutionHandler(app.solutions, app.tasks).RegisterRoutes(r)

	return r
}
