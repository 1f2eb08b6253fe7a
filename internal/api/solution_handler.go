package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/solution-server/internal/api/shared"
	"github.com/phrazzld/solution-server/internal/solution"
	"github.com/phrazzld/solution-server/internal/task"
)

// SolutionService is the part of the solution domain used by the HTTP handlers.
type SolutionService interface {
	Index() solution.IndexView
	Catalogs() []solution.CatalogInfo
	AddCatalog(ctx context.Context, src string) (int, error)
	RemoveCatalog(src string) error
	UpdateCatalog(ctx context.Context, name string) ([]solution.Changes, error)
	Status(ref solution.Ref) (solution.SolutionStatus, error)
	RecentlyInstalled() []solution.RecentItem
	RecentlyLaunched() []solution.RecentItem
	Search(q string, limit int) ([]solution.SearchHit, error)

	Install(ref solution.Ref) task.WorkFunc
	Run(ref solution.Ref, args []string) task.WorkFunc
	Test(ref solution.Ref) task.WorkFunc
	Uninstall(ref solution.Ref) task.WorkFunc
	Clone(src, targetDir, name string) (task.WorkFunc, error)
	Deploy(req solution.DeployRequest) (task.WorkFunc, error)
	Upgrade(name string) task.WorkFunc
}

// SolutionHandler serves the solution routes. Long operations are submitted
// to the task manager and answered with the task id.
type SolutionHandler struct {
	solutions SolutionService
	tasks     TaskManager
}

// NewSolutionHandler creates a SolutionHandler.
func NewSolutionHandler(solutions SolutionService, tasks TaskManager) *SolutionHandler {
	return &SolutionHandler{solutions: solutions, tasks: tasks}
}

// RegisterRoutes mounts the solution routes on r.
func (h *SolutionHandler) RegisterRoutes(r chi.Router) {
	for _, action := range []struct {
		prefix string
		submit func(solution.Ref, *http.Request) task.WorkFunc
	}{
		{"/install", func(ref solution.Ref, _ *http.Request) task.WorkFunc { return h.solutions.Install(ref) }},
		{"/run", func(ref solution.Ref, r *http.Request) task.WorkFunc { return h.solutions.Run(ref, runArgs(r)) }},
		{"/test", func(ref solution.Ref, _ *http.Request) task.WorkFunc { return h.solutions.Test(ref) }},
		{"/uninstall", func(ref solution.Ref, _ *http.Request) task.WorkFunc { return h.solutions.Uninstall(ref) }},
	} {
		handler := h.solutionAction(action.submit)
		r.Get(action.prefix+"/{catalog}/{group}/{name}/{version}", handler)
		r.Get(action.prefix+"/{group}/{name}/{version}", handler)
	}

	r.Get("/status/{catalog}/{group}/{name}/{version}", h.SolutionStatus)
	r.Get("/clone", h.Clone)
	r.Get("/clone/{template}", h.Clone)
	r.Get("/deploy", h.Deploy)
	r.Get("/upgrade", h.Upgrade)

	r.Get("/index", h.Index)
	r.Get("/catalogs", h.Catalogs)
	r.Get("/add-catalog", h.AddCatalog)
	r.Get("/remove-catalog", h.RemoveCatalog)
	r.Get("/update", h.Update)
	r.Get("/recently-installed", h.RecentlyInstalled)
	r.Get("/recently-launched", h.RecentlyLaunched)
	r.Get("/search", h.Search)
}

func (h *SolutionHandler) solutionAction(build func(solution.Ref, *http.Request) task.WorkFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := refFromPath(r)
		if err != nil {
			HandleAPIError(w, r, err)
			return
		}
		h.submit(w, r, build(ref, r))
	}
}

// SolutionStatus handles GET /status/{catalog}/{group}/{name}/{version}
func (h *SolutionHandler) SolutionStatus(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromPath(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	status, err := h.solutions.Status(ref)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.WriteJSON(w, r, http.StatusOK, status)
}

// Clone handles GET /clone/{template} and GET /clone?path=
func (h *SolutionHandler) Clone(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := CloneRequest{
		Source:    q.Get("path"),
		TargetDir: q.Get("target_dir"),
		Name:      q.Get("name"),
	}
	if template := chi.URLParam(r, "template"); template != "" {
		req.Source = template
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.WriteError(w, r, http.StatusBadRequest, shared.ValidationMessage(err))
		return
	}

	work, err := h.solutions.Clone(req.Source, req.TargetDir, req.Name)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	h.submit(w, r, work)
}

// Deploy handles GET /deploy
func (h *SolutionHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := DeployRequest{
		Path:        q.Get("path"),
		CatalogName: q.Get("catalog_name"),
		GitName:     q.Get("git_name"),
		GitEmail:    q.Get("git_email"),
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.WriteError(w, r, http.StatusBadRequest, shared.ValidationMessage(err))
		return
	}

	work, err := h.solutions.Deploy(solution.DeployRequest{
		Path:        req.Path,
		CatalogName: req.CatalogName,
		GitName:     req.GitName,
		GitEmail:    req.GitEmail,
	})
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	h.submit(w, r, work)
}

// Upgrade handles GET /upgrade?name=
func (h *SolutionHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.solutions.Upgrade(r.URL.Query().Get("name")))
}

// Index handles GET /index
func (h *SolutionHandler) Index(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, r, http.StatusOK, h.solutions.Index())
}

// Catalogs handles GET /catalogs
func (h *SolutionHandler) Catalogs(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"catalogs": h.solutions.Catalogs(),
	})
}

// AddCatalog handles GET /add-catalog?src=
func (h *SolutionHandler) AddCatalog(w http.ResponseWriter, r *http.Request) {
	req := CatalogSourceRequest{Src: r.URL.Query().Get("src")}
	if err := shared.ValidateRequest(req); err != nil {
		shared.WriteError(w, r, http.StatusBadRequest, shared.ValidationMessage(err))
		return
	}

	id, err := h.solutions.AddCatalog(r.Context(), req.Src)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.WriteJSON(w, r, http.StatusOK, AddCatalogResponse{CatalogID: id})
}

// RemoveCatalog handles GET /remove-catalog?src=
func (h *SolutionHandler) RemoveCatalog(w http.ResponseWriter, r *http.Request) {
	req := CatalogSourceRequest{Src: r.URL.Query().Get("src")}
	if err := shared.ValidateRequest(req); err != nil {
		shared.WriteError(w, r, http.StatusBadRequest, shared.ValidationMessage(err))
		return
	}

	if err := h.solutions.RemoveCatalog(req.Src); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.WriteJSON(w, r, http.StatusOK, struct{}{})
}

// Update handles GET /update?name=
func (h *SolutionHandler) Update(w http.ResponseWriter, r *http.Request) {
	changes, err := h.solutions.UpdateCatalog(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.WriteJSON(w, r, http.StatusOK, UpdateResponse{Changes: changes})
}

// RecentlyInstalled handles GET /recently-installed
func (h *SolutionHandler) RecentlyInstalled(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, r, http.StatusOK, RecentResponse{Solutions: h.solutions.RecentlyInstalled()})
}

// RecentlyLaunched handles GET /recently-launched
func (h *SolutionHandler) RecentlyLaunched(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, r, http.StatusOK, RecentResponse{Solutions: h.solutions.RecentlyLaunched()})
}

// Search handles GET /search?q=&limit=
func (h *SolutionHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := SearchRequest{Query: q.Get("q")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			shared.WriteError(w, r, http.StatusBadRequest, "Invalid parameter: limit")
			return
		}
		req.Limit = limit
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.WriteError(w, r, http.StatusBadRequest, shared.ValidationMessage(err))
		return
	}

	hits, err := h.solutions.Search(req.Query, req.Limit)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.WriteJSON(w, r, http.StatusOK, SearchResponse{Query: req.Query, Hits: hits})
}

func (h *SolutionHandler) submit(w http.ResponseWriter, r *http.Request, work task.WorkFunc) {
	id, err := h.tasks.Submit(work)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.WriteJSON(w, r, http.StatusOK, SubmitResponse{ID: id})
}

// refFromPath reads solution coordinates, and an optional catalog, from the
// URL path.
func refFromPath(r *http.Request) (solution.Ref, error) {
	coords, err := solution.NewCoordinates(
		chi.URLParam(r, "group"),
		chi.URLParam(r, "name"),
		chi.URLParam(r, "version"),
	)
	if err != nil {
		return solution.Ref{}, err
	}
	return solution.Ref{Catalog: chi.URLParam(r, "catalog"), Coordinates: coords}, nil
}

// runArgs turns query parameters into "--key value" arguments, ordered by key.
func runArgs(r *http.Request) []string {
	q := r.URL.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		for _, v := range q[k] {
			args = append(args, "--"+k, v)
		}
	}
	return args
}
