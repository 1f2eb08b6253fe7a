package solution

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/solution-server/internal/platform/logger"
	"github.com/phrazzld/solution-server/internal/task"
)

// TemplatePrefix marks a clone source that names a built-in template.
const TemplatePrefix = "template:"

// CatalogTemplate is the built-in template producing an empty catalog.
const CatalogTemplate = "catalog"

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// BaseDir holds the installation directories.
	BaseDir string

	// RecentLimit caps the recently installed and launched lists.
	RecentLimit int

	// HTTPClient fetches remote catalogs. Defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// Service implements the solution operations. Fast reads return directly;
// long operations return a task.WorkFunc for the task manager.
type Service struct {
	collection *Collection
	search     *SearchIndex
	executor   Executor
	baseDir    string
	client     *http.Client
	logger     *slog.Logger
}

// NewService creates a service with an empty collection.
func NewService(cfg ServiceConfig, executor Executor, logger *slog.Logger) (*Service, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("%w: base directory is required", ErrInvalidSource)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	search, err := NewSearchIndex()
	if err != nil {
		return nil, err
	}
	return &Service{
		collection: NewCollection(cfg.RecentLimit),
		search:     search,
		executor:   executor,
		baseDir:    cfg.BaseDir,
		client:     cfg.HTTPClient,
		logger:     logger.With("component", "solution_service"),
	}, nil
}

// Close releases the search index.
func (s *Service) Close() error {
	return s.search.Close()
}

// CatalogInfo summarizes a registered catalog.
type CatalogInfo struct {
	ID             int    `json:"catalog_id"`
	Name           string `json:"name"`
	Src            string `json:"src"`
	Solutions      int    `json:"solutions"`
	PendingUpgrade bool   `json:"pending_upgrade"`
}

// SolutionView is a catalog entry with its installation state.
type SolutionView struct {
	Entry
	Installed bool `json:"installed"`
}

// CatalogView is a catalog with all of its solutions.
type CatalogView struct {
	ID        int            `json:"catalog_id"`
	Name      string         `json:"name"`
	Src       string         `json:"src"`
	Solutions []SolutionView `json:"solutions"`
}

// IndexView is the whole collection.
type IndexView struct {
	Catalogs []CatalogView `json:"catalogs"`
}

// SolutionStatus describes one solution of one catalog.
type SolutionStatus struct {
	Catalog   string `json:"catalog"`
	Group     string `json:"group"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Title     string `json:"title"`
	Installed bool   `json:"installed"`
}

// DeployRequest describes a solution to publish into a local catalog.
type DeployRequest struct {
	Path        string
	CatalogName string
	GitName     string
	GitEmail    string
}

// DeployResult describes a completed deploy.
type DeployResult struct {
	Catalog     string      `json:"catalog"`
	Coordinates Coordinates `json:"coordinates"`
	Path        string      `json:"path"`
}

// AddCatalog registers the catalog at src and returns its id.
func (s *Service) AddCatalog(ctx context.Context, src string) (int, error) {
	source, err := ParseSource(src)
	if err != nil {
		return 0, err
	}
	if _, err := s.collection.CatalogBySource(source.String()); err == nil {
		return 0, fmt.Errorf("%w: source %s", ErrCatalogExists, source)
	}

	index, err := s.fetchIndex(ctx, source)
	if err != nil {
		return 0, err
	}
	cat, err := s.collection.AddCatalog(source, index)
	if err != nil {
		return 0, err
	}
	s.reindex()

	s.logger.Info("catalog added",
		"catalog_id", cat.ID,
		"catalog", cat.Name,
		"src", cat.Source.String(),
		"solutions", len(index.Solutions))
	return cat.ID, nil
}

// RemoveCatalog unregisters the catalog at src.
func (s *Service) RemoveCatalog(src string) error {
	cat, err := s.collection.RemoveCatalog(src)
	if err != nil {
		return err
	}
	s.reindex()
	s.logger.Info("catalog removed", "catalog_id", cat.ID, "catalog", cat.Name)
	return nil
}

// Catalogs lists registered catalogs.
func (s *Service) Catalogs() []CatalogInfo {
	cats := s.collection.Catalogs()
	out := make([]CatalogInfo, 0, len(cats))
	for _, cat := range cats {
		out = append(out, CatalogInfo{
			ID:             cat.ID,
			Name:           cat.Name,
			Src:            cat.Source.String(),
			Solutions:      len(cat.Index.Solutions),
			PendingUpgrade: !diffIndexes(cat.Name, cat.Index, cat.Latest).Empty(),
		})
	}
	return out
}

// Index returns every catalog with its solutions and installation state.
func (s *Service) Index() IndexView {
	cats := s.collection.Catalogs()
	view := IndexView{Catalogs: make([]CatalogView, 0, len(cats))}
	for _, cat := range cats {
		cv := CatalogView{
			ID:        cat.ID,
			Name:      cat.Name,
			Src:       cat.Source.String(),
			Solutions: make([]SolutionView, 0, len(cat.Index.Solutions)),
		}
		for _, e := range cat.Index.Solutions {
			cv.Solutions = append(cv.Solutions, SolutionView{
				Entry:     e,
				Installed: s.collection.IsInstalled(cat.ID, e.Coordinates()),
			})
		}
		view.Catalogs = append(view.Catalogs, cv)
	}
	return view
}

// UpdateCatalog fetches the latest index of the named catalog, or of every
// catalog when name is empty, and reports the changes an upgrade would
// apply. The served index is not modified.
func (s *Service) UpdateCatalog(ctx context.Context, name string) ([]Changes, error) {
	cats, err := s.selectCatalogs(name)
	if err != nil {
		return nil, err
	}

	out := make([]Changes, 0, len(cats))
	for _, cat := range cats {
		latest, err := s.fetchIndex(ctx, cat.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to update catalog %s: %w", cat.Name, err)
		}
		if err := s.collection.SetLatest(cat.ID, latest); err != nil {
			return nil, err
		}
		out = append(out, diffIndexes(cat.Name, cat.Index, latest))
	}
	return out, nil
}

// Status reports whether the solution exists in the collection and whether
// it is installed.
func (s *Service) Status(ref Ref) (SolutionStatus, error) {
	cat, entry, err := s.collection.Resolve(ref)
	if err != nil {
		return SolutionStatus{}, err
	}
	return SolutionStatus{
		Catalog:   cat.Name,
		Group:     entry.Group,
		Name:      entry.Name,
		Version:   entry.Version,
		Title:     entry.Title,
		Installed: s.collection.IsInstalled(cat.ID, entry.Coordinates()),
	}, nil
}

// RecentlyInstalled returns the most recently installed solutions.
func (s *Service) RecentlyInstalled() []RecentItem {
	return s.collection.RecentlyInstalled()
}

// RecentlyLaunched returns the most recently run solutions.
func (s *Service) RecentlyLaunched() []RecentItem {
	return s.collection.RecentlyLaunched()
}

// Search runs a full-text query over the collection.
func (s *Service) Search(q string, limit int) ([]SearchHit, error) {
	return s.search.Search(q, limit)
}

// Install returns work that installs a solution from its catalog.
func (s *Service) Install(ref Ref) task.WorkFunc {
	return func(ctx context.Context) (interface{}, error) {
		log := taskLogger(ctx)

		cat, entry, err := s.collection.Resolve(ref)
		if err != nil {
			return nil, err
		}
		coords := entry.Coordinates()
		if err := s.collection.BeginInstall(cat.ID, coords); err != nil {
			return nil, fmt.Errorf("cannot install from %s: %w", cat.Name, err)
		}
		installed := false
		defer func() {
			if !installed {
				s.collection.Release(cat.ID, coords)
			}
		}()

		log.Info("installing solution", "catalog", cat.Name, "solution", coords.String())
		data, err := cat.Source.ReadFile(ctx, s.client, entry.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptor of %s: %w", coords, err)
		}
		desc, err := ParseDescriptor(data)
		if err != nil {
			return nil, err
		}

		dir := s.installDir(cat.Name, coords)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create installation directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, DescriptorFile), data, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to store descriptor: %w", err)
		}

		if err := s.runAction(ctx, cat.Name, desc, dir, "install", desc.Commands.Install, nil); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}

		inst := Installation{
			CatalogID:   cat.ID,
			Catalog:     cat.Name,
			Coordinates: coords,
			Dir:         dir,
			InstalledAt: time.Now(),
		}
		s.collection.MarkInstalled(inst, entry.Title)
		installed = true
		log.Info("solution installed", "solution", coords.String(), "dir", dir)
		return inst, nil
	}
}

// Run returns work that runs an installed solution with extra arguments.
func (s *Service) Run(ref Ref, args []string) task.WorkFunc {
	return func(ctx context.Context) (interface{}, error) {
		cat, entry, inst, desc, err := s.installed(ref)
		if err != nil {
			return nil, err
		}
		taskLogger(ctx).Info("running solution", "solution", inst.Coordinates.String(), "args", args)
		s.collection.RecordLaunch(cat.Name, inst.Coordinates, entry.Title, time.Now())
		return nil, s.runAction(ctx, cat.Name, desc, inst.Dir, "run", desc.Commands.Run, args)
	}
}

// Test returns work that runs the test command of an installed solution.
func (s *Service) Test(ref Ref) task.WorkFunc {
	return func(ctx context.Context) (interface{}, error) {
		cat, _, inst, desc, err := s.installed(ref)
		if err != nil {
			return nil, err
		}
		taskLogger(ctx).Info("testing solution", "solution", inst.Coordinates.String())
		return nil, s.runAction(ctx, cat.Name, desc, inst.Dir, "test", desc.Commands.Test, nil)
	}
}

// Uninstall returns work that runs the uninstall command of a solution and
// removes its installation directory.
func (s *Service) Uninstall(ref Ref) task.WorkFunc {
	return func(ctx context.Context) (interface{}, error) {
		log := taskLogger(ctx)

		cat, entry, err := s.collection.Resolve(ref)
		if err != nil {
			return nil, err
		}
		inst, err := s.collection.BeginUninstall(cat.ID, entry.Coordinates())
		if err != nil {
			return nil, fmt.Errorf("cannot uninstall from %s: %w", cat.Name, err)
		}
		removed := false
		defer func() {
			if !removed {
				s.collection.Release(cat.ID, inst.Coordinates)
			}
		}()

		desc, err := LoadDescriptor(filepath.Join(inst.Dir, DescriptorFile))
		if err != nil {
			return nil, err
		}
		log.Info("uninstalling solution", "solution", inst.Coordinates.String())
		if err := s.runAction(ctx, cat.Name, desc, inst.Dir, "uninstall", desc.Commands.Uninstall, nil); err != nil {
			return nil, err
		}
		if err := os.RemoveAll(inst.Dir); err != nil {
			return nil, fmt.Errorf("failed to remove installation directory: %w", err)
		}
		s.collection.MarkUninstalled(cat.ID, inst.Coordinates)
		removed = true
		log.Info("solution uninstalled", "solution", inst.Coordinates.String())
		return nil, nil
	}
}

// Clone validates a clone request and returns the work for it. src is
// either "template:<name>", a solution reference
// ("[catalog:]group:name:version"), or a path to a solution descriptor or
// its directory. The clone is written to targetDir for templates and to
// targetDir/name for solutions.
func (s *Service) Clone(src, targetDir, name string) (task.WorkFunc, error) {
	if src == "" || targetDir == "" || name == "" {
		return nil, fmt.Errorf("%w: source, target directory and name are required", ErrInvalidSource)
	}
	if filepath.Base(name) != name || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: bad name %q", ErrInvalidSource, name)
	}

	if template, ok := strings.CutPrefix(src, TemplatePrefix); ok {
		if template != CatalogTemplate {
			return nil, fmt.Errorf("%w: unknown template %q", ErrInvalidSource, template)
		}
		return s.cloneCatalogTemplate(targetDir, name), nil
	}
	if ref, err := ParseRef(src); err == nil {
		return s.cloneFromCatalog(ref, targetDir, name), nil
	}
	return s.cloneFromPath(src, targetDir, name), nil
}

func (s *Service) cloneCatalogTemplate(targetDir, name string) task.WorkFunc {
	return func(ctx context.Context) (interface{}, error) {
		if err := ensureEmptyDir(targetDir); err != nil {
			return nil, err
		}
		index := &CatalogIndex{Name: name, Solutions: []Entry{}}
		if err := WriteCatalogIndex(targetDir, index); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Join(targetDir, "solutions"), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create solutions directory: %w", err)
		}
		taskLogger(ctx).Info("catalog created from template", "catalog", name, "dir", targetDir)
		return targetDir, nil
	}
}

func (s *Service) cloneFromCatalog(ref Ref, targetDir, name string) task.WorkFunc {
	return func(ctx context.Context) (interface{}, error) {
		cat, entry, err := s.collection.Resolve(ref)
		if err != nil {
			return nil, err
		}
		data, err := cat.Source.ReadFile(ctx, s.client, entry.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptor of %s: %w", entry.Coordinates(), err)
		}
		if _, err := ParseDescriptor(data); err != nil {
			return nil, err
		}
		return writeClone(ctx, data, targetDir, name)
	}
}

func (s *Service) cloneFromPath(src, targetDir, name string) task.WorkFunc {
	return func(ctx context.Context) (interface{}, error) {
		path, err := descriptorPath(src)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		if _, err := ParseDescriptor(data); err != nil {
			return nil, err
		}
		return writeClone(ctx, data, targetDir, name)
	}
}

func writeClone(ctx context.Context, data []byte, targetDir, name string) (interface{}, error) {
	dir := filepath.Join(targetDir, name)
	if err := ensureEmptyDir(dir); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, DescriptorFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write solution: %w", err)
	}
	taskLogger(ctx).Info("solution cloned", "path", path)
	return path, nil
}

// Deploy validates a deploy request and returns work that copies the
// solution descriptor into a local catalog and lists it in the catalog
// index. The collection picks the change up on the next update and upgrade.
func (s *Service) Deploy(req DeployRequest) (task.WorkFunc, error) {
	if req.Path == "" || req.CatalogName == "" {
		return nil, fmt.Errorf("%w: path and catalog name are required", ErrInvalidSource)
	}

	return func(ctx context.Context) (interface{}, error) {
		log := taskLogger(ctx)

		desc, err := LoadDescriptor(req.Path)
		if err != nil {
			return nil, err
		}
		cat, err := s.collection.CatalogByName(req.CatalogName)
		if err != nil {
			return nil, err
		}
		dir, ok := cat.Source.LocalDir()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrReadOnlyCatalog, cat.Name)
		}

		coords := desc.Coordinates()
		rel := filepath.ToSlash(filepath.Join("solutions", coords.Group, coords.Name, coords.Version, DescriptorFile))
		data, err := desc.Encode()
		if err != nil {
			return nil, err
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create solution directory: %w", err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write solution: %w", err)
		}

		index, err := s.fetchIndex(ctx, cat.Source)
		if err != nil {
			return nil, err
		}
		index.Put(Entry{
			Group:       coords.Group,
			Name:        coords.Name,
			Version:     coords.Version,
			Title:       desc.Title,
			Description: desc.Description,
			Tags:        desc.Tags,
			Path:        rel,
			DeployedBy:  deployedBy(req.GitName, req.GitEmail),
		})
		if err := WriteCatalogIndex(dir, index); err != nil {
			return nil, err
		}

		log.Info("solution deployed", "catalog", cat.Name, "solution", coords.String())
		return DeployResult{Catalog: cat.Name, Coordinates: coords, Path: rel}, nil
	}, nil
}

// Upgrade returns work that fetches the latest index of the named catalog,
// or of every catalog when name is empty, and applies it to the collection.
func (s *Service) Upgrade(name string) task.WorkFunc {
	return func(ctx context.Context) (interface{}, error) {
		log := taskLogger(ctx)

		if _, err := s.UpdateCatalog(ctx, name); err != nil {
			return nil, err
		}
		cats, err := s.selectCatalogs(name)
		if err != nil {
			return nil, err
		}

		out := make([]Changes, 0, len(cats))
		for _, cat := range cats {
			changes, err := s.collection.Upgrade(cat.ID)
			if err != nil {
				return nil, err
			}
			log.Info("catalog upgraded",
				"catalog", cat.Name,
				"added", len(changes.Added),
				"removed", len(changes.Removed),
				"changed", len(changes.Changed))
			out = append(out, changes)
		}
		s.reindex()
		return out, nil
	}
}

func (s *Service) selectCatalogs(name string) ([]Catalog, error) {
	if name == "" {
		return s.collection.Catalogs(), nil
	}
	cat, err := s.collection.CatalogByName(name)
	if err != nil {
		return nil, err
	}
	return []Catalog{cat}, nil
}

// installed resolves ref to an installed solution and loads the descriptor
// stored with the installation.
func (s *Service) installed(ref Ref) (Catalog, Entry, Installation, *Descriptor, error) {
	cat, entry, err := s.collection.Resolve(ref)
	if err != nil {
		return Catalog{}, Entry{}, Installation{}, nil, err
	}
	inst, ok := s.collection.Installation(cat.ID, entry.Coordinates())
	if !ok {
		return Catalog{}, Entry{}, Installation{}, nil, fmt.Errorf("%w: %s:%s", ErrNotInstalled, cat.Name, entry.Coordinates())
	}
	desc, err := LoadDescriptor(filepath.Join(inst.Dir, DescriptorFile))
	if err != nil {
		return Catalog{}, Entry{}, Installation{}, nil, err
	}
	return cat, entry, inst, desc, nil
}

func (s *Service) runAction(ctx context.Context, catalog string, desc *Descriptor, dir, action string, argv, args []string) error {
	if len(argv) == 0 {
		taskLogger(ctx).Info("no command for action", "action", action, "solution", desc.Coordinates().String())
		return nil
	}

	full := make([]string, 0, len(argv)+len(args))
	full = append(full, argv...)
	full = append(full, args...)

	err := s.executor.Execute(ctx, Command{
		Argv: full,
		Dir:  dir,
		Env: []string{
			"SOLUTION_CATALOG=" + catalog,
			"SOLUTION_GROUP=" + desc.Group,
			"SOLUTION_NAME=" + desc.Name,
			"SOLUTION_VERSION=" + desc.Version,
			"SOLUTION_INSTALL_DIR=" + dir,
		},
	})
	if err != nil {
		return fmt.Errorf("%s of %s failed: %w", action, desc.Coordinates(), err)
	}
	return nil
}

func (s *Service) fetchIndex(ctx context.Context, src Source) (*CatalogIndex, error) {
	data, err := src.ReadFile(ctx, s.client, IndexFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return ParseCatalogIndex(data)
}

func (s *Service) reindex() {
	if err := s.search.Refresh(s.collection.Catalogs); err != nil {
		s.logger.Error("failed to rebuild search index", "error", err)
	}
}

func (s *Service) installDir(catalog string, c Coordinates) string {
	return filepath.Join(s.baseDir, "installations", catalog, c.Group, c.Name, c.Version)
}

func taskLogger(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx).With("logger", "solution")
}

func ensureEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", dir, err)
	case len(entries) > 0:
		return fmt.Errorf("%w: %s is not empty", ErrInvalidSource, dir)
	}
	return nil
}

func deployedBy(name, email string) string {
	switch {
	case name != "" && email != "":
		return name + " <" + email + ">"
	case name != "":
		return name
	default:
		return email
	}
}
