package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/solution-server/internal/api"
	"github.com/phrazzld/solution-server/internal/config"
	"github.com/phrazzld/solution-server/internal/events"
	"github.com/phrazzld/solution-server/internal/platform/shutdown"
	"github.com/phrazzld/solution-server/internal/platform/telemetry"
	"github.com/phrazzld/solution-server/internal/solution"
	"github.com/phrazzld/solution-server/internal/task"
)

// application holds the shared application dependencies so they can be
// wired once and shut down in order.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Event system
	emitter *events.InMemoryEventEmitter
	stream  *api.EventStream

	// Task handling
	tasks *task.TaskManager

	solutions *solution.Service
	telemetry *telemetry.Provider
	shutdown  *shutdown.Coordinator
}

// newApplication creates the application with every dependency initialized
// and the task workers started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	tracer := telemetry.NoopTracer()
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.InitProvider(ctx, cfg.Telemetry, version)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		app.telemetry = provider
		tracer = provider.Tracer()
		logger.Info("telemetry initialized", "endpoint", cfg.Telemetry.Endpoint)
	}

	// Task lifecycle events are fanned out to websocket clients
	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.stream = api.NewEventStream(logger)
	app.emitter.RegisterHandler(app.stream)

	app.tasks = task.NewTaskManager(task.ManagerConfig{
		WorkerCount:       cfg.Tasks.WorkerCount,
		DrainPollInterval: cfg.Tasks.DrainPollInterval,
	}, logger, task.WithEventEmitter(app.emitter), task.WithTracer(tracer))

	var err error
	app.solutions, err = solution.NewService(solution.ServiceConfig{
		BaseDir:     cfg.Solution.BaseDir,
		RecentLimit: cfg.Solution.RecentLimit,
	}, solution.NewCommandExecutor(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create solution service: %w", err)
	}

	app.addConfiguredCatalogs(ctx)

	app.shutdown = shutdown.NewCoordinator(cfg.Tasks.ShutdownTimeout+10*time.Second, logger)
	app.registerShutdownHandlers()

	app.tasks.Start()
	logger.Info("application initialized successfully")
	return app, nil
}

// addConfiguredCatalogs registers the catalogs listed in the configuration.
// A catalog that cannot be read is logged and skipped.
func (app *application) addConfiguredCatalogs(ctx context.Context) {
	for _, src := range app.config.Solution.Catalogs {
		id, err := app.solutions.AddCatalog(ctx, src)
		if err != nil {
			app.logger.Warn("failed to add configured catalog", "src", src, "error", err)
			continue
		}
		app.logger.Info("catalog added", "src", src, "catalog_id", id)
	}
}

// registerShutdownHandlers orders cleanup: the engine drains before
// telemetry is flushed and the event stream is closed.
func (app *application) registerShutdownHandlers() {
	app.shutdown.RegisterFunc("tasks", shutdown.PhaseDrain, func(ctx context.Context) error {
		if !app.tasks.Shutdown(app.config.Tasks.ShutdownTimeout) {
			return fmt.Errorf("tasks still unfinished after %s", app.config.Tasks.ShutdownTimeout)
		}
		return nil
	})

	app.shutdown.RegisterFunc("event_stream", shutdown.PhaseFlush, func(ctx context.Context) error {
		app.stream.Close()
		return nil
	})
	app.shutdown.RegisterFunc("solutions", shutdown.PhaseFlush, func(ctx context.Context) error {
		return app.solutions.Close()
	})
	if app.telemetry != nil {
		app.shutdown.RegisterFunc("telemetry", shutdown.PhaseFlush, app.telemetry.Shutdown)
	}
}

// configView is the effective configuration served at GET /config.
type configView struct {
	Version  string                `json:"version"`
	Server   config.ServerConfig   `json:"server"`
	Tasks    config.TaskConfig     `json:"tasks"`
	Solution config.SolutionConfig `json:"solution"`
	Tracing  bool                  `json:"tracing"`
}

func (app *application) configView() configView {
	return configView{
		Version:  version,
		Server:   app.config.Server,
		Tasks:    app.config.Tasks,
		Solution: app.config.Solution,
		Tracing:  app.config.Telemetry.Enabled,
	}
}

// Run serves HTTP until ctx is cancelled, a signal arrives or the listener
// fails, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              app.address(),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app.serve(ctx, server)
}
