// Package main implements the entry point for the solution server, which
// installs, runs and tests solutions from catalogs as asynchronous tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/phrazzld/solution-server/internal/config"
	"github.com/phrazzld/solution-server/internal/platform/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var errUsage = errors.New("usage: solution-server server [--host HOST] [--port PORT] [--config PATH]")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "solution-server: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches the subcommand in args and blocks until the server stops.
func run(ctx context.Context, args []string, stderr io.Writer) error {
	if len(args) == 0 || args[0] != "server" {
		return errUsage
	}

	flags := newServerFlags(stderr)
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("server configuration loaded",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"workers", cfg.Tasks.WorkerCount,
		"base_dir", cfg.Solution.BaseDir,
		"version", version)

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// newServerFlags declares the flags of the server subcommand. Flag names
// match the keys config.WithFlags binds.
func newServerFlags(output io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.SetOutput(output)
	flags.String("host", "127.0.0.1", "address to listen on")
	flags.Int("port", 8080, "port to listen on")
	flags.String("config", "", "path to a config file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Int("workers", 2, "number of task workers")
	flags.String("base-dir", "", "directory holding installed solutions")
	return flags
}

func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	opts := []config.LoadOption{config.WithFlags(flags)}
	if path, _ := flags.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
