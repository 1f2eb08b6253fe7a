package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/phrazzld/solution-server/internal/platform/shutdown"
)

func (app *application) address() string {
	return net.JoinHostPort(app.config.Server.Host, strconv.Itoa(app.config.Server.Port))
}

// serve runs server on its configured address.
func (app *application) serve(ctx context.Context, server *http.Server) error {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		_ = app.shutdown.ShutdownWithTimeout()
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	return app.serveListener(ctx, server, listener)
}

// serveListener serves on listener and coordinates shutdown. The HTTP
// server stops accepting requests before the task engine drains.
func (app *application) serveListener(ctx context.Context, server *http.Server, listener net.Listener) error {
	app.shutdown.RegisterFunc("http", shutdown.PhaseStopIntake, func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})
	app.shutdown.HandleSignals()

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("server context canceled, shutting down")
	case <-app.shutdown.Done():
	case err := <-serveErr:
		if err != nil {
			app.logger.Error("server failed", "error", err)
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	if err := app.shutdown.ShutdownWithTimeout(); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown incomplete: %w", err)
	}
	app.logger.Info("server shutdown completed")
	return runErr
}
