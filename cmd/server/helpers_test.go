package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phrazzld/solution-server/internal/api"
	"github.com/phrazzld/solution-server/internal/config"
)

const helloDescriptor = `group = "tools"
name = "hello"
version = "0.1.0"
title = "Hello"
description = "Greets the caller"
tags = ["demo"]
`

const markerDescriptor = `group = "tools"
name = "markers"
version = "0.1.0"
title = "Markers"

[commands]
run = ["sh", "-c", "echo run-marker-$SOLUTION_NAME"]
test = ["sh", "-c", "echo test-marker-$SOLUTION_VERSION"]
`

// writeTestCatalog creates a local catalog named name holding the solution
// descriptors and returns its directory.
func writeTestCatalog(t *testing.T, name string, descriptors map[string]string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), name)
	index := "name = \"" + name + "\"\n"
	for solutionName, content := range descriptors {
		rel := filepath.Join("solutions", "tools", solutionName, "0.1.0")
		require.NoError(t, os.MkdirAll(filepath.Join(dir, rel), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel, "solution.toml"), []byte(content), 0o644))
		index += "\n[[solutions]]\ngroup = \"tools\"\nname = \"" + solutionName + "\"\nversion = \"0.1.0\"\n" +
			"title = \"" + solutionName + "\"\npath = \"" + filepath.ToSlash(filepath.Join(rel, "solution.toml")) + "\"\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog_index.toml"), []byte(index), 0o644))
	return dir
}

func testConfig(t *testing.T, catalogs ...string) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, LogLevel: "debug"},
		Tasks: config.TaskConfig{
			WorkerCount:       2,
			ShutdownTimeout:   5 * time.Second,
			DrainPollInterval: 5 * time.Millisecond,
		},
		Solution: config.SolutionConfig{
			BaseDir:     t.TempDir(),
			Catalogs:    catalogs,
			RecentLimit: 5,
		},
	}
}

// newTestApp builds an application and shuts it down with the test.
func newTestApp(t *testing.T, cfg *config.Config) *application {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := newApplication(t.Context(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.shutdown.ShutdownWithTimeout() })
	return app
}

// newTestServer serves the application router over httptest.
func newTestServer(t *testing.T, app *application) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(app.setupRouter())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, srv *httptest.Server, path string, v interface{}) int {
	t.Helper()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if v != nil {
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, v), string(body))
	}
	return resp.StatusCode
}

// submit calls a task-starting route and returns the task id.
func submit(t *testing.T, srv *httptest.Server, path string) string {
	t.Helper()

	var resp api.SubmitResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv, path, &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

// waitTerminal polls /status/{id} until the task finishes or fails.
func waitTerminal(t *testing.T, srv *httptest.Server, id string) api.TaskStatusResponse {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		var status api.TaskStatusResponse
		require.Equal(t, http.StatusOK, getJSON(t, srv, "/status/"+id, &status))
		if status.Status == "FINISHED" || status.Status == "FAILED" {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s still %s", id, status.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func logMessages(t *testing.T, srv *httptest.Server, id string) []string {
	t.Helper()

	var logs api.TaskLogsResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/logs/"+id, &logs))
	messages := make([]string, 0, len(logs.Records))
	for _, rec := range logs.Records {
		messages = append(messages, rec.Message)
	}
	return messages
}
