package solution

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phrazzld/solution-server/internal/platform/logger"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeExecutor records commands and writes scripted output lines through
// the context logger instead of starting processes.
type fakeExecutor struct {
	mu       sync.Mutex
	commands []Command
	output   map[string][]string
	fail     map[string]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		output: make(map[string][]string),
		fail:   make(map[string]error),
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, cmd Command) error {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	lines := f.output[cmd.Argv[0]]
	err := f.fail[cmd.Argv[0]]
	f.mu.Unlock()

	log := logger.FromContext(ctx).With("logger", ExecutorLoggerName)
	for _, line := range lines {
		log.Info(line)
	}
	return err
}

func (f *fakeExecutor) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command{}, f.commands...)
}

const sampleDescriptor = `group = "group"
name = "solution7_long_routines"
version = "0.1.0"
title = "Long routines"
description = "Runs for a while and prints markers"
tags = ["demo", "routines"]

[commands]
install = ["install.sh"]
run = ["run.sh"]
test = ["test.sh"]
uninstall = ["uninstall.sh"]
`

// writeDescriptor writes a solution.toml into dir and returns its path.
func writeDescriptor(t *testing.T, dir, content string) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, DescriptorFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeCatalog creates a local catalog directory listing the given
// descriptors and returns its path.
func writeCatalog(t *testing.T, name string, descriptors ...string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	index := &CatalogIndex{Name: name, Solutions: []Entry{}}
	for _, content := range descriptors {
		desc, err := ParseDescriptor([]byte(content))
		require.NoError(t, err)
		c := desc.Coordinates()
		rel := filepath.ToSlash(filepath.Join("solutions", c.Group, c.Name, c.Version, DescriptorFile))
		writeDescriptor(t, filepath.Join(dir, filepath.FromSlash(filepath.Dir(rel))), content)
		index.Put(Entry{
			Group:       c.Group,
			Name:        c.Name,
			Version:     c.Version,
			Title:       desc.Title,
			Description: desc.Description,
			Tags:        desc.Tags,
			Path:        rel,
		})
	}
	require.NoError(t, WriteCatalogIndex(dir, index))
	return dir
}

func newTestService(t *testing.T, executor Executor) *Service {
	t.Helper()

	svc, err := NewService(ServiceConfig{BaseDir: t.TempDir(), RecentLimit: 3}, executor, setupTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func sampleRef(catalog string) Ref {
	return Ref{
		Catalog:     catalog,
		Coordinates: Coordinates{Group: "group", Name: "solution7_long_routines", Version: "0.1.0"},
	}
}

// gatedExecutor wraps fakeExecutor and holds every command for argv0 until
// release is closed. entered receives once per held command.
type gatedExecutor struct {
	*fakeExecutor
	argv0   string
	entered chan struct{}
	release chan struct{}
}

func newGatedExecutor(argv0 string) *gatedExecutor {
	return &gatedExecutor{
		fakeExecutor: newFakeExecutor(),
		argv0:        argv0,
		entered:      make(chan struct{}, 8),
		release:      make(chan struct{}),
	}
}

func (g *gatedExecutor) Execute(ctx context.Context, cmd Command) error {
	if cmd.Argv[0] == g.argv0 {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.fakeExecutor.Execute(ctx, cmd)
}

func countCommands(cmds []Command, argv0 string) int {
	n := 0
	for _, cmd := range cmds {
		if cmd.Argv[0] == argv0 {
			n++
		}
	}
	return n
}
