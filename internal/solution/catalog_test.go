package solution

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalogIndex(t *testing.T) {
	t.Parallel()

	data := []byte(`name = "mycatalog"

[[solutions]]
group = "group"
name = "solution7_long_routines"
version = "0.1.0"
title = "Long routines"
tags = ["demo"]
path = "solutions/group/solution7_long_routines/0.1.0/solution.toml"
deployed_by = "myname <mymail>"
`)

	index, err := ParseCatalogIndex(data)
	require.NoError(t, err)
	assert.Equal(t, "mycatalog", index.Name)
	require.Len(t, index.Solutions, 1)
	assert.Equal(t, "myname <mymail>", index.Solutions[0].DeployedBy)

	entry, ok := index.Find(Coordinates{"group", "solution7_long_routines", "0.1.0"})
	assert.True(t, ok)
	assert.Equal(t, "Long routines", entry.Title)

	_, err = ParseCatalogIndex([]byte(`solutions = []`))
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = ParseCatalogIndex([]byte(`name = "../escape"`))
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = ParseCatalogIndex([]byte(`name = [`))
	assert.Error(t, err)
}

func TestCatalogIndexRoundTripOnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	index := &CatalogIndex{Name: "local"}
	index.Put(Entry{Group: "g", Name: "b", Version: "1", Path: "b.toml"})
	index.Put(Entry{Group: "g", Name: "a", Version: "1", Path: "a.toml"})
	index.Put(Entry{Group: "g", Name: "b", Version: "1", Path: "b2.toml"})
	require.NoError(t, WriteCatalogIndex(dir, index))

	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	loaded, err := ParseCatalogIndex(data)
	require.NoError(t, err)

	require.Len(t, loaded.Solutions, 2, "Put replaces entries with equal coordinates")
	assert.Equal(t, "a", loaded.Solutions[0].Name)
	assert.Equal(t, "b2.toml", loaded.Solutions[1].Path)
}

func TestDiffIndexes(t *testing.T) {
	t.Parallel()

	from := &CatalogIndex{Name: "c", Solutions: []Entry{
		{Group: "g", Name: "kept", Version: "1", Title: "same"},
		{Group: "g", Name: "edited", Version: "1", Title: "old"},
		{Group: "g", Name: "gone", Version: "1"},
	}}
	to := &CatalogIndex{Name: "c", Solutions: []Entry{
		{Group: "g", Name: "kept", Version: "1", Title: "same"},
		{Group: "g", Name: "edited", Version: "1", Title: "new"},
		{Group: "g", Name: "fresh", Version: "1"},
	}}

	changes := diffIndexes("c", from, to)
	assert.Equal(t, []Coordinates{{"g", "fresh", "1"}}, changes.Added)
	assert.Equal(t, []Coordinates{{"g", "gone", "1"}}, changes.Removed)
	assert.Equal(t, []Coordinates{{"g", "edited", "1"}}, changes.Changed)
	assert.False(t, changes.Empty())
	assert.True(t, diffIndexes("c", to, to).Empty())
}

func TestParseSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src, err := ParseSource(dir)
	require.NoError(t, err)
	local, ok := src.LocalDir()
	assert.True(t, ok)
	assert.True(t, filepath.IsAbs(local))

	remote, err := ParseSource("https://example.com/catalogs/templates/catalog/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/catalogs/templates/catalog", remote.String())
	_, ok = remote.LocalDir()
	assert.False(t, ok)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	for _, bad := range []string{"", "  ", filepath.Join(dir, "missing"), file} {
		_, err := ParseSource(bad)
		assert.ErrorIs(t, err, ErrInvalidSource, "source %q", bad)
	}
}

func TestSourceReadFile(t *testing.T) {
	t.Parallel()

	t.Run("local", func(t *testing.T) {
		dir := writeCatalog(t, "local", sampleDescriptor)
		src, err := ParseSource(dir)
		require.NoError(t, err)

		data, err := src.ReadFile(context.Background(), http.DefaultClient, IndexFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), `name = "local"`)

		_, err = src.ReadFile(context.Background(), http.DefaultClient, "../outside.toml")
		assert.ErrorIs(t, err, ErrInvalidSource)
	})

	t.Run("remote", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/catalog/"+IndexFile {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(`name = "remote"`))
		}))
		defer server.Close()

		src, err := ParseSource(server.URL + "/catalog")
		require.NoError(t, err)

		data, err := src.ReadFile(context.Background(), server.Client(), IndexFile)
		require.NoError(t, err)
		assert.Equal(t, `name = "remote"`, string(data))

		_, err = src.ReadFile(context.Background(), server.Client(), "missing.toml")
		assert.ErrorContains(t, err, "status 404")
	})
}
