package solution

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchIndex(t *testing.T) {
	t.Parallel()

	idx, err := NewSearchIndex()
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Search("anything", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	catalogs := []Catalog{
		{Name: "imaging", Index: &CatalogIndex{Name: "imaging", Solutions: []Entry{
			{Group: "fiji", Name: "segmentation", Version: "1.0", Title: "Cell segmentation", Description: "Segments microscopy images", Tags: []string{"microscopy"}},
			{Group: "fiji", Name: "denoise", Version: "0.2", Title: "Denoise", Description: "Removes noise from images"},
		}}},
		{Name: "tools", Index: &CatalogIndex{Name: "tools", Solutions: []Entry{
			{Group: "util", Name: "zip", Version: "1", Title: "Archive files"},
		}}},
	}
	require.NoError(t, idx.Rebuild(catalogs))

	hits, err = idx.Search("microscopy", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "imaging", hits[0].Catalog)
	assert.Equal(t, Coordinates{"fiji", "segmentation", "1.0"}, hits[0].Coordinates)
	assert.Equal(t, "Cell segmentation", hits[0].Title)
	assert.Greater(t, hits[0].Score, 0.0)

	hits, err = idx.Search("images", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = idx.Search("images", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = idx.Search("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Rebuilding replaces previous contents.
	require.NoError(t, idx.Rebuild(catalogs[1:]))
	hits, err = idx.Search("microscopy", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = idx.Search("archive", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchIndexRefreshKeepsLatestSnapshot(t *testing.T) {
	t.Parallel()

	idx, err := NewSearchIndex()
	require.NoError(t, err)
	defer idx.Close()

	stale := []Catalog{{Name: "old", Index: &CatalogIndex{Name: "old", Solutions: []Entry{
		{Group: "g", Name: "legacy", Version: "1", Title: "Legacy tool"},
	}}}}
	current := []Catalog{{Name: "new", Index: &CatalogIndex{Name: "new", Solutions: []Entry{
		{Group: "g", Name: "modern", Version: "1", Title: "Modern tool"},
	}}}}

	inSnapshot := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- idx.Refresh(func() []Catalog {
			close(inSnapshot)
			<-release
			return stale
		})
	}()
	<-inSnapshot

	var took atomic.Bool
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- idx.Refresh(func() []Catalog {
			took.Store(true)
			return current
		})
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, took.Load(), "second refresh must wait for the first to swap")
	close(release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	hits, err := idx.Search("tool", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Catalog)
}
