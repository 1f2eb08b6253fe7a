package solution

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// searchDocument is the indexed form of a catalog entry.
type searchDocument struct {
	Catalog     string   `json:"catalog"`
	Group       string   `json:"group"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// SearchHit is one search result.
type SearchHit struct {
	Catalog     string      `json:"catalog"`
	Coordinates Coordinates `json:"coordinates"`
	Title       string      `json:"title,omitempty"`
	Score       float64     `json:"score"`
}

// SearchIndex is an in-memory full-text index over the entries of every
// catalog in the collection.
type SearchIndex struct {
	mu    sync.RWMutex
	index bleve.Index

	// rebuildMu is held from snapshot to swap.
	rebuildMu sync.Mutex
}

// NewSearchIndex creates an empty index.
func NewSearchIndex() (*SearchIndex, error) {
	idx, err := bleve.NewMemOnly(buildSearchMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &SearchIndex{index: idx}, nil
}

func buildSearchMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name

	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("description", text)
	doc.AddFieldMappingsAt("tags", text)
	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("group", kw)
	doc.AddFieldMappingsAt("version", kw)
	doc.AddFieldMappingsAt("catalog", kw)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// Rebuild replaces the index contents with the entries of catalogs.
func (s *SearchIndex) Rebuild(catalogs []Catalog) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	return s.rebuild(catalogs)
}

// Refresh rebuilds the index from the catalogs returned by snapshot. Calls
// are serialized, so the last refresh to start always wins.
func (s *SearchIndex) Refresh(snapshot func() []Catalog) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	return s.rebuild(snapshot())
}

func (s *SearchIndex) rebuild(catalogs []Catalog) error {
	fresh, err := bleve.NewMemOnly(buildSearchMapping())
	if err != nil {
		return fmt.Errorf("failed to create search index: %w", err)
	}

	batch := fresh.NewBatch()
	for _, cat := range catalogs {
		for _, e := range cat.Index.Solutions {
			doc := searchDocument{
				Catalog:     cat.Name,
				Group:       e.Group,
				Name:        e.Name,
				Version:     e.Version,
				Title:       e.Title,
				Description: e.Description,
				Tags:        e.Tags,
			}
			if err := batch.Index(cat.Name+":"+e.Coordinates().String(), doc); err != nil {
				_ = fresh.Close()
				return fmt.Errorf("failed to index %s: %w", e.Coordinates(), err)
			}
		}
	}
	if err := fresh.Batch(batch); err != nil {
		_ = fresh.Close()
		return fmt.Errorf("failed to index catalogs: %w", err)
	}

	s.mu.Lock()
	old := s.index
	s.index = fresh
	s.mu.Unlock()
	return old.Close()
}

// Search runs a match query over titles, descriptions, tags and names and
// returns at most limit hits ordered by score.
func (s *SearchIndex) Search(text string, limit int) ([]SearchHit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []SearchHit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	fields := []string{"title", "description", "tags", "name"}
	queries := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		q := bleve.NewMatchQuery(text)
		q.SetField(f)
		queries = append(queries, q)
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), limit, 0, false)
	req.Fields = []string{"catalog", "group", "name", "version", "title"}

	s.mu.RLock()
	res, err := s.index.Search(req)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, SearchHit{
			Catalog: fieldString(h.Fields, "catalog"),
			Coordinates: Coordinates{
				Group:   fieldString(h.Fields, "group"),
				Name:    fieldString(h.Fields, "name"),
				Version: fieldString(h.Fields, "version"),
			},
			Title: fieldString(h.Fields, "title"),
			Score: h.Score,
		})
	}
	return hits, nil
}

// Close releases the index.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
