package solution

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// IndexFile is the file name of a catalog index.
const IndexFile = "catalog_index.toml"

// Entry is one solution listed in a catalog index.
type Entry struct {
	Group       string   `toml:"group" json:"group"`
	Name        string   `toml:"name" json:"name"`
	Version     string   `toml:"version" json:"version"`
	Title       string   `toml:"title,omitempty" json:"title,omitempty"`
	Description string   `toml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `toml:"tags,omitempty" json:"tags,omitempty"`
	Path        string   `toml:"path" json:"-"`
	DeployedBy  string   `toml:"deployed_by,omitempty" json:"deployed_by,omitempty"`
}

// Coordinates returns the entry's coordinates.
func (e Entry) Coordinates() Coordinates {
	return Coordinates{Group: e.Group, Name: e.Name, Version: e.Version}
}

// CatalogIndex is the parsed content of catalog_index.toml.
type CatalogIndex struct {
	Name      string  `toml:"name" json:"name"`
	Solutions []Entry `toml:"solutions" json:"solutions"`
}

// Find returns the entry with the given coordinates.
func (ci *CatalogIndex) Find(c Coordinates) (Entry, bool) {
	for _, e := range ci.Solutions {
		if e.Coordinates() == c {
			return e, true
		}
	}
	return Entry{}, false
}

// Put adds e, replacing any entry with the same coordinates, and keeps the
// entries sorted by coordinates.
func (ci *CatalogIndex) Put(e Entry) {
	for i := range ci.Solutions {
		if ci.Solutions[i].Coordinates() == e.Coordinates() {
			ci.Solutions[i] = e
			return
		}
	}
	ci.Solutions = append(ci.Solutions, e)
	sort.Slice(ci.Solutions, func(i, j int) bool {
		return ci.Solutions[i].Coordinates().String() < ci.Solutions[j].Coordinates().String()
	})
}

// ParseCatalogIndex decodes a catalog index.
func ParseCatalogIndex(data []byte) (*CatalogIndex, error) {
	var ci CatalogIndex
	if _, err := toml.Decode(string(data), &ci); err != nil {
		return nil, fmt.Errorf("failed to parse catalog index: %w", err)
	}
	if !segmentPattern.MatchString(ci.Name) || strings.Contains(ci.Name, "..") {
		return nil, fmt.Errorf("%w: bad catalog name %q", ErrInvalidSource, ci.Name)
	}
	for _, e := range ci.Solutions {
		if err := e.Coordinates().Validate(); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", ci.Name, err)
		}
	}
	return &ci, nil
}

// WriteCatalogIndex writes ci to dir/catalog_index.toml.
func WriteCatalogIndex(dir string, ci *CatalogIndex) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(ci); err != nil {
		return fmt.Errorf("failed to encode catalog index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, IndexFile), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write catalog index: %w", err)
	}
	return nil
}

// Source is where a catalog's files live: a local directory or an HTTP
// base URL.
type Source struct {
	raw    string
	remote *url.URL
}

// ParseSource normalizes src. Local paths are made absolute and must be
// existing directories.
func ParseSource(src string) (Source, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return Source{}, fmt.Errorf("%w: empty source", ErrInvalidSource)
	}
	if u, err := url.Parse(src); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		u.Path = strings.TrimSuffix(u.Path, "/")
		return Source{raw: u.String(), remote: u}, nil
	}

	abs, err := filepath.Abs(src)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if !info.IsDir() {
		return Source{}, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, abs)
	}
	return Source{raw: abs}, nil
}

func (s Source) String() string {
	return s.raw
}

// LocalDir returns the directory of a local source.
func (s Source) LocalDir() (string, bool) {
	return s.raw, s.remote == nil
}

// ReadFile reads a file relative to the catalog root.
func (s Source) ReadFile(ctx context.Context, client *http.Client, rel string) ([]byte, error) {
	if s.remote == nil {
		clean := filepath.Clean(filepath.FromSlash(rel))
		if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
			return nil, fmt.Errorf("%w: path %q escapes catalog", ErrInvalidSource, rel)
		}
		return os.ReadFile(filepath.Join(s.raw, clean))
	}

	u := *s.remote
	u.Path = path.Join(u.Path, rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", u.String(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", u.String(), resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// Catalog is a catalog registered in the collection. Index is the cached
// index the collection serves; Latest is the most recently fetched index,
// applied to Index by an upgrade.
type Catalog struct {
	ID     int
	Name   string
	Source Source
	Index  *CatalogIndex
	Latest *CatalogIndex
}

// Changes describes the difference between two catalog indexes.
type Changes struct {
	Catalog string        `json:"catalog"`
	Added   []Coordinates `json:"added"`
	Removed []Coordinates `json:"removed"`
	Changed []Coordinates `json:"changed"`
}

// Empty reports whether there are no changes.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// diffIndexes compares two indexes entry by entry.
func diffIndexes(catalog string, from, to *CatalogIndex) Changes {
	ch := Changes{Catalog: catalog, Added: []Coordinates{}, Removed: []Coordinates{}, Changed: []Coordinates{}}
	old := make(map[Coordinates]Entry, len(from.Solutions))
	for _, e := range from.Solutions {
		old[e.Coordinates()] = e
	}
	for _, e := range to.Solutions {
		prev, ok := old[e.Coordinates()]
		switch {
		case !ok:
			ch.Added = append(ch.Added, e.Coordinates())
		case !entriesEqual(prev, e):
			ch.Changed = append(ch.Changed, e.Coordinates())
		}
		delete(old, e.Coordinates())
	}
	for _, e := range from.Solutions {
		if _, ok := old[e.Coordinates()]; ok {
			ch.Removed = append(ch.Removed, e.Coordinates())
		}
	}
	return ch
}

func entriesEqual(a, b Entry) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Path == b.Path &&
		a.DeployedBy == b.DeployedBy &&
		strings.Join(a.Tags, "\x00") == strings.Join(b.Tags, "\x00")
}
