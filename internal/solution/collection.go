package solution

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// installKey identifies an installed solution.
type installKey struct {
	catalogID   int
	coordinates Coordinates
}

// Installation records an installed solution.
type Installation struct {
	CatalogID   int         `json:"catalog_id"`
	Catalog     string      `json:"catalog"`
	Coordinates Coordinates `json:"coordinates"`
	Dir         string      `json:"dir"`
	InstalledAt time.Time   `json:"installed_at"`
}

// RecentItem is an entry of the recently installed or launched lists.
type RecentItem struct {
	Catalog     string      `json:"catalog"`
	Coordinates Coordinates `json:"coordinates"`
	Title       string      `json:"title,omitempty"`
	At          time.Time   `json:"at"`
}

// Collection is the in-memory state of registered catalogs and installed
// solutions. It is safe for concurrent use. Catalogs are handed out as
// copies; changes go through Collection methods.
type Collection struct {
	mu        sync.RWMutex
	nextID    int
	catalogs  map[int]*Catalog
	installed map[installKey]Installation
	// pending holds solutions with an install or uninstall in progress.
	pending map[installKey]struct{}

	recentLimit     int
	recentInstalled []RecentItem
	recentLaunched  []RecentItem
}

// NewCollection creates an empty collection keeping at most recentLimit
// entries in each recent list.
func NewCollection(recentLimit int) *Collection {
	if recentLimit <= 0 {
		recentLimit = 20
	}
	return &Collection{
		catalogs:    make(map[int]*Catalog),
		installed:   make(map[installKey]Installation),
		pending:     make(map[installKey]struct{}),
		recentLimit: recentLimit,
	}
}

// AddCatalog registers a catalog and returns its id. Both the source and
// the index name must be unique in the collection.
func (c *Collection) AddCatalog(src Source, index *CatalogIndex) (Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cat := range c.catalogs {
		if cat.Source.String() == src.String() {
			return Catalog{}, fmt.Errorf("%w: source %s", ErrCatalogExists, src)
		}
		if cat.Name == index.Name {
			return Catalog{}, fmt.Errorf("%w: name %s", ErrCatalogExists, index.Name)
		}
	}

	cat := &Catalog{
		ID:     c.nextID,
		Name:   index.Name,
		Source: src,
		Index:  index,
		Latest: index,
	}
	c.nextID++
	c.catalogs[cat.ID] = cat
	return *cat, nil
}

// RemoveCatalog unregisters the catalog with the given source and forgets
// its installations.
func (c *Collection) RemoveCatalog(src string) (Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cat, ok := c.bySourceLocked(src)
	if !ok {
		return Catalog{}, fmt.Errorf("%w: source %s", ErrCatalogNotFound, src)
	}
	delete(c.catalogs, cat.ID)
	for key := range c.installed {
		if key.catalogID == cat.ID {
			delete(c.installed, key)
		}
	}
	for key := range c.pending {
		if key.catalogID == cat.ID {
			delete(c.pending, key)
		}
	}
	c.recentInstalled = dropCatalog(c.recentInstalled, cat.Name)
	c.recentLaunched = dropCatalog(c.recentLaunched, cat.Name)
	return *cat, nil
}

// Catalogs returns every catalog ordered by id.
func (c *Collection) Catalogs() []Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Catalog, 0, len(c.catalogs))
	for _, cat := range c.catalogs {
		out = append(out, *cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CatalogByName returns the catalog with the given name.
func (c *Collection) CatalogByName(name string) (Catalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, cat := range c.catalogs {
		if cat.Name == name {
			return *cat, nil
		}
	}
	return Catalog{}, fmt.Errorf("%w: %s", ErrCatalogNotFound, name)
}

// CatalogBySource returns the catalog registered with src.
func (c *Collection) CatalogBySource(src string) (Catalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cat, ok := c.bySourceLocked(src)
	if !ok {
		return Catalog{}, fmt.Errorf("%w: source %s", ErrCatalogNotFound, src)
	}
	return *cat, nil
}

func (c *Collection) bySourceLocked(src string) (*Catalog, bool) {
	normalized := src
	if s, err := ParseSource(src); err == nil {
		normalized = s.String()
	}
	for _, cat := range c.catalogs {
		if cat.Source.String() == src || cat.Source.String() == normalized {
			return cat, true
		}
	}
	return nil, false
}

// SetLatest stores a freshly fetched index for a catalog without changing
// what the collection serves.
func (c *Collection) SetLatest(id int, index *CatalogIndex) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cat, ok := c.catalogs[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrCatalogNotFound, id)
	}
	cat.Latest = index
	return nil
}

// Upgrade makes a catalog's latest fetched index the served one and
// returns what changed.
func (c *Collection) Upgrade(id int) (Changes, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cat, ok := c.catalogs[id]
	if !ok {
		return Changes{}, fmt.Errorf("%w: id %d", ErrCatalogNotFound, id)
	}
	changes := diffIndexes(cat.Name, cat.Index, cat.Latest)
	cat.Index = cat.Latest
	return changes, nil
}

// Resolve finds the catalog and index entry for ref. Without a catalog
// name, an installed match wins, then the catalog with the lowest id.
func (c *Collection) Resolve(ref Ref) (Catalog, Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if ref.Catalog != "" {
		for _, cat := range c.catalogs {
			if cat.Name != ref.Catalog {
				continue
			}
			if e, ok := cat.Index.Find(ref.Coordinates); ok {
				return *cat, e, nil
			}
			return Catalog{}, Entry{}, fmt.Errorf("%w: %s", ErrSolutionNotFound, ref)
		}
		return Catalog{}, Entry{}, fmt.Errorf("%w: %s", ErrCatalogNotFound, ref.Catalog)
	}

	ids := make([]int, 0, len(c.catalogs))
	for id := range c.catalogs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var (
		found      bool
		firstCat   Catalog
		firstEntry Entry
	)
	for _, id := range ids {
		cat := c.catalogs[id]
		e, ok := cat.Index.Find(ref.Coordinates)
		if !ok {
			continue
		}
		if _, installed := c.installed[installKey{cat.ID, ref.Coordinates}]; installed {
			return *cat, e, nil
		}
		if !found {
			found, firstCat, firstEntry = true, *cat, e
		}
	}
	if !found {
		return Catalog{}, Entry{}, fmt.Errorf("%w: %s", ErrSolutionNotFound, ref)
	}
	return firstCat, firstEntry, nil
}

// BeginInstall reserves coords from a catalog for installation. It fails
// with ErrAlreadyInstalled when they are installed and ErrSolutionBusy when
// another install or uninstall holds them. The reservation ends with
// MarkInstalled or Release.
func (c *Collection) BeginInstall(catalogID int, coords Coordinates) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := installKey{catalogID, coords}
	if _, ok := c.installed[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyInstalled, coords)
	}
	return c.reserveLocked(key)
}

// BeginUninstall reserves an installed solution for removal and returns its
// installation. The reservation ends with MarkUninstalled or Release.
func (c *Collection) BeginUninstall(catalogID int, coords Coordinates) (Installation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := installKey{catalogID, coords}
	inst, ok := c.installed[key]
	if !ok {
		return Installation{}, fmt.Errorf("%w: %s", ErrNotInstalled, coords)
	}
	if err := c.reserveLocked(key); err != nil {
		return Installation{}, err
	}
	return inst, nil
}

func (c *Collection) reserveLocked(key installKey) error {
	if _, busy := c.pending[key]; busy {
		return fmt.Errorf("%w: %s", ErrSolutionBusy, key.coordinates)
	}
	if _, ok := c.catalogs[key.catalogID]; !ok {
		return fmt.Errorf("%w: id %d", ErrCatalogNotFound, key.catalogID)
	}
	c.pending[key] = struct{}{}
	return nil
}

// Release drops a reservation taken by BeginInstall or BeginUninstall
// without changing the installation state.
func (c *Collection) Release(catalogID int, coords Coordinates) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, installKey{catalogID, coords})
}

// MarkInstalled records an installation, ends its reservation and adds it
// to the recently installed list.
func (c *Collection) MarkInstalled(inst Installation, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := installKey{inst.CatalogID, inst.Coordinates}
	delete(c.pending, key)
	c.installed[key] = inst
	c.recentInstalled = pushRecent(c.recentInstalled, RecentItem{
		Catalog:     inst.Catalog,
		Coordinates: inst.Coordinates,
		Title:       title,
		At:          inst.InstalledAt,
	}, c.recentLimit)
}

// MarkUninstalled forgets an installation and ends its reservation.
func (c *Collection) MarkUninstalled(catalogID int, coords Coordinates) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := installKey{catalogID, coords}
	delete(c.pending, key)
	delete(c.installed, key)
}

// Installation returns the installation of coords from a catalog.
func (c *Collection) Installation(catalogID int, coords Coordinates) (Installation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inst, ok := c.installed[installKey{catalogID, coords}]
	return inst, ok
}

// IsInstalled reports whether coords from a catalog are installed.
func (c *Collection) IsInstalled(catalogID int, coords Coordinates) bool {
	_, ok := c.Installation(catalogID, coords)
	return ok
}

// RecordLaunch adds a solution to the recently launched list.
func (c *Collection) RecordLaunch(catalog string, coords Coordinates, title string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentLaunched = pushRecent(c.recentLaunched, RecentItem{
		Catalog:     catalog,
		Coordinates: coords,
		Title:       title,
		At:          at,
	}, c.recentLimit)
}

// RecentlyInstalled returns recently installed solutions, newest first.
func (c *Collection) RecentlyInstalled() []RecentItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]RecentItem{}, c.recentInstalled...)
}

// RecentlyLaunched returns recently launched solutions, newest first.
func (c *Collection) RecentlyLaunched() []RecentItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]RecentItem{}, c.recentLaunched...)
}

// pushRecent puts item at the front, removing an older entry for the same
// solution and trimming to limit.
func pushRecent(list []RecentItem, item RecentItem, limit int) []RecentItem {
	out := make([]RecentItem, 0, len(list)+1)
	out = append(out, item)
	for _, it := range list {
		if it.Catalog == item.Catalog && it.Coordinates == item.Coordinates {
			continue
		}
		out = append(out, it)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func dropCatalog(list []RecentItem, catalog string) []RecentItem {
	out := list[:0]
	for _, it := range list {
		if it.Catalog != catalog {
			out = append(out, it)
		}
	}
	return out
}
