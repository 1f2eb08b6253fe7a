package solution

import "errors"

var (
	// ErrCatalogNotFound is returned when no catalog matches a name or source.
	ErrCatalogNotFound = errors.New("catalog not found")

	// ErrSolutionNotFound is returned when no catalog lists the requested coordinates.
	ErrSolutionNotFound = errors.New("solution not found")

	// ErrCatalogExists is returned when adding a catalog whose source or name
	// is already in the collection.
	ErrCatalogExists = errors.New("catalog already exists")

	// ErrInvalidCoordinates is returned for malformed group/name/version triples.
	ErrInvalidCoordinates = errors.New("invalid solution coordinates")

	// ErrInvalidSource is returned for catalog or clone sources that cannot be used.
	ErrInvalidSource = errors.New("invalid source")

	// ErrNotInstalled is returned when running, testing or uninstalling a
	// solution that is not installed.
	ErrNotInstalled = errors.New("solution not installed")

	// ErrAlreadyInstalled is returned when installing a solution twice.
	ErrAlreadyInstalled = errors.New("solution already installed")

	// ErrSolutionBusy is returned when a solution is already being
	// installed or uninstalled.
	ErrSolutionBusy = errors.New("solution install or uninstall in progress")

	// ErrReadOnlyCatalog is returned when deploying into a catalog that is
	// not a local directory.
	ErrReadOnlyCatalog = errors.New("catalog is read-only")
)
