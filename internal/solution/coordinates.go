package solution

import (
	"fmt"
	"regexp"
	"strings"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Coordinates identify a solution inside a catalog.
type Coordinates struct {
	Group   string `json:"group" toml:"group"`
	Name    string `json:"name" toml:"name"`
	Version string `json:"version" toml:"version"`
}

// NewCoordinates validates and returns coordinates.
func NewCoordinates(group, name, version string) (Coordinates, error) {
	c := Coordinates{Group: group, Name: name, Version: version}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// ParseCoordinates parses "group:name:version".
func ParseCoordinates(s string) (Coordinates, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Coordinates{}, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
	}
	return NewCoordinates(parts[0], parts[1], parts[2])
}

// Validate checks that every segment is a safe, non-empty path element.
func (c Coordinates) Validate() error {
	for field, v := range map[string]string{"group": c.Group, "name": c.Name, "version": c.Version} {
		if !segmentPattern.MatchString(v) || strings.Contains(v, "..") {
			return fmt.Errorf("%w: bad %s %q", ErrInvalidCoordinates, field, v)
		}
	}
	return nil
}

func (c Coordinates) String() string {
	return c.Group + ":" + c.Name + ":" + c.Version
}

// Ref names a solution, optionally pinned to a catalog by name.
type Ref struct {
	Catalog     string
	Coordinates Coordinates
}

func (r Ref) String() string {
	if r.Catalog == "" {
		return r.Coordinates.String()
	}
	return r.Catalog + ":" + r.Coordinates.String()
}

// ParseRef parses "catalog:group:name:version" or "group:name:version".
func ParseRef(s string) (Ref, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 3:
		c, err := NewCoordinates(parts[0], parts[1], parts[2])
		return Ref{Coordinates: c}, err
	case 4:
		if parts[0] == "" {
			return Ref{}, fmt.Errorf("%w: empty catalog in %q", ErrInvalidCoordinates, s)
		}
		c, err := NewCoordinates(parts[1], parts[2], parts[3])
		return Ref{Catalog: parts[0], Coordinates: c}, err
	default:
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
	}
}
