package solution

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DescriptorFile is the file name of a solution descriptor.
const DescriptorFile = "solution.toml"

// Commands holds the argv for each solution action. An empty command means
// the action has nothing to execute.
type Commands struct {
	Install   []string `toml:"install,omitempty" json:"install,omitempty"`
	Run       []string `toml:"run,omitempty" json:"run,omitempty"`
	Test      []string `toml:"test,omitempty" json:"test,omitempty"`
	Uninstall []string `toml:"uninstall,omitempty" json:"uninstall,omitempty"`
}

// Descriptor is the parsed content of a solution.toml.
type Descriptor struct {
	Group       string   `toml:"group" json:"group"`
	Name        string   `toml:"name" json:"name"`
	Version     string   `toml:"version" json:"version"`
	Title       string   `toml:"title,omitempty" json:"title,omitempty"`
	Description string   `toml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `toml:"tags,omitempty" json:"tags,omitempty"`
	Commands    Commands `toml:"commands" json:"commands"`
}

// Coordinates returns the descriptor's coordinates.
func (d *Descriptor) Coordinates() Coordinates {
	return Coordinates{Group: d.Group, Name: d.Name, Version: d.Version}
}

// ParseDescriptor decodes and validates a solution descriptor.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if _, err := toml.Decode(string(data), &d); err != nil {
		return nil, fmt.Errorf("failed to parse solution descriptor: %w", err)
	}
	if err := d.Coordinates().Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadDescriptor reads a solution descriptor from path. A directory is
// resolved to the solution.toml inside it.
func LoadDescriptor(path string) (*Descriptor, error) {
	path, err := descriptorPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return ParseDescriptor(data)
}

// Encode serializes the descriptor as TOML.
func (d *Descriptor) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode solution descriptor: %w", err)
	}
	return buf.Bytes(), nil
}

func descriptorPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if info.IsDir() {
		return filepath.Join(path, DescriptorFile), nil
	}
	return path, nil
}
