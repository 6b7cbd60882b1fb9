// Package project locates and loads the arbor.toml manifest that
// configures the pass driver for a source tree.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest is a loaded arbor.toml plus where it was found.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Config mirrors the arbor.toml schema.
type Config struct {
	Layout LayoutConfig `toml:"layout"`
}

// LayoutConfig configures the layout pipeline.
type LayoutConfig struct {
	// Jobs bounds the per-function fan-out; 0 means one per CPU.
	Jobs int `toml:"jobs"`
	// DumpDir receives debug CFG dumps.
	DumpDir string `toml:"dump_dir"`
	// Debug lists functions whose pass output is traced.
	Debug []string `toml:"debug"`
}

// Find walks up from startDir looking for arbor.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "arbor.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load finds and decodes the nearest manifest. The second result is
// false when no manifest exists, which is not an error.
func Load(startDir string) (*Manifest, bool, error) {
	path, ok, err := Find(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, true, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &Manifest{
		Path:   path,
		Root:   filepath.Dir(path),
		Config: cfg,
	}, true, nil
}
