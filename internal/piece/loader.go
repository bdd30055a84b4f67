// Package piece resolves a piece by name across the project, global,
// and builtin layers, and loads the persona resources its movements
// reference.
package piece

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/rule"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml builtin/personas/*.md
var builtinFS embed.FS

const (
	layerProject = "project"
	layerGlobal  = "global"
	layerBuiltin = "builtin"
)

// Loader resolves piece YAMLs across three layers: project
// (`.takt/pieces/*.yaml`), global (`~/.config/takt/pieces/*.yaml`),
// and builtin (compiled in).
type Loader struct {
	ProjectDir string
	GlobalDir  string
}

// NewLoader builds a Loader rooted at projectDir, with the global layer
// resolved from the user's home directory unless overridden.
func NewLoader(projectDir string) *Loader {
	l := &Loader{ProjectDir: projectDir}
	if home, err := os.UserHomeDir(); err == nil {
		l.GlobalDir = filepath.Join(home, ".config", "takt", "pieces")
	}
	return l
}

// Load resolves a piece by name, trying project, then global, then
// builtin, in that order, returning the first match. The loaded piece
// is validated before it's returned; a malformed piece is a fatal
// configuration error rather than something the engine can work
// around at runtime.
func (l *Loader) Load(name string) (*models.Piece, error) {
	candidates := []struct {
		layer string
		read  func() ([]byte, error)
	}{
		{layerProject, func() ([]byte, error) {
			return os.ReadFile(filepath.Join(l.ProjectDir, ".takt", "pieces", name+".yaml"))
		}},
		{layerGlobal, func() ([]byte, error) {
			if l.GlobalDir == "" {
				return nil, os.ErrNotExist
			}
			return os.ReadFile(filepath.Join(l.GlobalDir, name+".yaml"))
		}},
		{layerBuiltin, func() ([]byte, error) {
			return builtinFS.ReadFile(filepath.Join("builtin", name+".yaml"))
		}},
	}

	for _, c := range candidates {
		data, err := c.read()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("piece: reading %q from %s layer: %w", name, c.layer, err)
		}

		var p models.Piece
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("piece: parsing %q from %s layer: %w", name, c.layer, err)
		}
		p.SetLayer(c.layer)
		rule.NormalizePiece(&p)

		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("piece: %q from %s layer is invalid: %w", name, c.layer, err)
		}

		return &p, nil
	}

	return nil, fmt.Errorf("piece: %q not found in project, global, or builtin layers", name)
}

// List enumerates every piece name visible across all three layers,
// project layer first, without duplicates.
func (l *Loader) List() ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	collect := func(dir string, read func() ([]os.DirEntry, error)) error {
		entries, err := read()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := trimYAMLExt(e.Name())
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
		return nil
	}

	if err := collect(filepath.Join(l.ProjectDir, ".takt", "pieces"), func() ([]os.DirEntry, error) {
		return os.ReadDir(filepath.Join(l.ProjectDir, ".takt", "pieces"))
	}); err != nil {
		return nil, err
	}
	if l.GlobalDir != "" {
		if err := collect(l.GlobalDir, func() ([]os.DirEntry, error) {
			return os.ReadDir(l.GlobalDir)
		}); err != nil {
			return nil, err
		}
	}
	if err := collect("builtin", func() ([]os.DirEntry, error) {
		return builtinEntries()
	}); err != nil {
		return nil, err
	}

	return names, nil
}

func builtinEntries() ([]os.DirEntry, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, err
	}
	out := make([]os.DirEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func trimYAMLExt(name string) string {
	const ext = ".yaml"
	if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
		return name[:len(name)-len(ext)]
	}
	return ""
}

// Eject copies a builtin piece into the project layer so it can be
// edited locally, completing the loader's override contract.
func (l *Loader) Eject(name string) (string, error) {
	data, err := builtinFS.ReadFile(filepath.Join("builtin", name+".yaml"))
	if err != nil {
		return "", fmt.Errorf("piece: %q is not a builtin piece: %w", name, err)
	}

	dir := filepath.Join(l.ProjectDir, ".takt", "pieces")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("piece: creating %s: %w", dir, err)
	}

	dest := filepath.Join(dir, name+".yaml")
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("piece: %s already exists, refusing to overwrite", dest)
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return "", fmt.Errorf("piece: writing %s: %w", dest, err)
	}
	return dest, nil
}
