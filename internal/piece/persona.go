package piece

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/frontmatter"
)

// Persona is a named role resource: the markdown body is passed to the
// provider as a system prompt, and the frontmatter carries display
// metadata and the tool allowlist.
type Persona struct {
	Name         string
	DisplayName  string
	Description  string
	AllowedTools []string
	Body         string
}

type personaFrontmatter struct {
	DisplayName  string   `yaml:"display_name"`
	Description  string   `yaml:"description"`
	AllowedTools []string `yaml:"allowed_tools"`
}

// LoadPersona reads a persona markdown resource (project → global →
// builtin, same layering as pieces) and splits its YAML frontmatter
// from its body using github.com/adrg/frontmatter, the same accessor
// pattern otto's internal/store package uses for its resource files.
func (l *Loader) LoadPersona(name string) (*Persona, error) {
	candidates := []func() ([]byte, error){
		func() ([]byte, error) {
			return os.ReadFile(filepath.Join(l.ProjectDir, ".takt", "personas", name+".md"))
		},
		func() ([]byte, error) {
			if l.GlobalDir == "" {
				return nil, os.ErrNotExist
			}
			return os.ReadFile(filepath.Join(filepath.Dir(l.GlobalDir), "personas", name+".md"))
		},
		func() ([]byte, error) {
			return builtinFS.ReadFile(filepath.Join("builtin", "personas", name+".md"))
		},
	}

	for _, read := range candidates {
		data, err := read()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("persona: reading %q: %w", name, err)
		}

		var fm personaFrontmatter
		rest, err := frontmatter.Parse(bytes.NewReader(data), &fm)
		if err != nil {
			return nil, fmt.Errorf("persona: parsing frontmatter for %q: %w", name, err)
		}

		return &Persona{
			Name:         name,
			DisplayName:  fm.DisplayName,
			Description:  fm.Description,
			AllowedTools: fm.AllowedTools,
			Body:         string(bytes.TrimSpace(rest)),
		}, nil
	}

	return nil, fmt.Errorf("persona: %q not found in project, global, or builtin layers", name)
}
