package piece

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuiltinDemo(t *testing.T) {
	l := NewLoader(t.TempDir())
	l.GlobalDir = "" // force builtin fallback

	p, err := l.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)
	assert.Equal(t, "builtin", p.Layer())
	assert.Equal(t, "plan", p.InitialMovement)
}

func TestLoadProjectOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	piecesDir := filepath.Join(dir, ".takt", "pieces")
	require.NoError(t, os.MkdirAll(piecesDir, 0755))

	custom := `
name: demo
initial_movement: only
max_movements: 5
movements:
  - name: only
    persona: plan
    instruction_template: "go"
    rules:
      - condition: done
        next: COMPLETE
`
	require.NoError(t, os.WriteFile(filepath.Join(piecesDir, "demo.yaml"), []byte(custom), 0644))

	l := NewLoader(dir)
	l.GlobalDir = ""

	p, err := l.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, "project", p.Layer())
	assert.Equal(t, "only", p.InitialMovement)
}

func TestLoadUnknownPiece(t *testing.T) {
	l := NewLoader(t.TempDir())
	l.GlobalDir = ""

	_, err := l.Load("does-not-exist")
	assert.Error(t, err)
}

func TestEjectCopiesBuiltinToProject(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(dir)
	l.GlobalDir = ""

	dest, err := l.Eject("demo")
	require.NoError(t, err)
	assert.FileExists(t, dest)

	_, err = l.Eject("demo")
	assert.Error(t, err, "ejecting twice should refuse to overwrite")
}

func TestLoadPersonaFrontmatter(t *testing.T) {
	l := NewLoader(t.TempDir())
	l.GlobalDir = ""

	p, err := l.LoadPersona("coder")
	require.NoError(t, err)
	assert.Equal(t, "Coder", p.DisplayName)
	assert.Contains(t, p.AllowedTools, "Write")
	assert.NotEmpty(t, p.Body)
}
