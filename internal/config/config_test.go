package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", filepath.Join(dir, "home-does-not-exist"))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.Provider)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
}

func TestLoadProjectOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", filepath.Join(dir, "home-does-not-exist"))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".takt"), 0755))
	projectYAML := "provider: mock\nworker:\n  concurrency: 4\n"
	require.NoError(t, os.WriteFile(ProjectPath(dir), []byte(projectYAML), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Provider)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	// Untouched defaults survive the merge.
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", filepath.Join(dir, "home-does-not-exist"))
	t.Setenv("TAKT_ANTHROPIC_API_KEY", "env-key")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Providers.AnthropicAPIKey)
}
