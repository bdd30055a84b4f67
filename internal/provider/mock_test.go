package provider

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoshihiko555/takt/internal/models"
)

func writeScenario(t *testing.T, entries []ScenarioEntry) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.json")
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestMockAdapterAgentSpecificFirst(t *testing.T) {
	path := writeScenario(t, []ScenarioEntry{
		{Status: "done", Content: "generic"},
		{Agent: "plan", Status: "done", Content: "[PLAN:1]"},
	})

	a, err := NewMockAdapter(Options{MockScenario: path})
	require.NoError(t, err)

	resp, err := a.Invoke(context.Background(), Request{Persona: "plan", Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, "[PLAN:1]", resp.Content)
	assert.Equal(t, models.StatusDone, resp.Status)

	// Next call for "plan" falls through to the unspecified queue.
	resp2, err := a.Invoke(context.Background(), Request{Persona: "plan", Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, "generic", resp2.Content)
}

func TestMockAdapterExhaustedFallsBackToPrompt(t *testing.T) {
	a, err := NewMockAdapter(Options{})
	require.NoError(t, err)

	resp, err := a.Invoke(context.Background(), Request{Persona: "plan", Prompt: "echo me"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, resp.Status)
	assert.Equal(t, "echo me", resp.Content)
}

func TestMockAdapterErrorStatus(t *testing.T) {
	path := writeScenario(t, []ScenarioEntry{
		{Agent: "reviewer", Status: "error", Content: "boom"},
	})
	a, err := NewMockAdapter(Options{MockScenario: path})
	require.NoError(t, err)

	resp, err := a.Invoke(context.Background(), Request{Persona: "reviewer", Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, "boom", resp.Error)
}
