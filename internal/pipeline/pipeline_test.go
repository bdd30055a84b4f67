package pipeline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoshihiko555/takt/internal/clone"
	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/piece"
	"github.com/yoshihiko555/takt/internal/pipeline"
	"github.com/yoshihiko555/takt/internal/provider"
	"github.com/yoshihiko555/takt/internal/queue"
)

const demoPiece = `
name: demo
max_movements: 10
initial_movement: implement
movements:
  - name: implement
    persona: coder
    instruction_template: "implement {task}"
    rules:
      - condition: always
        next: COMPLETE
`

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".takt", "pieces"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".takt", "pieces", "demo.yaml"), []byte(demoPiece), 0644))
	return dir
}

func mockAdapter(t *testing.T, entries []provider.ScenarioEntry) provider.Adapter {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.json")
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	a, err := provider.NewMockAdapter(provider.Options{MockScenario: path})
	require.NoError(t, err)
	return a
}

func TestRunTaskPlainCompletesWithoutClone(t *testing.T) {
	projectDir := newProject(t)
	store := queue.New(filepath.Join(projectDir, ".takt", "tasks.yaml"))
	_, err := store.AddTask("ship it", queue.AddOptions{Piece: "demo"})
	require.NoError(t, err)
	claimed, err := store.ClaimNextTasks(1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	adapter := mockAdapter(t, []provider.ScenarioEntry{{Status: "done", Content: "done"}})

	orch := pipeline.New(pipeline.Deps{
		ProjectDir: projectDir,
		Queue:      store,
		Pieces:     piece.NewLoader(projectDir),
		Adapters:   map[provider.Kind]provider.Adapter{provider.Mock: adapter},
		DefaultProvider: provider.Mock,
	})

	outcome, err := orch.RunTask(context.Background(), claimed[0])
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Empty(t, outcome.WorktreePath)

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.TaskCompleted, all[0].Status)
}

type fakeGitRunner struct {
	outputs map[string]string
}

func (f *fakeGitRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	key := name
	for _, a := range args {
		key += " " + a
	}
	return f.outputs[key], nil
}

func TestRunTaskWorktreeModeCommitsAndPushes(t *testing.T) {
	projectDir := newProject(t)
	store := queue.New(filepath.Join(projectDir, ".takt", "tasks.yaml"))
	_, err := store.AddTask("ship it", queue.AddOptions{Piece: "demo", Worktree: "auto"})
	require.NoError(t, err)
	claimed, err := store.ClaimNextTasks(1)
	require.NoError(t, err)

	runner := &fakeGitRunner{outputs: map[string]string{
		"git branch --show-current": "main\n",
		"git status --porcelain":    " M file.go\n",
		"git rev-parse HEAD":        "cafef00d\n",
	}}
	clones := clone.New(runner, filepath.Join(projectDir, ".takt", "clone-meta"))

	adapter := mockAdapter(t, []provider.ScenarioEntry{{Status: "done", Content: "done"}})

	orch := pipeline.New(pipeline.Deps{
		ProjectDir:      projectDir,
		Queue:           store,
		Pieces:          piece.NewLoader(projectDir),
		Adapters:        map[provider.Kind]provider.Adapter{provider.Mock: adapter},
		DefaultProvider: provider.Mock,
		Clones:          clones,
	})

	outcome, err := orch.RunTask(context.Background(), claimed[0])
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Equal(t, "cafef00d", outcome.CommitHash)
	assert.NotEmpty(t, outcome.WorktreePath)

	all, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, "cafef00d", all[0].CommitHash)
}

func TestRunTaskFailsClosedWhenPieceAborts(t *testing.T) {
	projectDir := newProject(t)
	store := queue.New(filepath.Join(projectDir, ".takt", "tasks.yaml"))
	_, err := store.AddTask("ship it", queue.AddOptions{Piece: "demo"})
	require.NoError(t, err)
	claimed, err := store.ClaimNextTasks(1)
	require.NoError(t, err)

	adapter := mockAdapter(t, []provider.ScenarioEntry{{Status: "error", Content: "boom"}})

	orch := pipeline.New(pipeline.Deps{
		ProjectDir:      projectDir,
		Queue:           store,
		Pieces:          piece.NewLoader(projectDir),
		Adapters:        map[provider.Kind]provider.Adapter{provider.Mock: adapter},
		DefaultProvider: provider.Mock,
	})

	_, err = orch.RunTask(context.Background(), claimed[0])
	assert.Error(t, err)

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.TaskFailed, all[0].Status)
	require.NotNil(t, all[0].Failure)
	assert.Equal(t, "implement", all[0].Failure.Movement)
}

func TestRunTaskFailsEarlyWhenIssueTaskHasNoGHClient(t *testing.T) {
	projectDir := newProject(t)
	store := queue.New(filepath.Join(projectDir, ".takt", "tasks.yaml"))
	_, err := store.AddTask("", queue.AddOptions{Piece: "demo", Issue: "#9"})
	require.NoError(t, err)
	claimed, err := store.ClaimNextTasks(1)
	require.NoError(t, err)

	adapter := mockAdapter(t, []provider.ScenarioEntry{{Status: "done", Content: "done"}})

	orch := pipeline.New(pipeline.Deps{
		ProjectDir:      projectDir,
		Queue:           store,
		Pieces:          piece.NewLoader(projectDir),
		Adapters:        map[provider.Kind]provider.Adapter{provider.Mock: adapter},
		DefaultProvider: provider.Mock,
	})

	_, err = orch.RunTask(context.Background(), claimed[0])
	assert.Error(t, err)

	all, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, all[0].Status)
}
