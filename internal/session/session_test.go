package session_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoshihiko555/takt/internal/engine"
	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/session"
)

func TestWriterAppendsEventsAndUpdatesMeta(t *testing.T) {
	root := t.TempDir()
	dirs, err := session.NewDirs(root)
	require.NoError(t, err)

	w, err := session.New(dirs, models.RunMeta{Task: "ship it", Piece: "demo", RunSlug: "20260731-ship-it"})
	require.NoError(t, err)

	b := engine.NewBroadcaster()
	w.Listen(b)

	b.Emit(models.NewEvent(models.EventPieceStart, map[string]any{"piece": "demo"}))
	b.Emit(models.NewEvent(models.EventPieceComplete, map[string]any{"status": "completed"}))

	require.NoError(t, w.Close())

	f, err := os.Open(filepath.Join(dirs.Logs, "run.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "piece_start", first["type"])
	assert.Equal(t, "demo", first["piece"])

	metaData, err := os.ReadFile(filepath.Join(root, "meta.json"))
	require.NoError(t, err)
	var meta models.RunMeta
	require.NoError(t, json.Unmarshal(metaData, &meta))
	assert.Equal(t, "completed", meta.Status)
	assert.Equal(t, "ship it", meta.Task)
}

func TestPersonaSessionsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona-sessions.json")

	empty, err := session.LoadPersonaSessions(path)
	require.NoError(t, err)
	assert.Empty(t, empty)

	sessions := map[string]string{"planner": "sess-1", "coder": "sess-2"}
	require.NoError(t, session.SavePersonaSessions(path, sessions))

	loaded, err := session.LoadPersonaSessions(path)
	require.NoError(t, err)
	assert.Equal(t, sessions, loaded)
}
