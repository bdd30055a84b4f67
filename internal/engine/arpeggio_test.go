package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoshihiko555/takt/internal/models"
)

func TestLoadBatchesGroupsInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.json")
	data, err := json.Marshal([]map[string]any{
		{"id": 1}, {"id": 2}, {"id": 3}, {"id": 4}, {"id": 5},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg := &models.ArpeggioConfig{SourcePath: path, BatchSize: 2}
	batches, err := loadBatches(cfg)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, 0, batches[0].Index)
	assert.Equal(t, 2, batches[2].Index)
}

func TestLoadBatchesEmptySourceYieldsNoBatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))

	cfg := &models.ArpeggioConfig{SourcePath: path, BatchSize: 2}
	batches, err := loadBatches(cfg)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestMergeArpeggioResultsConcat(t *testing.T) {
	results := []batchResult{{index: 0, content: "a"}, {index: 1, content: "b"}}
	assert.Equal(t, "a\n\nb", mergeArpeggioResults("concat", results))
}

func TestMergeArpeggioResultsJSONMerge(t *testing.T) {
	results := []batchResult{{index: 0, content: `{"a":1}`}, {index: 1, content: `{"b":2}`}}
	assert.Equal(t, `[{"a":1},{"b":2}]`, mergeArpeggioResults("json_merge", results))
}

func TestRenderArpeggioPrompt(t *testing.T) {
	b := DataBatch{Index: 2, Data: []map[string]any{{"id": 1}}}
	out := renderArpeggioPrompt("batch {batch_index} for {task}: {batch_data}", "sweep repo", b)
	assert.Contains(t, out, "batch 2 for sweep repo")
	assert.Contains(t, out, `"id":1`)
}
