package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yoshihiko555/takt/internal/filelock"
	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/provider"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"
)

// DataBatch is one unit of work pulled from an arpeggio data source,
// indexed in the stable order the source produced it.
type DataBatch struct {
	Index int
	Data  any
}

// loadBatches reads cfg.SourcePath (a YAML or JSON array of records)
// and groups it into batches of cfg.BatchSize, in file order.
func loadBatches(cfg *models.ArpeggioConfig) ([]DataBatch, error) {
	raw, err := os.ReadFile(cfg.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("arpeggio: reading source %q: %w", cfg.SourcePath, err)
	}

	var records []any
	if strings.HasSuffix(cfg.SourcePath, ".json") {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("arpeggio: parsing source %q: %w", cfg.SourcePath, err)
		}
	} else if err := yaml.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("arpeggio: parsing source %q: %w", cfg.SourcePath, err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	var batches []DataBatch
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, DataBatch{Index: len(batches), Data: records[i:end]})
	}
	return batches, nil
}

type batchResult struct {
	index   int
	content string
	err     error
}

// runArpeggio pulls batches from movement.Arpeggio's data source and
// runs the movement's template against each with bounded concurrency,
// retrying failed batches before merging all results in index order.
func (e *Engine) runArpeggio(ctx context.Context, state *models.PieceState, movement *models.Movement, task string) (models.Response, error) {
	cfg := movement.Arpeggio

	batches, err := loadBatches(cfg)
	if err != nil {
		return models.Response{}, err
	}
	if len(batches) == 0 {
		return models.Response{}, fmt.Errorf("arpeggio movement %s: zero batches", movement.Name)
	}

	adapter, err := e.resolveAdapter(movement, movement.Persona)
	if err != nil {
		return models.Response{}, err
	}

	concurrency := int64(cfg.Concurrency)
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(concurrency)

	results := make([]batchResult, len(batches))
	var wg sync.WaitGroup

	for i, b := range batches {
		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = batchResult{index: b.Index, err: err}
			wg.Done()
			continue
		}
		go func(i int, b DataBatch) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = e.runArpeggioBatch(ctx, adapter, movement, cfg, b, task)
		}(i, b)
	}
	wg.Wait()

	var failures []string
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("batch %d: %s", r.index, r.err.Error()))
		}
	}
	if len(failures) > 0 {
		return models.Response{}, fmt.Errorf("arpeggio movement %s: %d/%d batches failed (%s)", movement.Name, len(failures), len(batches), strings.Join(failures, "; "))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	merged := mergeArpeggioResults(cfg.Merge, results)

	if cfg.OutputPath != "" {
		if err := filelock.AtomicWrite(cfg.OutputPath, []byte(merged)); err != nil {
			return models.Response{}, fmt.Errorf("arpeggio movement %s: writing output: %w", movement.Name, err)
		}
	}

	result := models.Response{
		Persona: movement.Persona,
		Status:  models.StatusDone,
		Content: merged,
	}

	if len(movement.Rules) > 0 {
		res, err := e.Rules.Evaluate(ctx, movement.Name, movement.Rules, merged, "", false)
		if err == nil {
			idx := res.Index
			result.MatchedRuleIndex = &idx
			result.MatchedRuleMethod = res.Method
		}
	}

	return result, nil
}

// runArpeggioBatch invokes the provider for one batch, retrying up to
// cfg.MaxRetries times on a non-done response or a provider error.
func (e *Engine) runArpeggioBatch(ctx context.Context, adapter provider.Adapter, movement *models.Movement, cfg *models.ArpeggioConfig, b DataBatch, task string) batchResult {
	tmpl := movement.InstructionTemplate
	if cfg.TemplatePath != "" {
		if data, err := os.ReadFile(cfg.TemplatePath); err == nil {
			tmpl = string(data)
		}
	}
	prompt := renderArpeggioPrompt(tmpl, task, b)

	var lastErr error
	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return batchResult{index: b.Index, err: err}
		}
		if attempt > 0 && cfg.RetryDelayMs > 0 {
			select {
			case <-time.After(time.Duration(cfg.RetryDelayMs) * time.Millisecond):
			case <-ctx.Done():
				return batchResult{index: b.Index, err: ctx.Err()}
			}
		}

		resp, err := adapter.Invoke(ctx, provider.Request{
			Persona: movement.Persona,
			Prompt:  prompt,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if !resp.IsDone() {
			lastErr = fmt.Errorf("status=%s: %s", resp.Status, resp.Error)
			continue
		}
		return batchResult{index: b.Index, content: resp.Content}
	}

	return batchResult{index: b.Index, err: lastErr}
}

func renderArpeggioPrompt(tmpl, task string, b DataBatch) string {
	data, _ := json.Marshal(b.Data)
	out := strings.ReplaceAll(tmpl, "{task}", task)
	out = strings.ReplaceAll(out, "{batch_index}", fmt.Sprintf("%d", b.Index))
	out = strings.ReplaceAll(out, "{batch_data}", string(data))
	return out
}

// mergeArpeggioResults reduces per-batch content by the configured
// strategy. "concat" (the default) joins with blank lines; "json_merge"
// concatenates each batch's content as a JSON array element.
func mergeArpeggioResults(merge string, results []batchResult) string {
	switch merge {
	case "json_merge":
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = r.content
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = r.content
		}
		return strings.Join(parts, "\n\n")
	}
}
