package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoshihiko555/takt/internal/clone"
	"github.com/yoshihiko555/takt/internal/config"
	"github.com/yoshihiko555/takt/internal/gh"
	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/piece"
	"github.com/yoshihiko555/takt/internal/provider"
	"github.com/yoshihiko555/takt/internal/queue"
)

// pollIntervalFrom converts a millisecond count to a duration, the
// worker pool itself clamps to [100ms, 5s].
func pollIntervalFrom(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// env bundles the dependencies every subcommand needs, resolved once
// from the --project/--provider/--model persistent flags and the
// layered config.
type env struct {
	projectDir string
	cfg        config.Config
	verbose    bool

	defaultProvider provider.Kind
	model           string
}

func resolveEnv(cmd *cobra.Command) (*env, error) {
	projectFlag, _ := cmd.Flags().GetString("project")
	projectDir, err := filepath.Abs(projectFlag)
	if err != nil {
		return nil, fmt.Errorf("cmd: resolving project directory %q: %w", projectFlag, err)
	}

	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}

	providerFlag, _ := cmd.Flags().GetString("provider")
	modelFlag, _ := cmd.Flags().GetString("model")
	verbose, _ := cmd.Flags().GetBool("verbose")

	kind := provider.Kind(cfg.Provider)
	if providerFlag != "" {
		kind = provider.Kind(providerFlag)
	}
	model := cfg.Model
	if modelFlag != "" {
		model = modelFlag
	}

	return &env{
		projectDir:      projectDir,
		cfg:             cfg,
		verbose:         verbose,
		defaultProvider: kind,
		model:           model,
	}, nil
}

// tasksPath returns the project's .takt/tasks.yaml path.
func (e *env) tasksPath() string {
	return filepath.Join(e.projectDir, ".takt", "tasks.yaml")
}

func (e *env) queueStore() *queue.Store {
	return queue.New(e.tasksPath())
}

func (e *env) pieceLoader() *piece.Loader {
	return piece.NewLoader(e.projectDir)
}

func (e *env) cloneManager() *clone.Manager {
	metaDir := filepath.Join(e.projectDir, ".takt", "clone-meta")
	return clone.New(nil, metaDir)
}

func (e *env) ghClient() *gh.Client {
	return gh.New(nil, e.projectDir)
}

// buildAdapters constructs the full set of provider adapters TAKT
// knows about (claude, codex, opencode, mock), so a piece that mixes
// providers per-movement can resolve any of them regardless of the
// CLI's default.
func (e *env) buildAdapters() (map[provider.Kind]provider.Adapter, error) {
	adapters := make(map[provider.Kind]provider.Adapter, 4)

	baseOpts := provider.Options{APIKey: e.cfg.Providers.AnthropicAPIKey}
	claudeAdapter, err := provider.New(provider.Claude, provider.Options{
		BinaryPath: e.cfg.Providers.ClaudePath,
		APIKey:     e.cfg.Providers.AnthropicAPIKey,
	})
	if err != nil {
		return nil, err
	}
	adapters[provider.Claude] = claudeAdapter

	codexAdapter, err := provider.New(provider.Codex, provider.Options{
		BinaryPath: e.cfg.Providers.CodexPath,
		APIKey:     e.cfg.Providers.OpenAIAPIKey,
	})
	if err != nil {
		return nil, err
	}
	adapters[provider.Codex] = codexAdapter

	opencodeAdapter, err := provider.New(provider.OpenCode, provider.Options{
		BinaryPath: e.cfg.Providers.OpenCodePath,
		APIKey:     e.cfg.Providers.OpenCodeAPIKey,
	})
	if err != nil {
		return nil, err
	}
	adapters[provider.OpenCode] = opencodeAdapter

	mockAdapter, err := provider.New(provider.Mock, baseOpts)
	if err != nil {
		// A missing/invalid TAKT_MOCK_SCENARIO only matters if mock is
		// actually selected; registering it is best-effort.
		_ = err
	} else {
		adapters[provider.Mock] = mockAdapter
	}

	return adapters, nil
}

func (e *env) loopDetectorConfig() models.LoopDetectorConfig {
	return models.LoopDetectorConfig{
		MaxConsecutiveSameMovement: 3,
		Action:                     models.LoopWarn,
	}
}
