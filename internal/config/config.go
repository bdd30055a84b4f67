// Package config loads TAKT's layered configuration: builtin defaults,
// the user's global config, and the project's local overrides, deep
// merged in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// TimeoutsConfig bounds how long the engine waits on external
// collaborators.
type TimeoutsConfig struct {
	LLM       time.Duration `yaml:"llm"`
	GitPush   time.Duration `yaml:"git_push"`
	GhCommand time.Duration `yaml:"gh_command"`
}

// ProviderConfig holds per-provider binary paths and API keys. The API
// keys and the Codex path can be overridden by env vars; the Claude and
// OpenCode paths cannot.
type ProviderConfig struct {
	ClaudePath   string `yaml:"claude_path"`
	CodexPath    string `yaml:"codex_path"`
	OpenCodePath string `yaml:"opencode_path"`

	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	OpenCodeAPIKey  string `yaml:"-"`
}

// ConsoleConfig controls terminal output formatting.
type ConsoleConfig struct {
	EnableColor     bool `yaml:"enable_color"`
	EnableProgress  bool `yaml:"enable_progress"`
	CompactMode     bool `yaml:"compact_mode"`
}

// WorkerConfig configures the bounded worker pool.
type WorkerConfig struct {
	Concurrency      int `yaml:"concurrency"`
	PollIntervalMs   int `yaml:"poll_interval_ms"`
}

// Config is the fully-merged TAKT configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogDir    string          `yaml:"log_dir"`
	Provider  string          `yaml:"provider"`
	Model     string          `yaml:"model"`
	Providers ProviderConfig  `yaml:"providers"`
	Console   ConsoleConfig   `yaml:"console"`
	Worker    WorkerConfig    `yaml:"worker"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Language  string          `yaml:"language"`
}

// Default returns the builtin baseline configuration (the innermost of
// the three layers).
func Default() Config {
	return Config{
		LogLevel: "info",
		LogDir:   ".takt/logs",
		Provider: "claude",
		Console: ConsoleConfig{
			EnableColor:    true,
			EnableProgress: true,
		},
		Worker: WorkerConfig{
			Concurrency:    1,
			PollIntervalMs: 1000,
		},
		Timeouts: TimeoutsConfig{
			LLM:       20 * time.Minute,
			GitPush:   2 * time.Minute,
			GhCommand: 30 * time.Second,
		},
		Language: "en",
	}
}

// GlobalPath returns the global config file path,
// `~/.config/takt/config.yaml`.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "takt", "config.yaml"), nil
}

// ProjectPath returns the project-local config file path,
// `.takt/config.yaml`, relative to projectDir.
func ProjectPath(projectDir string) string {
	return filepath.Join(projectDir, ".takt", "config.yaml")
}

// Load resolves the three-layer configuration for a project directory:
// builtin defaults, deep-merged with the global file (if present),
// deep-merged with the project file (if present), then env-var
// overrides. Each layer "overrides" means its
// non-zero-valued fields win over the layer beneath (mergo.WithOverride),
// the same merge the pack's otto config loader uses for its own
// user/repo JSONC layering.
func Load(projectDir string) (Config, error) {
	cfg := Default()

	if globalPath, err := GlobalPath(); err == nil {
		if err := mergeFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	if err := mergeFile(&cfg, ProjectPath(projectDir)); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var layer Config
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, layer, mergo.WithOverride); err != nil {
		return fmt.Errorf("config: merging %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies the recognized environment variables,
// which always win over file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TAKT_ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.AnthropicAPIKey = v
	}
	if v := os.Getenv("TAKT_OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAIAPIKey = v
	}
	if v := os.Getenv("TAKT_OPENCODE_API_KEY"); v != "" {
		cfg.Providers.OpenCodeAPIKey = v
	}
	if v := os.Getenv("TAKT_CODEX_CLI_PATH"); v != "" {
		cfg.Providers.CodexPath = v
	}
}
