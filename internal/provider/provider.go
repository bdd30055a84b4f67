// Package provider implements the Provider Adapter: a uniform call shape over Claude Code, Codex, OpenCode, and a
// deterministic mock, each invoked as an external CLI process.
package provider

import (
	"context"
	"fmt"

	"github.com/yoshihiko555/takt/internal/models"
)

// Kind names one of the four supported providers.
type Kind string

const (
	Claude   Kind = "claude"
	Codex    Kind = "codex"
	OpenCode Kind = "opencode"
	Mock     Kind = "mock"
)

// StreamEvent is one chunk of streamed provider output, the argument of
// a Request's OnEvent callback. The adapters in this package do not emit
// stream events.
type StreamEvent struct {
	Kind    string // "text", "tool_use", "tool_result", ...
	Content string
}

// Request is one provider invocation, shared across Phase 1/2/3 of a
// movement.
type Request struct {
	// Persona is the system-prompt/agent role driving this call.
	Persona string
	// Prompt is the rendered instruction text.
	Prompt string
	// Schema, when set, asks the provider to emit JSON matching it
	// (used by the rule evaluator's structured-output and AI-judge
	// stages).
	Schema string
	// ResumeSessionID continues a previous session.
	ResumeSessionID string
	// AllowWrite permits file-editing tools; Phase 1 disallows Write
	// tools when the movement declares output contracts.
	AllowWrite bool
	// PermissionMode is one of the readonly/edit/sacrifice-my-pc
	// modes.
	PermissionMode string
	// Model overrides the provider's default model, if set.
	Model string
	// AllowedTools restricts the tool surface (from persona frontmatter
	// or movement config).
	AllowedTools []string
	// OnEvent receives streamed provider output. May be nil. None of
	// the adapters in this package call it; they return only the final
	// response.
	OnEvent func(StreamEvent)
}

// Adapter is implemented by every provider backend. Invoke performs one
// synchronous call and returns a uniform response.
type Adapter interface {
	Kind() Kind
	Invoke(ctx context.Context, req Request) (*models.Response, error)
}

// AskUserQuestionDeniedError is the error for an AskUserQuestion request
// denied during piece execution. No adapter in this package registers a
// permission handler, so nothing in this package returns it.
type AskUserQuestionDeniedError struct{}

func (AskUserQuestionDeniedError) Error() string {
	return "AskUserQuestion is denied during piece execution"
}

// New resolves a Kind to a concrete Adapter.
func New(kind Kind, opts Options) (Adapter, error) {
	switch kind {
	case Claude, "":
		return NewClaudeAdapter(opts), nil
	case Codex:
		return NewCodexAdapter(opts), nil
	case OpenCode:
		return NewOpenCodeAdapter(opts), nil
	case Mock:
		return NewMockAdapter(opts)
	default:
		return nil, fmt.Errorf("provider: unknown kind %q", kind)
	}
}

// Options configures any adapter: binary path, API key, network mode,
// and the mock scenario path. It carries no timeout; each CLI adapter
// sets its own fixed 20-minute timeout.
type Options struct {
	BinaryPath   string
	APIKey       string
	NetworkMode  string
	MockScenario string // path to TAKT_MOCK_SCENARIO file
}
