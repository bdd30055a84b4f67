package provider

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/yoshihiko555/takt/internal/models"
)

// DefaultSystemPrompt enforces JSON-only output when a schema is
// requested, preventing agents from wrapping the answer in prose or
// code fences.
const DefaultSystemPrompt = "You are a piece movement executor. When a JSON schema is supplied your ONLY output must be valid JSON matching it. No markdown, no code fences, no prose outside the schema."

// ClaudeAdapter invokes the Claude Code CLI. It follows the
// create-once-use-many http.Client pattern: safe for concurrent use
// across parallel sub-movements and arpeggio batches.
type ClaudeAdapter struct {
	BinaryPath string
	Timeout    time.Duration
}

// NewClaudeAdapter builds a ClaudeAdapter from provider options.
func NewClaudeAdapter(opts Options) *ClaudeAdapter {
	path := opts.BinaryPath
	if path == "" {
		path = "claude"
	}
	return &ClaudeAdapter{BinaryPath: path, Timeout: 20 * time.Minute}
}

// Kind identifies this adapter.
func (a *ClaudeAdapter) Kind() Kind { return Claude }

// Invoke shells out to `claude` with the flags this invocation needs:
// a system prompt, the rendered instruction as -p, an optional
// --json-schema, --resume for session continuity, and a permission mode
// translating movement.permissionMode / Request.AllowWrite.
func (a *ClaudeAdapter) Invoke(ctx context.Context, req Request) (*models.Response, error) {
	ctxToUse := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctxToUse, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	args := []string{}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", joinComma(req.AllowedTools))
	}

	systemPrompt := DefaultSystemPrompt
	args = append(args, "--system-prompt", systemPrompt)

	if req.Prompt == "" {
		return nil, fmt.Errorf("claude provider: prompt is required")
	}
	args = append(args, "-p", req.Prompt)

	if req.Schema != "" {
		args = append(args, "--json-schema", req.Schema)
	}
	args = append(args, "--output-format", "json")

	mode := permissionModeFlag(req.PermissionMode, req.AllowWrite)
	if mode != "" {
		args = append(args, "--permission-mode", mode)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	args = append(args, "--settings", `{"disableAllHooks": true}`)

	cmd := exec.CommandContext(ctxToUse, a.BinaryPath, args...)
	SetCleanEnv(cmd)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return &models.Response{
			Persona:   req.Persona,
			Status:    models.StatusError,
			Timestamp: time.Now(),
			Error:     fmt.Sprintf("claude invocation failed: %v (output: %s)", err, string(output)),
		}, nil
	}

	content, sessionID := ParseCLIOutput(output)
	return &models.Response{
		Persona:          req.Persona,
		Status:           models.StatusDone,
		Content:          content,
		Timestamp:        time.Now(),
		SessionID:        sessionID,
		StructuredOutput: content,
	}, nil
}

func permissionModeFlag(mode string, allowWrite bool) string {
	switch mode {
	case "readonly":
		return "plan"
	case "sacrifice-my-pc":
		return "bypassPermissions"
	case "edit":
		return "acceptEdits"
	default:
		if allowWrite {
			return "acceptEdits"
		}
		return ""
	}
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}
