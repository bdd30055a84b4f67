package provider

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/yoshihiko555/takt/internal/models"
)

// CodexAdapter invokes the OpenAI Codex CLI, following the same
// exec.CommandContext + JSON-wrapper shape as ClaudeAdapter.
type CodexAdapter struct {
	BinaryPath string
	Timeout    time.Duration
}

// NewCodexAdapter builds a CodexAdapter from provider options.
func NewCodexAdapter(opts Options) *CodexAdapter {
	path := opts.BinaryPath
	if path == "" {
		path = "codex"
	}
	return &CodexAdapter{BinaryPath: path, Timeout: 20 * time.Minute}
}

// Kind identifies this adapter.
func (a *CodexAdapter) Kind() Kind { return Codex }

// Invoke shells out to `codex exec` non-interactively.
func (a *CodexAdapter) Invoke(ctx context.Context, req Request) (*models.Response, error) {
	ctxToUse := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctxToUse, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	args := []string{"exec", "--json"}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}
	if !req.AllowWrite {
		args = append(args, "--sandbox", "read-only")
	} else {
		args = append(args, "--sandbox", "workspace-write")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("codex provider: prompt is required")
	}
	args = append(args, req.Prompt)

	cmd := exec.CommandContext(ctxToUse, a.BinaryPath, args...)
	SetCleanEnv(cmd)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return &models.Response{
			Persona:   req.Persona,
			Status:    models.StatusError,
			Timestamp: time.Now(),
			Error:     fmt.Sprintf("codex invocation failed: %v (output: %s)", err, string(output)),
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
