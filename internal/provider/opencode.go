package provider

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/yoshihiko555/takt/internal/models"
)

// OpenCodeAdapter invokes the OpenCode CLI in non-interactive "run"
// mode, the same exec.CommandContext + JSON-wrapper shape as the other
// adapters.
type OpenCodeAdapter struct {
	BinaryPath string
	Timeout    time.Duration
}

// NewOpenCodeAdapter builds an OpenCodeAdapter from provider options.
func NewOpenCodeAdapter(opts Options) *OpenCodeAdapter {
	path := opts.BinaryPath
	if path == "" {
		path = "opencode"
	}
	return &OpenCodeAdapter{BinaryPath: path, Timeout: 20 * time.Minute}
}

// Kind identifies this adapter.
func (a *OpenCodeAdapter) Kind() Kind { return OpenCode }

// Invoke shells out to `opencode run`.
func (a *OpenCodeAdapter) Invoke(ctx context.Context, req Request) (*models.Response, error) {
	ctxToUse := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctxToUse, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	args := []string{"run", "--format", "json"}
	if req.ResumeSessionID != "" {
		args = append(args, "--session", req.ResumeSessionID)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.AllowWrite {
		args = append(args, "--mode", "build")
	} else {
		args = append(args, "--mode", "plan")
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("opencode provider: prompt is required")
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
			Error:     fmt.Sprintf("opencode invocation failed: %v (output: %s)", err, string(output)),
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
