// Package gh resolves GitHub issues into task content and creates
// pull requests once a task's clone has been pushed, shelling out to
// the gh CLI in the same subprocess-wrapping style internal/clone uses
// for git.
package gh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"
)

// CommandRunner abstracts gh subprocess execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (output string, err error)
}

// ExecRunner runs commands for real via os/exec.
type ExecRunner struct{}

// Run executes name with args in dir, returning combined stdout/stderr.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// ErrMissingGH indicates the gh CLI is not on PATH.
var ErrMissingGH = fmt.Errorf("gh: gh CLI not found on PATH")

// Client resolves issues and creates pull requests.
type Client struct {
	Runner  CommandRunner
	WorkDir string
	md      goldmark.Markdown
}

// New builds a Client. workDir is the project directory gh commands
// run in (issue/PR numbers are repo-relative).
func New(runner CommandRunner, workDir string) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{Runner: runner, WorkDir: workDir, md: goldmark.New()}
}

// CheckAvailable confirms the gh binary is reachable. Issue resolution
// must fail early rather than mid-pipeline if gh is missing.
func CheckAvailable() error {
	if _, err := exec.LookPath("gh"); err != nil {
		return ErrMissingGH
	}
	return nil
}

// issueView is the subset of `gh issue view --json` fields needed to
// format an issue into task markdown.
type issueView struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Labels   []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Comments []struct {
		Author struct {
			Login string `json:"login"`
		} `json:"author"`
		Body string `json:"body"`
	} `json:"comments"`
}

// ResolveIssue fetches issue number/URL ref via `gh issue view --json`
// and formats it as task markdown: title, body, labels, and comments.
func (c *Client) ResolveIssue(ctx context.Context, ref string) (string, error) {
	out, err := c.Runner.Run(ctx, c.WorkDir, "gh", "issue", "view", ref,
		"--json", "title,body,labels,comments")
	if err != nil {
		return "", fmt.Errorf("gh: resolving issue %s: %w", ref, err)
	}

	view, err := parseIssueView([]byte(out))
	if err != nil {
		return "", fmt.Errorf("gh: parsing issue %s: %w", ref, err)
	}

	content := formatIssue(view)
	if err := c.validateMarkdown(content); err != nil {
		return "", fmt.Errorf("gh: issue %s produced malformed markdown: %w", ref, err)
	}
	return content, nil
}

func (c *Client) validateMarkdown(content string) error {
	doc := c.md.Parser().Parse(text.NewReader([]byte(content)))
	if doc == nil {
		return fmt.Errorf("empty document")
	}
	return nil
}

func formatIssue(v *issueView) string {
	var sb strings.Builder
	sb.WriteString("# " + v.Title + "\n\n")
	sb.WriteString(v.Body)
	sb.WriteString("\n")

	if len(v.Labels) > 0 {
		sb.WriteString("\n**Labels:** ")
		names := make([]string, len(v.Labels))
		for i, l := range v.Labels {
			names[i] = l.Name
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n")
	}

	if len(v.Comments) > 0 {
		sb.WriteString("\n## Comments\n\n")
		for _, cmt := range v.Comments {
			sb.WriteString("**" + cmt.Author.Login + ":**\n\n")
			sb.WriteString(cmt.Body)
			sb.WriteString("\n\n")
		}
	}

	return sb.String()
}

// CreatePROptions configures a pull request.
type CreatePROptions struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// CreatePR runs `gh pr create` in dir (the project directory the
// branch was pushed from) and returns the created PR's URL.
func (c *Client) CreatePR(ctx context.Context, dir string, opts CreatePROptions) (string, error) {
	out, err := c.Runner.Run(ctx, dir, "gh", "pr", "create",
		"--title", opts.Title,
		"--body", opts.Body,
		"--head", opts.Head,
		"--base", opts.Base,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(lastLine(out)), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}

// IsIssueRef reports whether task text looks like an issue reference
// (#123) rather than direct task content. A bare integer without the
// leading '#' is not treated as a reference.
func IsIssueRef(task string) (ref string, ok bool) {
	trimmed := strings.TrimSpace(task)
	if strings.HasPrefix(trimmed, "#") {
		if _, err := strconv.Atoi(trimmed[1:]); err == nil {
			return trimmed, true
		}
	}
	return "", false
}

func parseIssueView(data []byte) (*issueView, error) {
	var v issueView
	if err := json.Unmarshal(bytes.TrimSpace(data), &v); err != nil {
		return nil, err
	}
	return &v, nil
}
