// Package clone manages the git clone lifecycle for worktree-mode
// tasks: a detached-origin clone of the project, branch setup,
// auto-commit/push back into the project, and clone-meta bookkeeping.
// Subprocess execution goes through a CommandRunner seam over
// exec.Command, with wrapped errors carrying combined output.
package clone

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/yoshihiko555/takt/internal/filelock"
)

// CommandRunner abstracts git/gh subprocess execution for testability.
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

// Manager creates and manages clones rooted under a project's .takt
// directory.
type Manager struct {
	Runner   CommandRunner
	MetaDir  string // .takt/clone-meta
}

// New builds a Manager persisting clone-meta records under metaDir.
func New(runner CommandRunner, metaDir string) *Manager {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Manager{Runner: runner, MetaDir: metaDir}
}

// CreateOptions configures a new shared clone.
type CreateOptions struct {
	// TaskSlug names the clone directory and, if Branch is empty, the
	// branch created for it.
	TaskSlug string
	// Branch checks out an existing branch instead of creating one.
	Branch string
}

// Info describes a clone created by CreateSharedClone.
type Info struct {
	Path         string    `json:"path"`
	Branch       string    `json:"branch"`
	SourceBranch string    `json:"source_branch"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateSharedClone clones projectDir into a sibling directory with no
// origin remote, checks out (or creates) a branch, and records the
// branch -> clone path mapping in clone-meta.
func (m *Manager) CreateSharedClone(ctx context.Context, projectDir string, opts CreateOptions) (*Info, error) {
	sourceBranch, err := m.currentBranch(ctx, projectDir)
	if err != nil {
		return nil, fmt.Errorf("clone: resolving source branch: %w", err)
	}

	branch := opts.Branch
	timestamp := time.Now().UTC().Format("20060102-150405")
	if branch == "" {
		branch = fmt.Sprintf("takt/%s-%s", timestamp, opts.TaskSlug)
	}

	dest := filepath.Join(filepath.Dir(projectDir), fmt.Sprintf("%s-%s", timestamp, opts.TaskSlug))

	if _, err := m.Runner.Run(ctx, "", "git", "clone", "--reference", projectDir, "--dissociate", projectDir, dest); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	if _, err := m.Runner.Run(ctx, dest, "git", "remote", "remove", "origin"); err != nil {
		return nil, fmt.Errorf("clone: removing origin: %w", err)
	}

	if opts.Branch != "" {
		if _, err := m.Runner.Run(ctx, dest, "git", "checkout", opts.Branch); err != nil {
			return nil, fmt.Errorf("clone: checking out %s: %w", opts.Branch, err)
		}
	} else {
		if _, err := m.Runner.Run(ctx, dest, "git", "checkout", "-b", branch); err != nil {
			return nil, fmt.Errorf("clone: creating branch %s: %w", branch, err)
		}
	}

	m.copyIdentity(ctx, projectDir, dest, "user.name")
	m.copyIdentity(ctx, projectDir, dest, "user.email")

	info := &Info{Path: dest, Branch: branch, SourceBranch: sourceBranch, CreatedAt: time.Now()}
	if err := m.saveMeta(branch, info); err != nil {
		return nil, err
	}
	return info, nil
}

// copyIdentity best-effort copies a git config key from src to dest;
// an unset key in the source repo (falls through to the user's global
// config) is not an error.
func (m *Manager) copyIdentity(ctx context.Context, src, dest, key string) {
	val, err := m.Runner.Run(ctx, src, "git", "config", key)
	if err != nil {
		return
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return
	}
	m.Runner.Run(ctx, dest, "git", "config", key, val)
}

func (m *Manager) currentBranch(ctx context.Context, dir string) (string, error) {
	out, err := m.Runner.Run(ctx, dir, "git", "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// AutoCommit stages and commits every change in clonePath, returning
// the new commit hash and false if there was nothing to commit.
func (m *Manager) AutoCommit(ctx context.Context, clonePath, message string) (hash string, changed bool, err error) {
	status, err := m.Runner.Run(ctx, clonePath, "git", "status", "--porcelain")
	if err != nil {
		return "", false, fmt.Errorf("clone: git status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		return "", false, nil
	}

	if _, err := m.Runner.Run(ctx, clonePath, "git", "add", "-A"); err != nil {
		return "", false, fmt.Errorf("clone: git add: %w", err)
	}
	if _, err := m.Runner.Run(ctx, clonePath, "git", "commit", "-m", message); err != nil {
		return "", false, fmt.Errorf("clone: git commit: %w", err)
	}

	out, err := m.Runner.Run(ctx, clonePath, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", false, fmt.Errorf("clone: resolving commit hash: %w", err)
	}
	return strings.TrimSpace(out), true, nil
}

// PushToProject pushes the clone's current HEAD directly into
// projectDir (a filesystem push, bypassing any remote).
func (m *Manager) PushToProject(ctx context.Context, clonePath, projectDir string) error {
	if _, err := m.Runner.Run(ctx, clonePath, "git", "push", projectDir, "HEAD"); err != nil {
		return fmt.Errorf("clone: pushing to project: %w", err)
	}
	return nil
}

// PushToOrigin pushes branch from projectDir to its origin remote.
func (m *Manager) PushToOrigin(ctx context.Context, projectDir, branch string) error {
	if _, err := m.Runner.Run(ctx, projectDir, "git", "push", "origin", branch); err != nil {
		return fmt.Errorf("clone: pushing to origin: %w", err)
	}
	return nil
}

// LinkReportDir symlinks clonePath's .takt/runs/<runSlug>/reports to
// realReportsDir, the run's actual report directory under the
// project's (not the clone's) .takt tree. A movement's instruction
// templates render {report_dir} as this clone-relative path, so an
// agent sandboxed to clonePath reads and writes reports through the
// symlink; the content itself lives under the project and survives
// the clone's removal. Returns the clone-relative path to use as the
// engine's ReportDir for this run.
func (m *Manager) LinkReportDir(clonePath, runSlug, realReportsDir string) (string, error) {
	runDir := filepath.Join(clonePath, ".takt", "runs", runSlug)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("clone: creating %s: %w", runDir, err)
	}

	linkPath := filepath.Join(runDir, "reports")
	if err := os.RemoveAll(linkPath); err != nil {
		return "", fmt.Errorf("clone: clearing stale %s: %w", linkPath, err)
	}
	if err := os.Symlink(realReportsDir, linkPath); err != nil {
		return "", fmt.Errorf("clone: linking report dir: %w", err)
	}
	return linkPath, nil
}

// RemoveClone deletes the clone directory recorded for branch and its
// clone-meta record.
func (m *Manager) RemoveClone(branch string) error {
	info, err := m.LoadMeta(branch)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(info.Path); err != nil {
		return fmt.Errorf("clone: removing %s: %w", info.Path, err)
	}
	return os.Remove(m.metaPath(branch))
}

func (m *Manager) saveMeta(branch string, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("clone: marshaling clone-meta for %s: %w", branch, err)
	}
	if err := os.MkdirAll(m.MetaDir, 0755); err != nil {
		return fmt.Errorf("clone: creating %s: %w", m.MetaDir, err)
	}
	return filelock.AtomicWrite(m.metaPath(branch), data)
}

// LoadMeta reads the clone-meta record for branch.
func (m *Manager) LoadMeta(branch string) (*Info, error) {
	data, err := os.ReadFile(m.metaPath(branch))
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("clone: parsing clone-meta for %s: %w", branch, err)
	}
	return &info, nil
}

func (m *Manager) metaPath(branch string) string {
	return filepath.Join(m.MetaDir, encodeBranch(branch)+".json")
}

var branchReplacer = strings.NewReplacer("/", "_", ":", "_", "\\", "_")

func encodeBranch(branch string) string {
	return branchReplacer.Replace(branch)
}
