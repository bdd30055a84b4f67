// Package pipeline implements the per-task orchestrator: resolve task
// content, stand up (or skip) a clone, run the piece, commit/push/PR
// on success, and record the outcome back onto the task queue — the
// six-step sequence run once per task, with a single piece run driving
// a single task end to end.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/yoshihiko555/takt/internal/clone"
	"github.com/yoshihiko555/takt/internal/engine"
	"github.com/yoshihiko555/takt/internal/gh"
	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/piece"
	"github.com/yoshihiko555/takt/internal/provider"
	"github.com/yoshihiko555/takt/internal/queue"
	"github.com/yoshihiko555/takt/internal/session"
)

// Deps wires every collaborator a task run needs. GH and Clones may be
// nil: a task that never references an issue and never requests a
// worktree never touches them.
type Deps struct {
	ProjectDir string
	Queue      *queue.Store
	Pieces     *piece.Loader
	Adapters   map[provider.Kind]provider.Adapter
	Clones     *clone.Manager
	GH         *gh.Client

	DefaultProvider provider.Kind
	Model           string

	LoopDetector  models.LoopDetectorConfig
	CyclePatterns []models.CyclePattern

	// OnEvent, if set, receives every event emitted during the run
	// (in addition to the NDJSON log), e.g. for console progress
	// output.
	OnEvent func(models.Event)
}

// Orchestrator runs one task at a time through the full pipeline.
type Orchestrator struct {
	deps Deps
}

// New builds an Orchestrator over deps.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Outcome summarizes one RunTask call for the caller (e.g. the CLI's
// single-task mode, which reports exit code 3 on failure).
type Outcome struct {
	Completed  bool
	CommitHash string
	PRURL      string
	WorktreePath string
	Branch     string
}

// RunTask executes the full pipeline for task and updates its queue
// record on completion or failure.
func (o *Orchestrator) RunTask(ctx context.Context, task models.TaskRecord) (Outcome, error) {
	content, err := o.resolveContent(ctx, task)
	if err != nil {
		o.fail(task, "resolve", err)
		return Outcome{}, err
	}

	cloneInfo, workDir, err := o.resolveExecutionContext(ctx, task)
	if err != nil {
		o.fail(task, "clone", err)
		return Outcome{}, err
	}

	state, runErr := o.runPiece(ctx, task, content, workDir, cloneInfo)
	if runErr != nil || state == nil || state.Status != models.PieceCompleted {
		o.failFromState(task, state, runErr)
		return Outcome{}, firstNonNil(runErr, fmt.Errorf("pipeline: piece did not complete (status=%v)", statusOf(state)))
	}

	result := queue.Result{}
	outcome := Outcome{Completed: true}
	if cloneInfo != nil {
		outcome.WorktreePath = cloneInfo.Path
		outcome.Branch = cloneInfo.Branch

		commitMsg := "takt: " + firstLine(task.Content)
		hash, changed, err := o.deps.Clones.AutoCommit(ctx, cloneInfo.Path, commitMsg)
		if err != nil && clone.Classify(err) == clone.Hard {
			o.fail(task, "commit", err)
			return Outcome{}, err
		}
		if changed {
			result.CommitHash = hash
			outcome.CommitHash = hash
			if err := o.deps.Clones.PushToProject(ctx, cloneInfo.Path, o.deps.ProjectDir); err != nil && clone.Classify(err) == clone.Hard {
				o.fail(task, "push", err)
				return Outcome{}, err
			}
			if err := o.deps.Clones.PushToOrigin(ctx, o.deps.ProjectDir, cloneInfo.Branch); err != nil && clone.Classify(err) == clone.Hard {
				o.fail(task, "push", err)
				return Outcome{}, err
			}
		}

		if task.AutoPR && o.deps.GH != nil {
			url, err := o.deps.GH.CreatePR(ctx, o.deps.ProjectDir, gh.CreatePROptions{
				Title: commitMsg,
				Body:  task.Content,
				Head:  cloneInfo.Branch,
				Base:  cloneInfo.SourceBranch,
			})
			if err != nil && clone.Classify(err) == clone.Hard {
				o.fail(task, "pr", err)
				return Outcome{}, err
			}
			if err == nil {
				result.PRURL = url
				outcome.PRURL = url
			}
		}
	}

	if err := o.deps.Queue.CompleteTask(task.Name, result); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

func (o *Orchestrator) resolveContent(ctx context.Context, task models.TaskRecord) (string, error) {
	if task.Issue != "" {
		if err := gh.CheckAvailable(); err != nil {
			return "", err
		}
		if o.deps.GH == nil {
			return "", fmt.Errorf("pipeline: task %s references issue %s but no gh client is configured", task.Name, task.Issue)
		}
		return o.deps.GH.ResolveIssue(ctx, task.Issue)
	}
	return task.Content, nil
}

func (o *Orchestrator) resolveExecutionContext(ctx context.Context, task models.TaskRecord) (*clone.Info, string, error) {
	if task.Worktree == "" {
		return nil, o.deps.ProjectDir, nil
	}
	if o.deps.Clones == nil {
		return nil, "", fmt.Errorf("pipeline: task %s requests a worktree but no clone manager is configured", task.Name)
	}
	info, err := o.deps.Clones.CreateSharedClone(ctx, o.deps.ProjectDir, clone.CreateOptions{
		TaskSlug: task.Name,
		Branch:   task.Branch,
	})
	if err != nil {
		return nil, "", err
	}
	return info, info.Path, nil
}

// runPiece always roots the run directory (NDJSON log, meta.json,
// reports, previous-response snapshots) under the project, not under
// an ephemeral clone: the clone is removable post-task (§4.9
// Cleanup), and a run directory rooted inside it would vanish with it.
// In worktree mode, the clone only gets a symlink at the
// clone-relative {report_dir} path the agent's instructions reference.
func (o *Orchestrator) runPiece(ctx context.Context, task models.TaskRecord, content, workDir string, cloneInfo *clone.Info) (*models.PieceState, error) {
	p, err := o.deps.Pieces.Load(task.Piece)
	if err != nil {
		return nil, fmt.Errorf("pipeline: loading piece %q: %w", task.Piece, err)
	}

	runSlug := time.Now().UTC().Format("20060102-150405") + "-" + task.Name
	runRoot := filepath.Join(o.deps.ProjectDir, ".takt", "runs", runSlug)
	dirs, err := session.NewDirs(runRoot)
	if err != nil {
		return nil, err
	}

	reportDir := dirs.Reports
	if cloneInfo != nil {
		reportDir, err = o.deps.Clones.LinkReportDir(cloneInfo.Path, runSlug, dirs.Reports)
		if err != nil {
			return nil, err
		}
	}

	writer, err := session.New(dirs, models.RunMeta{Task: content, Piece: task.Piece, RunSlug: runSlug})
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	broadcaster := engine.NewBroadcaster()
	writer.Listen(broadcaster)
	if o.deps.OnEvent != nil {
		broadcaster.Subscribe(o.deps.OnEvent)
	}

	eng := engine.New(p, o.deps.Adapters, o.deps.Pieces, engine.Options{
		ProjectCwd:      o.deps.ProjectDir,
		WorkDir:         workDir,
		ReportDir:       reportDir,
		ContextDir:      dirs.Context,
		DefaultProvider: o.deps.DefaultProvider,
		Model:           o.deps.Model,
		StartMovement:   task.StartMovement,
		RetryNote:       task.RetryNote,
		LoopDetector:    o.deps.LoopDetector,
		CyclePatterns:   o.deps.CyclePatterns,
		Events:          broadcaster,
	})

	return eng.Run(ctx, content)
}

func (o *Orchestrator) fail(task models.TaskRecord, movement string, err error) {
	o.deps.Queue.FailTask(task.Name, queue.Result{
		Failure: &models.TaskFailure{Movement: movement, Error: err.Error()},
	})
}

func (o *Orchestrator) failFromState(task models.TaskRecord, state *models.PieceState, runErr error) {
	failure := &models.TaskFailure{}
	if runErr != nil {
		failure.Error = runErr.Error()
	} else {
		failure.Error = fmt.Sprintf("piece aborted: %s", state.AbortReason)
	}
	if state != nil {
		failure.Movement = state.CurrentMovement
		if last, ok := state.MovementOutputs[state.CurrentMovement]; ok {
			failure.LastMessage = last.Content
		}
	}
	o.deps.Queue.FailTask(task.Name, queue.Result{Failure: failure})
}

func statusOf(state *models.PieceState) models.PieceStatus {
	if state == nil {
		return ""
	}
	return state.Status
}

func firstNonNil(err error, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

func firstLine(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[:i]
	}
	return content
}
