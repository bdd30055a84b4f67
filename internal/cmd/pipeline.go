package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoshihiko555/takt/internal/gh"
	"github.com/yoshihiko555/takt/internal/pipeline"
	"github.com/yoshihiko555/takt/internal/queue"
)

// newPipelineCommand runs a single task end to end: resolve a task
// (free text or a GitHub issue reference), run it through the full
// pipeline orchestrator, and exit 3 if it didn't complete.
func newPipelineCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "pipeline <task-text|#N>",
		Short: "Run a single task end to end: resolve, clone, execute, commit, PR",
		Args:  cobra.ExactArgs(1),
		RunE:  runPipelineCommand,
	}

	c.Flags().String("piece", "demo", "piece to run")
	c.Flags().Bool("worktree", false, "isolate the run in a detached git clone")
	c.Flags().String("branch", "", "branch name for worktree mode (default: generated)")
	c.Flags().Bool("pr", false, "open a pull request after a successful worktree-mode push")
	c.Flags().String("start-movement", "", "start execution at this movement instead of the piece's initial movement")

	return c
}

func runPipelineCommand(cmd *cobra.Command, args []string) error {
	e, err := resolveEnv(cmd)
	if err != nil {
		return err
	}

	pieceName, _ := cmd.Flags().GetString("piece")
	worktree, _ := cmd.Flags().GetBool("worktree")
	branch, _ := cmd.Flags().GetString("branch")
	autoPR, _ := cmd.Flags().GetBool("pr")
	startMovement, _ := cmd.Flags().GetString("start-movement")

	input := args[0]
	content := input
	issueRef := ""
	if ref, ok := gh.IsIssueRef(input); ok {
		issueRef = ref
		content = ""
	}

	worktreeMarker := ""
	if worktree {
		worktreeMarker = "requested"
	}

	store := e.queueStore()
	task, err := store.AddTask(content, queue.AddOptions{
		Piece:    pieceName,
		Worktree: worktreeMarker,
		Branch:   branch,
		Issue:    issueRef,
		AutoPR:   autoPR,
	})
	if err != nil {
		return err
	}
	task.StartMovement = startMovement

	claimed, err := store.ClaimNextTasks(1)
	if err != nil {
		return err
	}
	if len(claimed) != 1 {
		return fmt.Errorf("pipeline: failed to claim just-added task %s", task.Name)
	}
	running := claimed[0]
	running.StartMovement = startMovement

	adapters, err := e.buildAdapters()
	if err != nil {
		return err
	}

	var ghClient *gh.Client
	if running.Issue != "" || running.AutoPR {
		ghClient = e.ghClient()
	}

	renderer := newConsoleRenderer(cmd.OutOrStdout())
	orch := pipeline.New(pipeline.Deps{
		ProjectDir:      e.projectDir,
		Queue:           store,
		Pieces:          e.pieceLoader(),
		Adapters:        adapters,
		Clones:          e.cloneManager(),
		GH:              ghClient,
		DefaultProvider: e.defaultProvider,
		Model:           e.model,
		LoopDetector:    e.loopDetectorConfig(),
		OnEvent:         renderer.Render,
	})

	outcome, err := orch.RunTask(cmd.Context(), running)
	if err != nil {
		return wrapPipelineFailure(fmt.Errorf("pipeline: task %s: %w", running.Name, err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "completed task=%s", running.Name)
	if outcome.CommitHash != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " commit=%s", outcome.CommitHash)
	}
	if outcome.Branch != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " branch=%s", outcome.Branch)
	}
	if outcome.PRURL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " pr=%s", outcome.PRURL)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
