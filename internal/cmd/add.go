package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoshihiko555/takt/internal/gh"
	"github.com/yoshihiko555/takt/internal/queue"
)

// newAddCommand appends a pending task record to .takt/tasks.yaml
// without running it.
func newAddCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "add <task-text|#N>",
		Short: "Queue a new task without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddCommand,
	}

	c.Flags().String("piece", "demo", "piece to run for this task")
	c.Flags().Bool("worktree", false, "isolate the run in a detached git clone")
	c.Flags().String("branch", "", "branch name for worktree mode")
	c.Flags().Bool("pr", false, "open a pull request on success")

	return c
}

func runAddCommand(cmd *cobra.Command, args []string) error {
	e, err := resolveEnv(cmd)
	if err != nil {
		return err
	}

	pieceName, _ := cmd.Flags().GetString("piece")
	worktree, _ := cmd.Flags().GetBool("worktree")
	branch, _ := cmd.Flags().GetString("branch")
	autoPR, _ := cmd.Flags().GetBool("pr")

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

	task, err := e.queueStore().AddTask(content, queue.AddOptions{
		Piece:    pieceName,
		Worktree: worktreeMarker,
		Branch:   branch,
		Issue:    issueRef,
		AutoPR:   autoPR,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "added task %s (status=%s)\n", task.Name, task.Status)
	return nil
}
