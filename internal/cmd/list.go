package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newListCommand prints every task record currently in .takt/tasks.yaml.
func newListCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		Args:  cobra.NoArgs,
		RunE:  runListCommand,
	}
	c.Flags().String("status", "", "filter by status (pending, running, completed, failed)")
	return c
}

func runListCommand(cmd *cobra.Command, args []string) error {
	e, err := resolveEnv(cmd)
	if err != nil {
		return err
	}

	statusFilter, _ := cmd.Flags().GetString("status")

	tasks, err := e.queueStore().List()
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tasks queued")
		return nil
	}

	for _, t := range tasks {
		if statusFilter != "" && string(t.Status) != statusFilter {
			continue
		}
		line := fmt.Sprintf("%-28s %-10s piece=%s", t.Name, t.Status, t.Piece)
		if t.Branch != "" {
			line += fmt.Sprintf(" branch=%s", t.Branch)
		}
		if t.Failure != nil {
			line += fmt.Sprintf(" error=%q", t.Failure.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
