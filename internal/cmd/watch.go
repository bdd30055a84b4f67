package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoshihiko555/takt/internal/models"
)

// newWatchCommand polls the task queue and prints status transitions
// until interrupted.
func newWatchCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "watch",
		Short: "Poll the task queue and print status transitions",
		Args:  cobra.NoArgs,
		RunE:  runWatchCommand,
	}
	c.Flags().Int("interval-ms", 1000, "poll interval in ms")
	return c
}

func runWatchCommand(cmd *cobra.Command, args []string) error {
	e, err := resolveEnv(cmd)
	if err != nil {
		return err
	}
	intervalMs, _ := cmd.Flags().GetInt("interval-ms")
	interval := time.Duration(intervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	store := e.queueStore()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	last := make(map[string]models.TaskStatus)
	for {
		tasks, err := store.List()
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if last[t.Name] != t.Status {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s -> %s\n", time.Now().Format("15:04:05"), t.Name, t.Status)
				last[t.Name] = t.Status
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
