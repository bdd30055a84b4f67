package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoshihiko555/takt/internal/gh"
	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/pipeline"
	"github.com/yoshihiko555/takt/internal/worker"
)

// newRunCommand drains the task queue with a bounded worker pool,
// running each claimed task through its own pipeline orchestrator.
func newRunCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Drain the task queue with a bounded worker pool",
		Args:  cobra.NoArgs,
		RunE:  runRunCommand,
	}

	c.Flags().Int("concurrency", 0, "worker concurrency, clamped to [1,10] (default: config value)")
	c.Flags().Int("poll-interval-ms", 0, "poll interval in ms, clamped to [100,5000] (default: config value)")

	return c
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	e, err := resolveEnv(cmd)
	if err != nil {
		return err
	}

	concurrencyFlag, _ := cmd.Flags().GetInt("concurrency")
	pollFlag, _ := cmd.Flags().GetInt("poll-interval-ms")

	concurrency := e.cfg.Worker.Concurrency
	if concurrencyFlag > 0 {
		concurrency = concurrencyFlag
	}
	pollMs := e.cfg.Worker.PollIntervalMs
	if pollFlag > 0 {
		pollMs = pollFlag
	}

	store := e.queueStore()
	adapters, err := e.buildAdapters()
	if err != nil {
		return err
	}

	renderer := newConsoleRenderer(cmd.OutOrStdout())
	diag := setupDiagnosticLog(e.verbose)

	runOneTask := func(ctx context.Context, task models.TaskRecord) {
		var ghClient *gh.Client
		if task.Issue != "" || task.AutoPR {
			ghClient = e.ghClient()
		}

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

		if _, err := orch.RunTask(ctx, task); err != nil {
			diag.Errorf("task %s failed: %v", task.Name, err)
		}
	}

	pool := worker.New(store, runOneTask, worker.Options{
		Concurrency:  concurrency,
		PollInterval: pollIntervalFrom(pollMs),
	})

	if err := pool.Run(cmd.Context()); err != nil {
		return err
	}

	tasks, err := store.List()
	if err != nil {
		return err
	}
	failed := 0
	for _, t := range tasks {
		if t.Status == models.TaskFailed {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d task(s) failed\n", failed)
		return wrapPipelineFailure(fmt.Errorf("run: %d task(s) failed", failed))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "queue drained")
	return nil
}
