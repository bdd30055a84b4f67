// Package cmd assembles TAKT's CLI surface over the engine, queue,
// worker pool, and pipeline packages: a thin cobra command tree whose
// RunE functions wire dependencies and delegate immediately.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags; "dev" otherwise.
var Version = "dev"

// NewRootCommand builds the takt command tree: run, add, list, watch,
// piece, pipeline, eject, and the documented external-tool stubs
// (ensemble, repertoire, export-cc).
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "takt",
		Short: "Multi-agent LLM pipeline orchestration engine",
		Long: `TAKT drives multi-agent LLM pipelines ("pieces") against a working
repository: it selects a piece (a declarative graph of movements, each
bound to a persona), drives it to completion by delegating each
movement to an external provider, routes between movements via
declarative rules, isolates side effects in git clones, and persists
audit logs.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("project", ".", "project directory (defaults to the current directory)")
	root.PersistentFlags().String("provider", "", "default provider override (claude, codex, opencode, mock)")
	root.PersistentFlags().String("model", "", "default model override")
	root.PersistentFlags().Bool("verbose", false, "show debug-level diagnostic logging")

	root.AddCommand(newRunCommand())
	root.AddCommand(newAddCommand())
	root.AddCommand(newListCommand())
	root.AddCommand(newWatchCommand())
	root.AddCommand(newPieceCommand())
	root.AddCommand(newPipelineCommand())
	root.AddCommand(newEjectCommand())
	root.AddCommand(newExternalStub("ensemble", "install/manage piece packages from a registry"))
	root.AddCommand(newExternalStub("repertoire", "list installed piece packages"))
	root.AddCommand(newExternalStub("export-cc", "export a piece's personas as Claude Code subagents"))

	return root
}
