package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yoshihiko555/takt/internal/models"
)

// newPieceCommand groups piece-inspection subcommands: validate parses
// and checks a piece's structural invariants; list enumerates every
// piece visible across the three config layers; describe prints a
// piece's resolved movement graph, naming which layer it was loaded
// from (project/global/builtin).
func newPieceCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "piece",
		Short: "Inspect piece configurations",
	}
	c.AddCommand(newPieceValidateCommand())
	c.AddCommand(newPieceDescribeCommand())
	c.AddCommand(newPieceListCommand())
	return c
}

func newPieceValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <name>",
		Short: "Load and validate a piece by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd)
			if err != nil {
				return err
			}
			p, err := e.pieceLoader().Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (layer=%s, %d movement(s))\n", p.Name, p.Layer(), len(p.Movements))
			return nil
		},
	}
}

func newPieceListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pieces visible across all three layers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd)
			if err != nil {
				return err
			}
			names, err := e.pieceLoader().List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newPieceDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name>",
		Short: "Print a piece's resolved movement graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd)
			if err != nil {
				return err
			}
			p, err := e.pieceLoader().Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (layer=%s)\n", p.Name, p.Layer())
			if p.Description != "" {
				fmt.Fprintf(out, "  %s\n", p.Description)
			}
			fmt.Fprintf(out, "  initial_movement: %s\n", p.InitialMovement)
			fmt.Fprintf(out, "  max_movements: %d\n", p.MaxMovements)
			for _, m := range p.Movements {
				describeMovement(out, m, "  ")
			}
			return nil
		},
	}
}

func describeMovement(out io.Writer, m models.Movement, indent string) {
	kind := "sequential"
	switch {
	case m.IsArpeggio():
		kind = "arpeggio"
	case m.IsParallel():
		kind = "parallel"
	}
	fmt.Fprintf(out, "%s- %s [%s] persona=%s\n", indent, m.Name, kind, m.Persona)
	for i, r := range m.Rules {
		target := r.Next
		if target == "" {
			target = "(aggregate only)"
		}
		fmt.Fprintf(out, "%s    %d. %q -> %s\n", indent, i+1, r.Condition, target)
	}
	for _, sub := range m.Parallel {
		describeMovement(out, sub, indent+"    ")
	}
}
