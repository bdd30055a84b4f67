package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newEjectCommand copies a builtin piece YAML into the project layer
// so a user can override it, completing the loader's override contract
// end to end.
func newEjectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eject <name>",
		Short: "Copy a builtin piece into .takt/pieces/ for local editing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd)
			if err != nil {
				return err
			}
			dest, err := e.pieceLoader().Eject(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ejected %s to %s\n", args[0], dest)
			return nil
		},
	}
}
