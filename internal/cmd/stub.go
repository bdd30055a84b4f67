package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newExternalStub registers name in the command tree so it appears in
// help output, but its implementation (package installer, skill
// export) lives outside this core and is not built here.
func newExternalStub(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short + " (not implemented in this core)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: not implemented in this core\n", name)
			return nil
		},
	}
}
