// Command takt drives the piece execution engine against a working
// repository: select a piece, run its movement graph through an
// external provider, and persist the result.
package main

import (
	"fmt"
	"os"

	"github.com/yoshihiko555/takt/internal/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}
