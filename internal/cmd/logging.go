package cmd

import (
	"os"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

// setupDiagnosticLog builds the leveled logger used for warnings and
// errors that fall outside the NDJSON event stream (config problems,
// soft git/gh failures, worker pool housekeeping). It switches to JSON
// formatting once stderr isn't a terminal, the same split the session
// NDJSON writer and this logger maintain independently of each other.
func setupDiagnosticLog(verbose bool) *charmlog.Logger {
	l := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
	})

	if verbose {
		l.SetLevel(charmlog.DebugLevel)
	} else {
		l.SetLevel(charmlog.InfoLevel)
	}

	if !term.IsTerminal(int(os.Stderr.Fd())) {
		l.SetFormatter(charmlog.JSONFormatter)
	}

	return l
}
