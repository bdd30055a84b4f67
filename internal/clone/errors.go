package clone

import "strings"

// Severity classifies a git/gh subprocess failure so the pipeline
// orchestrator knows whether to continue past it or abort.
type Severity int

const (
	// Hard failures abort the pipeline: the clone itself is unusable.
	Hard Severity = iota
	// Soft failures are logged and execution continues.
	Soft
)

// softMarkers are substrings of git/gh stderr that indicate a
// recoverable condition rather than a broken clone.
var softMarkers = []string{
	"already exists",
	"nothing to commit",
	"nothing added to commit",
	"already up to date",
	"already up-to-date",
	"a pull request for",
	"no permission",
}

// Classify inspects err's message for known recoverable patterns.
// A nil error is never meaningfully classified; callers should not
// call Classify unless err is non-nil.
func Classify(err error) Severity {
	if err == nil {
		return Hard
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range softMarkers {
		if strings.Contains(msg, marker) {
			return Soft
		}
	}
	return Hard
}
