package cmd

import "errors"

// pipelineFailedError wraps a piece/pipeline run that completed its
// control flow but did not finish successfully (aborted movement,
// failed task), distinct from a generic CLI usage or config error so
// the exit code can differ (3 vs 1).
type pipelineFailedError struct {
	err error
}

func (e *pipelineFailedError) Error() string { return e.err.Error() }
func (e *pipelineFailedError) Unwrap() error { return e.err }

// wrapPipelineFailure marks err as a piece/pipeline failure for
// ExitCodeFor's sake. A nil err stays nil.
func wrapPipelineFailure(err error) error {
	if err == nil {
		return nil
	}
	return &pipelineFailedError{err: err}
}

// ExitCodeFor maps a command error to the process exit code: 0 success
// (never reached here — only called on a non-nil err), 1 generic
// failure, 3 piece/pipeline failed. 130 (SIGINT) is handled by the
// worker pool calling os.Exit directly, not through this path.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var pf *pipelineFailedError
	if errors.As(err, &pf) {
		return 3
	}
	return 1
}
