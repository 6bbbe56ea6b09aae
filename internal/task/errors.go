package task

import (
	"errors"
	"fmt"
	"os/exec"
)

// ExitCodeNotStarted is reported when the process could not be started at
// all, or ended without an exit status (killed by a signal).
const ExitCodeNotStarted = -1

// TaskExecutionError reports a task that exited with a failure status or
// could not be started. It is fatal for the loop.
type TaskExecutionError struct {
	Path     string
	ExitCode int
	Err      error
}

func (e *TaskExecutionError) Error() string {
	var exitErr *exec.ExitError
	switch {
	case errors.As(e.Err, &exitErr):
		return fmt.Sprintf("task %s: %v", e.Path, exitErr)
	case e.Err != nil:
		return fmt.Sprintf("task %s: failed to start: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("task %s: exit status %d", e.Path, e.ExitCode)
	}
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// IsTaskExecutionError reports whether err is (or wraps) a *TaskExecutionError.
func IsTaskExecutionError(err error) bool {
	var te *TaskExecutionError
	return errors.As(err, &te)
}
