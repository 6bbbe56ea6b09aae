package task

import (
	"context"
	"time"
)

// Runner runs the task at path synchronously, with no arguments, and waits
// for it to finish.
//
// A non-zero exit must be returned as *TaskExecutionError. Result is
// populated whenever the process was started, including on failure.
type Runner interface {
	Run(ctx context.Context, path string) (Result, error)
}

// Result describes one finished run.
type Result struct {
	ExitCode int
	Duration time.Duration
}
