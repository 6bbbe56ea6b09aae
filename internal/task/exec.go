package task

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	logx "autorun/pkg/logx"
)

// ExecRunner runs the task as a child OS process.
//
// The child inherits stdin, stdout, stderr and the environment. No timeout
// is applied: the loop waits as long as the task runs.
type ExecRunner struct {
	// Interpreter overrides extension-based launcher selection (e.g. "python3 -u").
	Interpreter string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	LookPath LookPathFunc
	Log      logx.Logger
}

// NewExecRunner returns a runner wired to the process's standard streams.
func NewExecRunner(interpreter string, log logx.Logger) *ExecRunner {
	return &ExecRunner{
		Interpreter: interpreter,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		LookPath:    exec.LookPath,
		Log:         log,
	}
}

func (r *ExecRunner) Run(ctx context.Context, path string) (Result, error) {
	argv, err := Command(path, r.Interpreter, r.LookPath)
	if err != nil {
		return Result{ExitCode: ExitCodeNotStarted}, &TaskExecutionError{Path: path, ExitCode: ExitCodeNotStarted, Err: err}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	r.Log.Debug("task starting", logx.String("path", path), logx.Any("argv", argv))

	start := time.Now()
	err = cmd.Run()
	res := Result{Duration: time.Since(start)}

	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &TaskExecutionError{Path: path, ExitCode: res.ExitCode, Err: err}
	}
	res.ExitCode = ExitCodeNotStarted
	return res, &TaskExecutionError{Path: path, ExitCode: ExitCodeNotStarted, Err: err}
}
