package task

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	logx "autorun/pkg/logx"
)

func fakeLookPath(available ...string) LookPathFunc {
	return func(file string) (string, error) {
		for _, a := range available {
			if a == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestCommandResolution(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		path      string
		override  string
		available []string
		want      []string
	}{
		{name: "python3 preferred", path: "/opt/s/script.py", available: []string{"python3", "python"}, want: []string{"python3", "/opt/s/script.py"}},
		{name: "python fallback", path: "/opt/s/script.py", available: []string{"python"}, want: []string{"python", "/opt/s/script.py"}},
		{name: "shell", path: "run.sh", available: []string{"sh"}, want: []string{"sh", "run.sh"}},
		{name: "powershell", path: `C:\s\job.PS1`, available: []string{"powershell"}, want: []string{"powershell", "-NoProfile", "-File", `C:\s\job.PS1`}},
		{name: "batch", path: `C:\s\job.bat`, available: []string{"cmd"}, want: []string{"cmd", "/C", `C:\s\job.bat`}},
		{name: "unknown extension runs directly", path: "/opt/s/job", want: []string{"/opt/s/job"}},
		{name: "override wins", path: "/opt/s/script.py", override: "python3 -u", want: []string{"python3", "-u", "/opt/s/script.py"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Command(tt.path, tt.override, fakeLookPath(tt.available...))
			if err != nil {
				t.Fatalf("Command error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Command = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandNoInterpreter(t *testing.T) {
	t.Parallel()
	_, err := Command("/opt/s/script.py", "", fakeLookPath())
	if err == nil || !strings.Contains(err.Error(), "python3") {
		t.Fatalf("expected missing interpreter error, got %v", err)
	}
	if _, err := Command("  ", "", fakeLookPath()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecRunnerSuccess(t *testing.T) {
	requireShell(t)
	path := writeScript(t, "ok.sh", "echo hello\n")

	var out bytes.Buffer
	r := NewExecRunner("", logx.Nop())
	r.Stdout = &out

	res, err := r.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(out.String()) != "hello" {
		t.Fatalf("stdout = %q, want hello", out.String())
	}
}

func TestExecRunnerPassesStdin(t *testing.T) {
	requireShell(t)
	path := writeScript(t, "read.sh", "read line\necho \"got $line\"\n")

	var out bytes.Buffer
	r := NewExecRunner("", logx.Nop())
	if r.Stdin != os.Stdin {
		t.Fatal("NewExecRunner should hand the process stdin to the task")
	}
	r.Stdin = strings.NewReader("answer\n")
	r.Stdout = &out

	if _, err := r.Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(out.String()) != "got answer" {
		t.Fatalf("stdout = %q, want %q", out.String(), "got answer")
	}
}

func TestExecRunnerNoArguments(t *testing.T) {
	requireShell(t)
	path := writeScript(t, "args.sh", "echo $#\n")

	var out bytes.Buffer
	r := NewExecRunner("", logx.Nop())
	r.Stdout = &out

	if _, err := r.Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(out.String()) != "0" {
		t.Fatalf("script saw %q arguments, want 0", strings.TrimSpace(out.String()))
	}
}

func TestExecRunnerFailure(t *testing.T) {
	requireShell(t)
	path := writeScript(t, "fail.sh", "exit 3\n")

	res, err := NewExecRunner("", logx.Nop()).Run(context.Background(), path)
	var te *TaskExecutionError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TaskExecutionError, got %v", err)
	}
	if te.ExitCode != 3 || res.ExitCode != 3 {
		t.Fatalf("exit code = %d/%d, want 3", te.ExitCode, res.ExitCode)
	}
	if te.Path != path {
		t.Fatalf("Path = %q, want %q", te.Path, path)
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestExecRunnerDirectExecutable(t *testing.T) {
	requireShell(t)
	path := writeScript(t, "job", "#!/bin/sh\nexit 0\n")

	if _, err := NewExecRunner("", logx.Nop()).Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestExecRunnerNotStarted(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing")

	res, err := NewExecRunner("", logx.Nop()).Run(context.Background(), path)
	var te *TaskExecutionError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TaskExecutionError, got %v", err)
	}
	if te.ExitCode != ExitCodeNotStarted || res.ExitCode != ExitCodeNotStarted {
		t.Fatalf("exit code = %d/%d, want %d", te.ExitCode, res.ExitCode, ExitCodeNotStarted)
	}
	if !strings.Contains(err.Error(), "failed to start") {
		t.Fatalf("unexpected message: %v", err)
	}
}
