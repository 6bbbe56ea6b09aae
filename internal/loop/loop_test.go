package loop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"autorun/internal/config"
	"autorun/internal/task"
	logx "autorun/pkg/logx"
)

// fakeRunner records invocations and fails on the configured call (1-based).
type fakeRunner struct {
	mu     sync.Mutex
	calls  []string
	failOn int
	code   int
}

func (r *fakeRunner) Run(_ context.Context, path string) (task.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, path)
	if r.failOn > 0 && len(r.calls) == r.failOn {
		return task.Result{ExitCode: r.code, Duration: time.Millisecond},
			&task.TaskExecutionError{Path: path, ExitCode: r.code}
	}
	return task.Result{Duration: time.Millisecond}, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// fakeSleeper records requested durations and cancels the run after max sleeps.
type fakeSleeper struct {
	durations []time.Duration
	max       int
	cancel    context.CancelFunc
	onSleep   func(n int)
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.durations = append(s.durations, d)
	if s.onSleep != nil {
		s.onSleep(len(s.durations))
	}
	if s.max > 0 && len(s.durations) >= s.max && s.cancel != nil {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

type observerFunc func(ctx context.Context, ev Event)

func (f observerFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func newTestLoop(t *testing.T, cfgBody string, runner task.Runner, sleeper Sleeper, obs ...Observer) (*Loop, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "AutoRunFrequency.json")
	if cfgBody != "" {
		writeConfig(t, cfgPath, cfgBody)
	}
	l := New(cfgPath, filepath.Join(dir, "script.py"),
		WithRunner(runner),
		WithSleeper(sleeper),
		WithLogger(logx.Nop()),
		WithRunID("test-run"),
		WithObserver(obs...),
	)
	return l, cfgPath
}

func TestLoopSleepsFrequencyTimesSixty(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want time.Duration
	}{
		{name: "one minute", body: `{"frequencyMinutes": 1}`, want: 60 * time.Second},
		{name: "absent defaults to 30s", body: `{}`, want: 30 * time.Second},
		{name: "fractional", body: `{"frequencyMinutes": 2.5}`, want: 150 * time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			runner := &fakeRunner{}
			sleeper := &fakeSleeper{max: 3, cancel: cancel}
			l, _ := newTestLoop(t, tt.body, runner, sleeper)

			err := l.Run(ctx)
			if !errors.Is(err, ErrStopped) {
				t.Fatalf("Run err = %v, want ErrStopped", err)
			}
			if runner.count() != 3 {
				t.Fatalf("task runs = %d, want 3", runner.count())
			}
			for i, d := range sleeper.durations {
				if d != tt.want {
					t.Fatalf("sleep[%d] = %v, want %v", i, d, tt.want)
				}
			}
			if l.State() != StateStopped {
				t.Fatalf("State = %s, want stopped", l.State())
			}
		})
	}
}

func TestLoopMissingConfigNeverRunsTask(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	sleeper := &fakeSleeper{}
	l, _ := newTestLoop(t, "", runner, sleeper)

	err := l.Run(context.Background())
	if !config.IsConfigError(err) {
		t.Fatalf("Run err = %v, want config error", err)
	}
	if runner.count() != 0 {
		t.Fatalf("task ran %d times, want 0", runner.count())
	}
	if len(sleeper.durations) != 0 {
		t.Fatalf("slept %d times, want 0", len(sleeper.durations))
	}
	if l.State() != StateFailed || l.Iteration() != 1 {
		t.Fatalf("State/Iteration = %s/%d, want failed/1", l.State(), l.Iteration())
	}
}

func TestLoopInvalidJSONFailsBeforeTask(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	l, _ := newTestLoop(t, `{"frequencyMinutes": 1`, runner, &fakeSleeper{})

	err := l.Run(context.Background())
	var ce *config.ConfigError
	if !errors.As(err, &ce) || ce.Op != config.OpDecode {
		t.Fatalf("Run err = %v, want decode *ConfigError", err)
	}
	if runner.count() != 0 {
		t.Fatalf("task ran %d times, want 0", runner.count())
	}
}

func TestLoopTaskFailureStopsWithoutSleeping(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{failOn: 1, code: 2}
	sleeper := &fakeSleeper{}
	l, _ := newTestLoop(t, `{"frequencyMinutes": 1}`, runner, sleeper)

	err := l.Run(context.Background())
	var te *task.TaskExecutionError
	if !errors.As(err, &te) || te.ExitCode != 2 {
		t.Fatalf("Run err = %v, want *TaskExecutionError with exit 2", err)
	}
	if runner.count() != 1 {
		t.Fatalf("task runs = %d, want 1", runner.count())
	}
	if len(sleeper.durations) != 0 {
		t.Fatalf("slept %d times after failure, want 0", len(sleeper.durations))
	}
	if l.Err() == nil || l.State() != StateFailed {
		t.Fatalf("expected failed loop with recorded error, got %s / %v", l.State(), l.Err())
	}
}

func TestLoopTaskFailureOnLaterIteration(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{failOn: 3, code: 1}
	sleeper := &fakeSleeper{}
	l, _ := newTestLoop(t, `{}`, runner, sleeper)

	err := l.Run(context.Background())
	if !task.IsTaskExecutionError(err) {
		t.Fatalf("Run err = %v, want task error", err)
	}
	if runner.count() != 3 || len(sleeper.durations) != 2 {
		t.Fatalf("runs/sleeps = %d/%d, want 3/2", runner.count(), len(sleeper.durations))
	}
	if l.Iteration() != 3 {
		t.Fatalf("Iteration = %d, want 3", l.Iteration())
	}
}

func TestLoopRereadsConfigEachIteration(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cfgPath string
	sleeper := &fakeSleeper{max: 3, cancel: cancel}
	sleeper.onSleep = func(n int) {
		switch n {
		case 1:
			writeConfig(t, cfgPath, `{"frequencyMinutes": 2}`)
		case 2:
			writeConfig(t, cfgPath, `{}`)
		}
	}
	l, p := newTestLoop(t, `{"frequencyMinutes": 1}`, &fakeRunner{}, sleeper)
	cfgPath = p

	if err := l.Run(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("Run err = %v, want ErrStopped", err)
	}
	want := []time.Duration{time.Minute, 2 * time.Minute, 30 * time.Second}
	for i, d := range want {
		if sleeper.durations[i] != d {
			t.Fatalf("sleep[%d] = %v, want %v", i, sleeper.durations[i], d)
		}
	}
}

func TestLoopConfigBreaksMidRun(t *testing.T) {
	t.Parallel()
	var cfgPath string
	runner := &fakeRunner{}
	sleeper := &fakeSleeper{}
	sleeper.onSleep = func(n int) {
		if n == 1 {
			if err := os.Remove(cfgPath); err != nil {
				t.Errorf("remove config: %v", err)
			}
		}
	}
	l, p := newTestLoop(t, `{"frequencyMinutes": 1}`, runner, sleeper)
	cfgPath = p

	err := l.Run(context.Background())
	if !config.IsConfigError(err) {
		t.Fatalf("Run err = %v, want config error", err)
	}
	if runner.count() != 1 || l.Iteration() != 2 {
		t.Fatalf("runs/iteration = %d/%d, want 1/2", runner.count(), l.Iteration())
	}
}

func TestLoopObserverSeesTransitions(t *testing.T) {
	t.Parallel()
	var events []Event
	obs := observerFunc(func(_ context.Context, ev Event) { events = append(events, ev) })
	runner := &fakeRunner{failOn: 2, code: 4}
	l, _ := newTestLoop(t, `{"frequencyMinutes": 0.5}`, runner, &fakeSleeper{}, obs)

	_ = l.Run(context.Background())

	want := [][2]State{
		{StateLoadConfig, StateRunTask},
		{StateRunTask, StateSleep},
		{StateSleep, StateLoadConfig},
		{StateLoadConfig, StateRunTask},
		{StateRunTask, StateFailed},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, w := range want {
		ev := events[i]
		if ev.From != w[0] || ev.To != w[1] {
			t.Fatalf("event[%d] = %s->%s, want %s->%s", i, ev.From, ev.To, w[0], w[1])
		}
		if ev.RunID != "test-run" {
			t.Fatalf("event[%d] RunID = %q", i, ev.RunID)
		}
	}
	last := events[len(events)-1]
	if !last.TaskFinished() || last.ExitCode != 4 || last.Err == nil || last.Iteration != 2 {
		t.Fatalf("unexpected final event: %+v", last)
	}
	if last.Interval != 30*time.Second {
		t.Fatalf("final event interval = %v, want 30s", last.Interval)
	}
}

func TestLoopRunOnce(t *testing.T) {
	t.Parallel()
	l, _ := newTestLoop(t, "", &fakeRunner{}, &fakeSleeper{})
	_ = l.Run(context.Background())
	if err := l.Run(context.Background()); !errors.Is(err, ErrFinished) {
		t.Fatalf("second Run err = %v, want ErrFinished", err)
	}
}

func TestLoopCancelledBeforeStart(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{}
	l, _ := newTestLoop(t, `{}`, runner, &fakeSleeper{})

	if err := l.Run(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("Run err = %v, want ErrStopped", err)
	}
	if runner.count() != 0 {
		t.Fatalf("task ran %d times, want 0", runner.count())
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{failOn: 1, code: 9}
	l, _ := newTestLoop(t, `{"frequencyMinutes": 3}`, runner, &fakeSleeper{})
	_ = l.Run(context.Background())

	s := l.Snapshot()
	if s.RunID != "test-run" || s.State != "failed" || s.Iteration != 1 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if s.FrequencyMinutes != 3 || s.Interval != 3*time.Minute {
		t.Fatalf("unexpected frequency/interval: %+v", s)
	}
	if s.LastError == "" {
		t.Fatal("expected LastError in snapshot")
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()
	start := time.Now()
	if err := sleepContext(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("sleep returned early")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep on cancelled ctx = %v, want context.Canceled", err)
	}
}
