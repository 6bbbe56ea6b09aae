package loop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"autorun/internal/config"
	"autorun/internal/task"
	logx "autorun/pkg/logx"
)

// Loop runs one task on a config-driven interval until an error ends it.
type Loop struct {
	configPath string
	taskPath   string

	loader    ConfigLoader
	runner    task.Runner
	sleeper   Sleeper
	log       logx.Logger
	observers []Observer
	runID     string

	state     atomic.Int32
	iteration atomic.Uint64
	interval  atomic.Int64
	frequency atomic.Uint64 // math.Float64bits
	started   atomic.Bool

	mu      sync.Mutex
	lastErr error
}

type Option func(*Loop)

func WithLoader(loader ConfigLoader) Option { return func(l *Loop) { l.loader = loader } }
func WithRunner(r task.Runner) Option       { return func(l *Loop) { l.runner = r } }
func WithSleeper(s Sleeper) Option          { return func(l *Loop) { l.sleeper = s } }
func WithLogger(log logx.Logger) Option     { return func(l *Loop) { l.log = log } }
func WithRunID(id string) Option            { return func(l *Loop) { l.runID = id } }

// WithObserver appends observers; they are called in registration order.
func WithObserver(obs ...Observer) Option {
	return func(l *Loop) {
		for _, o := range obs {
			if o != nil {
				l.observers = append(l.observers, o)
			}
		}
	}
}

// New builds a loop for the given config document and task paths.
//
// Defaults: a config.Manager on configPath, an ExecRunner resolving the
// interpreter by extension, and a timer-based sleeper.
func New(configPath, taskPath string, opts ...Option) *Loop {
	l := &Loop{
		configPath: configPath,
		taskPath:   taskPath,
		sleeper:    SleeperFunc(sleepContext),
	}
	for _, o := range opts {
		o(l)
	}
	if l.log.IsZero() {
		l.log = logx.Nop()
	}
	if l.loader == nil {
		m := config.NewManager(configPath)
		m.SetLogger(l.log)
		l.loader = m
	}
	if l.runner == nil {
		l.runner = task.NewExecRunner("", l.log)
	}
	l.log = l.log.With(logx.String("run_id", l.runID))
	l.state.Store(int32(StateLoadConfig))
	return l
}

func (l *Loop) State() State      { return State(l.state.Load()) }
func (l *Loop) Iteration() uint64 { return l.iteration.Load() }

// Interval is the pause chosen by the most recent config load.
func (l *Loop) Interval() time.Duration { return time.Duration(l.interval.Load()) }

// Err returns the error that ended the loop, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *Loop) Snapshot() Snapshot {
	s := Snapshot{
		RunID:            l.runID,
		State:            l.State().String(),
		Iteration:        l.Iteration(),
		FrequencyMinutes: math.Float64frombits(l.frequency.Load()),
		Interval:         l.Interval(),
	}
	if err := l.Err(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

// Run drives the loop until it reaches a terminal state.
//
// It returns the *config.ConfigError or *task.TaskExecutionError that failed
// the loop (wrapped with the iteration number), or ErrStopped if ctx was
// cancelled. It never returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrFinished
	}
	l.iteration.Store(1)
	l.log.Info("loop started",
		logx.String("config", l.configPath),
		logx.String("task", l.taskPath),
	)

	for {
		if err := l.step(ctx); err != nil {
			return err
		}
	}
}

// step performs the work of the current state and moves to the next one.
// It returns non-nil only once the loop is terminal.
func (l *Loop) step(ctx context.Context) error {
	n := l.Iteration()
	if ctx.Err() != nil {
		return l.stop(ctx, Event{Iteration: n})
	}

	switch st := l.State(); st {
	case StateLoadConfig:
		doc, err := l.loader.Load()
		if err != nil {
			return l.fail(ctx, Event{Iteration: n}, fmt.Errorf("iteration %d: %w", n, err))
		}
		l.noteConfig(doc)
		return l.move(ctx, StateRunTask, l.event(n))

	case StateRunTask:
		started := time.Now()
		res, err := l.runner.Run(ctx, l.taskPath)
		ev := l.event(n)
		ev.TaskStartedAt = started
		ev.TaskDuration = res.Duration
		if ev.TaskDuration == 0 {
			ev.TaskDuration = time.Since(started)
		}
		ev.ExitCode = res.ExitCode
		if err != nil {
			if ctx.Err() != nil {
				return l.stop(ctx, ev)
			}
			return l.fail(ctx, ev, fmt.Errorf("iteration %d: %w", n, err))
		}
		l.log.Info("task finished",
			logx.Uint64("iteration", n),
			logx.Duration("took", ev.TaskDuration),
			logx.Duration("next_in", ev.Interval),
		)
		return l.move(ctx, StateSleep, ev)

	case StateSleep:
		if err := l.sleeper.Sleep(ctx, l.Interval()); err != nil {
			if ctx.Err() != nil {
				return l.stop(ctx, l.event(n))
			}
			return l.fail(ctx, l.event(n), fmt.Errorf("iteration %d: sleep: %w", n, err))
		}
		next := l.iteration.Add(1)
		return l.move(ctx, StateLoadConfig, l.event(next))

	default:
		return fmt.Errorf("loop in unexpected state %s", st)
	}
}

func (l *Loop) event(n uint64) Event {
	return Event{
		Iteration:        n,
		FrequencyMinutes: math.Float64frombits(l.frequency.Load()),
		Interval:         l.Interval(),
	}
}

func (l *Loop) noteConfig(doc *config.Document) {
	freq := doc.Frequency()
	interval := doc.Interval()
	prev := time.Duration(l.interval.Swap(int64(interval)))
	l.frequency.Store(math.Float64bits(freq))

	switch {
	case l.Iteration() == 1:
		l.log.Info("config loaded", config.SummarizeChange(nil, doc)...)
	case prev != interval:
		l.log.Info("interval changed",
			logx.Uint64("iteration", l.Iteration()),
			logx.Duration("previous_interval", prev),
			logx.Duration("interval", interval),
			logx.Float64("frequency_minutes", freq),
		)
	}
}

func (l *Loop) move(ctx context.Context, to State, ev Event) error {
	from := l.State()
	if err := Transition(from, to); err != nil {
		return l.fail(ctx, ev, err)
	}
	l.state.Store(int32(to))
	ev.From, ev.To = from, to
	l.log.Trace("state transition",
		logx.Uint64("iteration", ev.Iteration),
		logx.String("from", from.String()),
		logx.String("to", to.String()),
	)
	l.notify(ctx, ev)
	return nil
}

func (l *Loop) fail(ctx context.Context, ev Event, err error) error {
	from := l.State()
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
	l.state.Store(int32(StateFailed))

	ev.From, ev.To, ev.Err = from, StateFailed, err
	l.log.Error("loop failed",
		logx.Uint64("iteration", ev.Iteration),
		logx.String("state", from.String()),
		logx.Bool("config_error", config.IsConfigError(err)),
		logx.Bool("task_error", task.IsTaskExecutionError(err)),
		logx.Err(err),
	)
	l.notify(ctx, ev)
	return err
}

func (l *Loop) stop(ctx context.Context, ev Event) error {
	from := l.State()
	err := ErrStopped
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		err = fmt.Errorf("%w: %w", ErrStopped, cause)
	}
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
	l.state.Store(int32(StateStopped))

	ev.From, ev.To, ev.Err = from, StateStopped, err
	l.log.Info("loop stopped", logx.Uint64("iteration", ev.Iteration), logx.String("state", from.String()))
	l.notify(ctx, ev)
	return err
}

func (l *Loop) notify(ctx context.Context, ev Event) {
	ev.RunID = l.runID
	ev.At = time.Now()
	// Observers run after cancellation too (e.g. the final Stopped event).
	octx := context.WithoutCancel(ctx)
	for _, o := range l.observers {
		o.Observe(octx, ev)
	}
}
