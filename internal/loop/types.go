package loop

import (
	"context"
	"errors"
	"time"

	"autorun/internal/config"
)

var (
	// ErrStopped is returned by Run when its context is cancelled.
	ErrStopped = errors.New("loop stopped")
	// ErrFinished is returned when Run is called on a loop that already ended.
	ErrFinished = errors.New("loop already finished")
)

// ConfigLoader reads the configuration document; *config.Manager in production.
type ConfigLoader interface {
	Load() (*config.Document, error)
}

// Sleeper blocks for d. It returns early with ctx.Err() if ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// sleepContext is the default Sleeper: a timer that yields to ctx.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Event describes one state transition.
type Event struct {
	RunID     string
	Iteration uint64
	From      State
	To        State
	At        time.Time

	// FrequencyMinutes and Interval are set once the iteration's config is loaded.
	FrequencyMinutes float64
	Interval         time.Duration

	// Set when leaving RunTask.
	TaskStartedAt time.Time
	TaskDuration  time.Duration
	ExitCode      int

	Err error
}

// TaskFinished reports whether the event closes a task run (success or failure).
func (e Event) TaskFinished() bool { return e.From == StateRunTask && e.To != StateStopped }

// Observer is told about every transition, synchronously, on the loop goroutine.
// Observers cannot influence the loop; they should return quickly.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// Snapshot is a point-in-time view of the loop, safe to take from any goroutine.
type Snapshot struct {
	RunID            string        `json:"run_id"`
	State            string        `json:"state"`
	Iteration        uint64        `json:"iteration"`
	FrequencyMinutes float64       `json:"frequency_minutes"`
	Interval         time.Duration `json:"interval"`
	LastError        string        `json:"last_error,omitempty"`
}
