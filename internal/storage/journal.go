package storage

import (
	"context"
	"time"

	"autorun/internal/loop"
	logx "autorun/pkg/logx"
)

// Journal is a loop.Observer that appends one RunRecord per finished task run.
// Write failures are logged; they never affect the loop.
type Journal struct {
	store Store
	log   logx.Logger
}

func NewJournal(store Store, log logx.Logger) *Journal {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Journal{store: store, log: log}
}

func (j *Journal) Observe(ctx context.Context, ev loop.Event) {
	if j == nil || j.store == nil || !ev.TaskFinished() {
		return
	}
	started := ev.TaskStartedAt
	if started.IsZero() {
		started = ev.At.Add(-ev.TaskDuration)
	}
	rec := RunRecord{
		RunID:            ev.RunID,
		Iteration:        ev.Iteration,
		StartedAt:        started,
		FinishedAt:       started.Add(ev.TaskDuration),
		FrequencyMinutes: ev.FrequencyMinutes,
		IntervalMS:       ev.Interval.Milliseconds(),
		ExitCode:         ev.ExitCode,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := j.store.AppendRun(wctx, rec); err != nil {
		j.log.Warn("journal append failed", logx.Uint64("iteration", ev.Iteration), logx.Err(err))
	}
}
