package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one finished task run.
// Keep it compact and schema-stable.
type RunRecord struct {
	RunID            string    `json:"run_id"`
	Iteration        uint64    `json:"iteration"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	FrequencyMinutes float64   `json:"frequency_minutes"`
	IntervalMS       int64     `json:"interval_ms"`
	ExitCode         int       `json:"exit_code"`
	Error            string    `json:"error,omitempty"`
}

// Store is the journal API.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns up to n records, oldest first.
	RecentRuns(ctx context.Context, n int) ([]RunRecord, error)
	Close() error
}
