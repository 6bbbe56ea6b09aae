//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "autorun/pkg/logx"
)

func TestSQLiteStoreRecentRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	now := time.Now()
	for i := 1; i <= 4; i++ {
		if err := st.AppendRun(ctx, RunRecord{RunID: "r", Iteration: uint64(i), StartedAt: now, FinishedAt: now}); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	recent, err := st.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(recent) != 2 || recent[0].Iteration != 3 || recent[1].Iteration != 4 {
		t.Fatalf("unexpected records: %+v", recent)
	}
}
