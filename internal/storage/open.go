package storage

import (
	"fmt"
	"strings"

	logx "autorun/pkg/logx"
)

type opener func(Config, logx.Logger) (Store, error)

var drivers = map[string]opener{
	"file":    openFile,
	"jsonl":   openFile,
	"sqlite":  openSQLite,
	"sqlite3": openSQLite,
}

// Open returns the journal store for cfg.Driver, or (nil, nil) when the
// driver is empty or "none".
func Open(cfg Config, log logx.Logger) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" || name == "none" {
		return nil, nil
	}
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown journal driver %q (want file, sqlite or none)", cfg.Driver)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return open(cfg, log.With(logx.String("driver", name)))
}
