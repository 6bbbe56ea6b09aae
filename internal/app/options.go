package app

import (
	"errors"
	"strings"

	"autorun/internal/loop"
	"autorun/internal/sdnotify"
	"autorun/internal/storage"
	"autorun/internal/task"
)

// Default paths of the deployment this tool was written for.
const (
	DefaultConfigPath = "/mnt/opt/scripts/lidarr/slskd/AutoRunFrequency.json"
	DefaultTaskPath   = "/mnt/opt/scripts/lidarr/slskd/script.py"
)

// Options configures the process. cmd/autorun fills it from flags.
type Options struct {
	ConfigPath  string
	TaskPath    string
	Interpreter string

	LogLevel string
	LogFile  string

	JournalDriver string
	JournalPath   string

	MetricsAddr string
	WatchConfig bool

	// Test seams; nil selects the production implementation.
	Runner  task.Runner
	Sleeper loop.Sleeper
	Notify  sdnotify.NotifyFunc
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.ConfigPath) == "" {
		o.ConfigPath = DefaultConfigPath
	}
	if strings.TrimSpace(o.TaskPath) == "" {
		o.TaskPath = DefaultTaskPath
	}
	if strings.TrimSpace(o.LogLevel) == "" {
		o.LogLevel = "info"
	}
	return o
}

func (o Options) storageConfig() (storage.Config, bool, error) {
	driver := strings.ToLower(strings.TrimSpace(o.JournalDriver))
	if driver == "" || driver == "none" {
		if strings.TrimSpace(o.JournalPath) != "" {
			return storage.Config{}, false, errors.New("journal path set without journal driver")
		}
		return storage.Config{}, false, nil
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(o.JournalPath)}, true, nil
}
