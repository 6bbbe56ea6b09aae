package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"autorun/internal/app"
)

func main() {
	var opts app.Options
	flag.StringVar(&opts.ConfigPath, "config", app.DefaultConfigPath, "path to the frequency config (json or yaml)")
	flag.StringVar(&opts.TaskPath, "task", app.DefaultTaskPath, "path to the task script")
	flag.StringVar(&opts.Interpreter, "interpreter", "", "interpreter for the task (default: by extension)")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "log level: trace|debug|info|warn|error")
	flag.StringVar(&opts.LogFile, "log-file", "", "also write json logs to this file")
	flag.StringVar(&opts.JournalDriver, "journal-driver", "", "run journal driver: file|sqlite (default: disabled)")
	flag.StringVar(&opts.JournalPath, "journal-path", "", "run journal path")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	flag.BoolVar(&opts.WatchConfig, "watch-config", false, "log config edits as soon as they happen")
	flag.Parse()

	a, err := app.New(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	// Run only returns once the loop has failed.
	if err := a.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
