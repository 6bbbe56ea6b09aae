package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"autorun/internal/config"
	"autorun/internal/loop"
	"autorun/internal/metrics"
	"autorun/internal/runtime/supervisor"
	"autorun/internal/sdnotify"
	"autorun/internal/storage"
	"autorun/internal/task"
	logx "autorun/pkg/logx"
)

const (
	watchRestartMin = 250 * time.Millisecond
	watchRestartMax = 5 * time.Second
)

type App struct {
	opts  Options
	runID string

	log  logx.Logger
	logs *logx.Service

	cfgm     *config.Manager
	store    storage.Store
	metrics  *metrics.Metrics
	mserver  *metrics.Server
	notifier *sdnotify.Notifier

	loop *loop.Loop
}

func New(opts Options) (*App, error) {
	opts = opts.withDefaults()
	runID := uuid.NewString()

	logSvc, base := logx.New(logx.Config{
		Level:   opts.LogLevel,
		Console: true,
		File: logx.FileConfig{
			Enabled: strings.TrimSpace(opts.LogFile) != "",
			Path:    opts.LogFile,
		},
	})
	log := base.With(logx.String("run_id", runID))

	a := &App{
		opts:  opts,
		runID: runID,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
	}

	a.cfgm = config.NewManager(opts.ConfigPath)
	a.cfgm.SetLogger(log.With(logx.String("comp", "config")))

	// Journal (optional)
	sc, enabled, err := opts.storageConfig()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.store = st
		a.log.Info("journal enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	notify := opts.Notify
	if notify == nil {
		a.notifier = sdnotify.New(log.With(logx.String("comp", "sdnotify")))
	} else {
		a.notifier = sdnotify.NewWithFunc(notify, log.With(logx.String("comp", "sdnotify")))
	}

	observers := []loop.Observer{a.notifier}
	if a.store != nil {
		observers = append(observers, storage.NewJournal(a.store, log.With(logx.String("comp", "journal"))))
	}

	runner := opts.Runner
	if runner == nil {
		runner = task.NewExecRunner(opts.Interpreter, log.With(logx.String("comp", "task")))
	}
	loopOpts := []loop.Option{
		loop.WithLoader(a.cfgm),
		loop.WithRunner(runner),
		loop.WithLogger(base.With(logx.String("comp", "loop"))),
		loop.WithRunID(runID),
	}
	if opts.Sleeper != nil {
		loopOpts = append(loopOpts, loop.WithSleeper(opts.Sleeper))
	}

	if strings.TrimSpace(opts.MetricsAddr) != "" {
		a.metrics = metrics.New()
		observers = append(observers, a.metrics)
	}
	loopOpts = append(loopOpts, loop.WithObserver(observers...))
	a.loop = loop.New(opts.ConfigPath, opts.TaskPath, loopOpts...)

	if a.metrics != nil {
		a.mserver = metrics.NewServer(opts.MetricsAddr, metrics.NewRouter(a.metrics, a.loop), log)
	}
	return a, nil
}

// Run starts the auxiliary services, runs the loop until it ends, then
// tears everything down. It returns the loop's error.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	// Bind before anything is started so a busy address leaves nothing behind.
	if a.mserver != nil {
		if err := a.mserver.Listen(); err != nil {
			return fmt.Errorf("metrics listen %s: %w", a.opts.MetricsAddr, err)
		}
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	if a.mserver != nil {
		sup.Go("metrics.http", a.mserver.Serve)
	}
	if a.opts.WatchConfig {
		sup.GoRestart("config.watch", func(ctx context.Context) error {
			return a.cfgm.Watch(ctx, nil)
		}, supervisor.WithRestartBackoff(watchRestartMin, watchRestartMax))
	}

	a.notifier.Ready()
	err := a.loop.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := sup.Stop(stopCtx); serr != nil {
		a.log.Warn("auxiliary services stopped with error", logx.Err(serr))
	}
	return err
}

func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	_ = a.logs.Close()
}
