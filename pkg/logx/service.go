package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const defaultLogFile = "./autorun.log"

// Service owns the process sinks. Close swaps the root in place; Loggers
// handed out earlier pick up the change on their next event.
type Service struct {
	mu    sync.Mutex
	file  *os.File
	level zerolog.Level

	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service with its root Logger. A log file
// that cannot be opened is reported on stderr and skipped.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	if err := s.apply(cfg); err != nil {
		fmt.Fprintf(stderr(), "logx: %v\n", err)
	}
	return s, Logger{src: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// apply builds the sinks from cfg. Console output is used when no other
// sink is available.
func (s *Service) apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.closeFileLocked()
	s.level = parseLevel(cfg.Level, zerolog.InfoLevel)

	var (
		sinks []io.Writer
		ferr  error
	)
	if cfg.Console {
		sinks = append(sinks, consoleWriter(stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			ferr = fmt.Errorf("open log file %q: %w", path, err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(stdout()))
	}

	zl := newRoot(zerolog.MultiLevelWriter(sinks...), s.level)
	s.root.Store(&zl)
	return ferr
}

// Close releases the log file, if any, and falls back to console output.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	zl := newRoot(consoleWriter(stdout()), s.level)
	s.root.Store(&zl)
	return s.closeFileLocked()
}

func (s *Service) closeFileLocked() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func stdout() io.Writer { return os.Stdout }
func stderr() io.Writer { return os.Stderr }
