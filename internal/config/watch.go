package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "autorun/pkg/logx"
)

const watchDebounce = 250 * time.Millisecond

// ChangeFunc is told about each distinct document the watcher parses.
// err is non-nil when the edited file no longer parses.
type ChangeFunc func(doc *Document, err error)

// ErrWatcherClosed is returned by Watch when fsnotify closes its channels.
var ErrWatcherClosed = errors.New("config watcher closed")

// Watch reports edits to the document until ctx is done.
//
// It never hands documents to the loop: the loop re-reads the file at the
// start of each iteration anyway. Watch only surfaces edits early, so a bad
// edit is visible in the logs before the next cycle fails on it.
//
// Watch returns nil when ctx ends. Any other return is a watcher failure;
// callers restart it (the app runs it under supervisor.GoRestart).
func (m *Manager) Watch(ctx context.Context, onChange ChangeFunc) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch init: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		m.log.Debug("config change detected; scheduling check", logx.String("path", m.path))
		timer = time.AfterFunc(watchDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			m.check(onChange)
		})
	}

	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
	return m.watchLoop(ctx, w, file, debounce)
}

// watchLoop consumes events until ctx ends (nil) or the watcher breaks.
func (m *Manager) watchLoop(ctx context.Context, w *fsnotify.Watcher, file string, debounce func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return ErrWatcherClosed
			}
			// Compare by basename (more robust across absolute/relative paths and OS quirks).
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			if err == nil {
				continue
			}
			// Overflow means events may have been missed; check once and keep going.
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing check", logx.Err(err))
				debounce()
				continue
			}
			return fmt.Errorf("config watch: %w", err)
		}
	}
}

// check parses the current file and reports it if it differs from what was
// last seen. It never commits: only the loop's Load does that.
func (m *Manager) check(onChange ChangeFunc) {
	doc, err := m.Parse()
	if err != nil {
		m.log.Warn("config edit is invalid; next iteration will fail unless fixed",
			logx.String("path", m.path), logx.Err(err))
		if onChange != nil {
			onChange(nil, err)
		}
		return
	}

	h := hashDocument(doc)
	m.mu.Lock()
	prev := m.doc
	unchanged := h != 0 && h == m.seenHash
	if !unchanged {
		m.seenHash = h
	}
	m.mu.Unlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping", logx.String("path", m.path))
		return
	}

	m.log.Info("config changed; takes effect next iteration",
		append([]logx.Field{logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h))},
			SummarizeChange(prev, doc)...)...)
	if onChange != nil {
		onChange(doc, nil)
	}
}

// SummarizeChange returns log fields describing how the effective interval moved.
func SummarizeChange(oldDoc, newDoc *Document) []logx.Field {
	fields := []logx.Field{
		logx.Float64("frequency_minutes", newDoc.Frequency()),
		logx.Duration("interval", newDoc.Interval()),
	}
	if oldDoc != nil && oldDoc.Frequency() != newDoc.Frequency() {
		fields = append(fields, logx.Float64("previous_frequency_minutes", oldDoc.Frequency()))
	}
	if newDoc == nil || newDoc.FrequencyMinutes == nil {
		fields = append(fields, logx.Bool("default", true))
	}
	return fields
}
