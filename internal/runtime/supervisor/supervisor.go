// Package supervisor runs the process's auxiliary goroutines (config
// watcher, metrics server) under one cancellable context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	logx "autorun/pkg/logx"
)

// Supervisor tracks named goroutines, recovers their panics and keeps the
// first error any of them returned.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	wg sync.WaitGroup

	mu       sync.Mutex
	firstErr error
	done     chan struct{}
	waitOnce sync.Once
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

func New(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{done: make(chan struct{})}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// recorded returns the first recorded failure.
func (s *Supervisor) recorded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Go runs fn on its own goroutine. A returned error (other than
// context.Canceled) or a panic is recorded as "<name>: <err>".
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := s.log.With(logx.String("goroutine", name))
		log.Debug("goroutine started")
		err := s.invoke(s.ctx, name, fn)
		var pe *panicError
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.As(err, &pe):
			s.record(err)
		default:
			s.record(fmt.Errorf("%s: %w", name, err))
		}
		log.Debug("goroutine exited")
	}()
}

type panicError struct {
	name  string
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic in %s: %v", e.name, e.value) }

// invoke runs fn, converting a panic into a *panicError.
func (s *Supervisor) invoke(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked",
				logx.String("goroutine", name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			err = &panicError{name: name, value: r}
		}
	}()
	return fn(ctx)
}

type restartPolicy struct {
	initial, max time.Duration
	healthyAfter time.Duration
}

// RestartOption tunes GoRestart.
type RestartOption func(*restartPolicy)

// WithRestartBackoff bounds the exponential delay between restarts.
func WithRestartBackoff(initial, max time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if initial > 0 {
			p.initial = initial
		}
		if max > 0 {
			p.max = max
		}
	}
}

// GoRestart keeps fn running: an error or panic restarts it after a backoff
// delay, a nil return or cancellation ends it. A run that stayed up for 30s
// resets the delay.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{initial: 250 * time.Millisecond, max: 30 * time.Second, healthyAfter: 30 * time.Second}
	for _, o := range opts {
		o(&p)
	}
	if p.max < p.initial {
		p.max = p.initial
	}

	s.Go(name, func(ctx context.Context) error {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = p.initial
		bo.MaxInterval = p.max
		bo.MaxElapsedTime = 0
		bo.Reset()

		for {
			began := time.Now()
			err := s.invoke(ctx, name, fn)
			if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if time.Since(began) >= p.healthyAfter {
				bo.Reset()
			}
			delay := bo.NextBackOff()
			s.log.Warn("goroutine restarting", logx.String("goroutine", name), logx.Duration("backoff", delay), logx.Err(err))

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}
	})
}

// Stop cancels all goroutines and waits for them within ctx. It returns the
// first recorded failure, or ctx.Err() if they did not exit in time.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.wait(ctx)
}

// wait blocks until every goroutine has exited or ctx ends.
func (s *Supervisor) wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-s.done:
		return s.recorded()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) record(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
}
