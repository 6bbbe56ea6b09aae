// Package sdnotify reports readiness and loop status to systemd.
//
// Outside a Type=notify unit (no NOTIFY_SOCKET) every call is a no-op.
package sdnotify

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"autorun/internal/loop"
	logx "autorun/pkg/logx"
)

// NotifyFunc matches daemon.SdNotify.
type NotifyFunc func(unsetEnvironment bool, state string) (bool, error)

type Notifier struct {
	notify NotifyFunc
	log    logx.Logger

	mu       sync.Mutex
	disabled bool
}

func New(log logx.Logger) *Notifier {
	return NewWithFunc(daemon.SdNotify, log)
}

func NewWithFunc(fn NotifyFunc, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{notify: fn, log: log}
}

// Ready sends READY=1.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// status sends a free-form STATUS= line.
func (n *Notifier) status(s string) { n.send("STATUS=" + s) }

func (n *Notifier) Observe(_ context.Context, ev loop.Event) {
	switch ev.To {
	case loop.StateRunTask:
		n.status(fmt.Sprintf("running task (iteration %d)", ev.Iteration))
	case loop.StateSleep:
		n.status(fmt.Sprintf("sleeping %s (iteration %d done)", ev.Interval, ev.Iteration))
	case loop.StateLoadConfig:
		n.status(fmt.Sprintf("loading config (iteration %d)", ev.Iteration))
	case loop.StateFailed:
		n.status(fmt.Sprintf("failed at iteration %d: %v", ev.Iteration, ev.Err))
	case loop.StateStopped:
		n.send(daemon.SdNotifyStopping)
	}
}

func (n *Notifier) send(state string) {
	if n == nil || n.notify == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.disabled {
		return
	}
	sent, err := n.notify(false, state)
	switch {
	case err != nil:
		n.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	case !sent:
		// No NOTIFY_SOCKET: not running under systemd. Stop trying.
		n.disabled = true
	}
}
