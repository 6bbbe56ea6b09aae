package loop

import "fmt"

// State is a scheduler loop state.
type State int32

const (
	StateLoadConfig State = iota
	StateRunTask
	StateSleep
	StateFailed
	StateStopped
)

// States lists every state in declaration order.
var States = []State{StateLoadConfig, StateRunTask, StateSleep, StateFailed, StateStopped}

func (s State) String() string {
	switch s {
	case StateLoadConfig:
		return "load_config"
	case StateRunTask:
		return "run_task"
	case StateSleep:
		return "sleep"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// IsTerminal reports whether s ends the loop; no transition leaves it.
func IsTerminal(s State) bool {
	return s == StateFailed || s == StateStopped
}

// Transition validates a move from one state to another.
func Transition(from, to State) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", from, to)
	}
	return nil
}

func isAllowedTransition(from, to State) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StateStopped {
		return true
	}
	switch from {
	case StateLoadConfig:
		return to == StateRunTask || to == StateFailed
	case StateRunTask:
		return to == StateSleep || to == StateFailed
	case StateSleep:
		return to == StateLoadConfig
	default:
		return false
	}
}
