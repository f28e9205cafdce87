package model

// State is the lifecycle state of an inference session.
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateRunning      State = "running"
	StateStopped      State = "stopped"
	StateTimeout      State = "timeout"
)

// AllStates lists every state in lifecycle order.
var AllStates = []State{StateInitializing, StateReady, StateRunning, StateStopped, StateTimeout}

// IsStartable reports whether the control loop may be started from s.
func (s State) IsStartable() bool {
	return s == StateReady || s == StateStopped
}

// IsTerminal reports whether s only leads to deletion.
func (s State) IsTerminal() bool {
	return s == StateTimeout
}

func (s State) String() string { return string(s) }
