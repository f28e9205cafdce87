package lifecycle

import "github.com/ManuGH/robohub-inference/internal/domain/session/model"

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From  model.State
	To    model.State
	Event EventKind
}

var transitionsTable = []Transition{
	// Init path
	{From: model.StateInitializing, To: model.StateReady, Event: EvInitialized},

	// Control loop
	{From: model.StateReady, To: model.StateRunning, Event: EvStartRequested},
	{From: model.StateStopped, To: model.StateRunning, Event: EvStartRequested},
	{From: model.StateRunning, To: model.StateStopped, Event: EvStopRequested},
	{From: model.StateReady, To: model.StateStopped, Event: EvStopRequested},
	{From: model.StateStopped, To: model.StateStopped, Event: EvStopRequested},

	// Watchdog
	{From: model.StateReady, To: model.StateTimeout, Event: EvInactivityTimeout},
	{From: model.StateRunning, To: model.StateTimeout, Event: EvInactivityTimeout},
	{From: model.StateStopped, To: model.StateTimeout, Event: EvInactivityTimeout},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from model.State, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
