package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

// ErrIllegalTransition is returned when an event has no edge from the current state.
var ErrIllegalTransition = errors.New("illegal lifecycle transition")

// Apply returns the state reached by ev from the given state.
func Apply(from model.State, ev EventKind) (model.State, error) {
	tr, ok := TransitionFor(from, ev)
	if !ok {
		return from, fmt.Errorf("%w: %s + %s", ErrIllegalTransition, from, ev)
	}
	return tr.To, nil
}
