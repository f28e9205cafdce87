package lifecycle

// EventKind is a domain event in the session lifecycle.
type EventKind int

const (
	EvUnknown EventKind = iota
	EvInitialized
	EvStartRequested
	EvStopRequested
	EvInactivityTimeout
)

func (e EventKind) String() string {
	switch e {
	case EvInitialized:
		return "initialized"
	case EvStartRequested:
		return "start_requested"
	case EvStopRequested:
		return "stop_requested"
	case EvInactivityTimeout:
		return "inactivity_timeout"
	default:
		return "unknown"
	}
}
