package daemon

import "errors"

var (
	// ErrMissingHandler is returned when a manager is created without an API handler.
	ErrMissingHandler = errors.New("API handler is required")

	// ErrMissingManager is returned when a daemon app is created without a manager.
	ErrMissingManager = errors.New("manager is required")

	// ErrManagerNotStarted is returned when trying to shutdown a manager that hasn't started
	ErrManagerNotStarted = errors.New("manager not started")

	// ErrUnknownBackend is returned for an unsupported transport or policy backend.
	ErrUnknownBackend = errors.New("unknown backend")
)
