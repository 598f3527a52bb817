package worker

import "errors"

var (
	// ErrInvalidTransition is returned when an engine operation is not legal
	// in the current state, e.g. Start on an engine that already ran.
	ErrInvalidTransition = errors.New("worker: invalid state transition")

	// ErrSetupFailed wraps a runner setup error.
	ErrSetupFailed = errors.New("worker: setup failed")

	// ErrMaxAttemptsReached indicates a reconnect task exhausted its retry
	// budget without establishing a connection.
	ErrMaxAttemptsReached = errors.New("worker: max reconnect attempts reached")

	// ErrStartTimeout indicates the task goroutine did not report startup
	// within the handshake window.
	ErrStartTimeout = errors.New("worker: timeout waiting for task to start")
)
