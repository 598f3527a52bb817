package worker

import (
	"errors"
	"time"

	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/transport"
)

// EventType tags the variants of the engine event stream.
type EventType int

const (
	// EventStateChanged reports a Status transition.
	EventStateChanged EventType = iota
	// EventProgress reports completion in percent, or -1 for indeterminate.
	EventProgress
	// EventError reports a typed operation error. The engine keeps the error
	// counter; the event carries the cause for the consuming layer.
	EventError
	// EventResult carries one measurement sample.
	EventResult
	// EventConnected carries the device identity after a successful connect.
	EventConnected
	// EventReconnectAttempt reports one reconnect attempt number.
	EventReconnectAttempt
	// EventMaxAttempts signals that a reconnect task gave up.
	EventMaxAttempts
	// EventCompleted reports natural task completion with final counters.
	EventCompleted
)

// ErrorKind classifies an EventError cause so the consuming layer can word
// its diagnostics without string matching.
type ErrorKind string

const (
	ErrorKindUnreachable ErrorKind = "unreachable"
	ErrorKindTimeout     ErrorKind = "timed out"
	ErrorKindIdentity    ErrorKind = "unexpected identity"
	ErrorKindProtocol    ErrorKind = "protocol"
	ErrorKindUsage       ErrorKind = "usage"
	ErrorKindMeasurement ErrorKind = "measurement"
	ErrorKindSetup       ErrorKind = "setup"
)

// classifyError maps an operation error onto its ErrorKind via the transport
// and instrument sentinel groups.
func classifyError(err error) ErrorKind {
	switch {
	case errors.Is(err, transport.ErrUnreachable):
		return ErrorKindUnreachable
	case errors.Is(err, transport.ErrTimeout):
		return ErrorKindTimeout
	case errors.Is(err, instrument.ErrIdentityMismatch):
		return ErrorKindIdentity
	case errors.Is(err, instrument.ErrMalformedResponse),
		errors.Is(err, instrument.ErrInstrumentFault):
		return ErrorKindProtocol
	case errors.Is(err, instrument.ErrNotConnected),
		errors.Is(err, instrument.ErrValueOutOfRange),
		errors.Is(err, instrument.ErrInvalidFunction):
		return ErrorKindUsage
	default:
		return ErrorKindMeasurement
	}
}

// Event is the tagged union sent on an engine's event channel. Only the
// fields relevant to Type are populated.
type Event struct {
	Type EventType
	Task string
	Time time.Time

	// EventStateChanged
	Prev   Status
	Status Status

	// EventProgress
	Progress int

	// EventError
	Err  error
	Kind ErrorKind

	// EventResult
	Sample instrument.Sample

	// EventConnected
	Identity string

	// EventReconnectAttempt
	Attempt int

	// EventCompleted
	Operations uint64
	Errors     uint64
}
