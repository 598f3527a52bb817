package instrument

import "errors"

// Connection errors.
var (
	// ErrNotConnected indicates an operation was attempted before Connect().
	ErrNotConnected = errors.New("instrument: not connected")

	// ErrIdentityMismatch indicates the *IDN? reply did not contain the
	// expected model substring. A device answered, it is just not the device
	// the driver was built for.
	ErrIdentityMismatch = errors.New("instrument: unexpected identity")
)

// Protocol errors.
var (
	// ErrMalformedResponse indicates a reply that cannot be parsed into the
	// expected fields.
	ErrMalformedResponse = errors.New("instrument: malformed response")

	// ErrInstrumentFault indicates the instrument reported one or more faults
	// in its error queue.
	ErrInstrumentFault = errors.New("instrument: device reported fault")
)

// Usage errors.
var (
	// ErrValueOutOfRange indicates a numeric input outside the instrument's
	// rated limits.
	ErrValueOutOfRange = errors.New("instrument: value out of range")

	// ErrInvalidFunction indicates an unsupported source or measure function name.
	ErrInvalidFunction = errors.New("instrument: invalid function")
)
