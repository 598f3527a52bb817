// Package transport carries newline-terminated ASCII SCPI traffic to bench
// instruments over raw TCP sockets, VISA-style resource strings, or RS-232
// serial links.
//
// All transports share the same framing: commands are sent with a trailing
// '\n' and query replies are read up to the next '\n'. A Transport is owned by
// a single driver and is not safe for concurrent use; the driver layer
// serializes access.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel errors for transport failures. Callers branch with errors.Is to
// distinguish an unreachable endpoint from a live endpoint that stopped
// answering.
var (
	// ErrUnreachable indicates the endpoint refused or could not be reached at all.
	ErrUnreachable = errors.New("transport: endpoint unreachable")

	// ErrTimeout indicates an I/O deadline expired while talking to the endpoint.
	ErrTimeout = errors.New("transport: i/o timeout")

	// ErrClosed indicates an operation was attempted on a closed transport.
	ErrClosed = errors.New("transport: not open")

	// ErrInvalidResource indicates a VISA resource string could not be parsed.
	ErrInvalidResource = errors.New("transport: invalid VISA resource string")
)

// DefaultProbeTimeout bounds the fast raw connectivity probe performed before
// a full protocol handshake.
const DefaultProbeTimeout = 2 * time.Second

// Transport is a bidirectional SCPI text channel.
type Transport interface {
	// Open establishes the underlying channel. Opening an already-open
	// transport is a no-op.
	Open() error
	// Close tears the channel down. Closing a closed transport is a no-op.
	Close() error
	// Send writes one newline-terminated command without expecting a reply.
	Send(cmd string) error
	// Query writes one command and reads a single newline-terminated reply.
	Query(cmd string) (string, error)
	// Connected reports whether the channel is currently open.
	Connected() bool
	// Endpoint returns a human-readable address for diagnostics.
	Endpoint() string
}

// Probe performs a raw TCP connectivity check against addr with the given
// timeout, without any protocol handshake. It exists to fail fast when a
// device is powered off: a full SCPI connect would otherwise block for the
// whole protocol timeout.
func Probe(addr string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(context.Background(), "tcp", addr)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: no response from %s within %v", ErrTimeout, addr, timeout)
		}

		return fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
	}
	_ = conn.Close()

	return nil
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
