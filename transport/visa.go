package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseResource converts a VISA resource string into a concrete Transport.
//
// Two resource classes are supported:
//
//	TCPIP[n]::host[::port]::SOCKET  — raw TCP socket (default port 5025)
//	ASRL<n>::INSTR                  — serial port n at the given baud rate
//
// VISA here is only an addressing convention; the returned transport speaks
// the same newline-terminated SCPI as the underlying TCP or serial channel.
func ParseResource(resource string, baudRate int, timeout time.Duration) (Transport, error) {
	parts := strings.Split(resource, "::")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResource, resource)
	}

	class := strings.ToUpper(parts[0])

	switch {
	case strings.HasPrefix(class, "TCPIP"):
		if !strings.EqualFold(parts[len(parts)-1], "SOCKET") {
			return nil, fmt.Errorf("%w: %q: only SOCKET TCPIP resources are supported", ErrInvalidResource, resource)
		}

		host := parts[1]
		port := 5025
		if len(parts) >= 4 {
			p, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, fmt.Errorf("%w: %q: bad port %q", ErrInvalidResource, resource, parts[2])
			}
			port = p
		}

		return NewTCP(fmt.Sprintf("%s:%d", host, port), timeout), nil

	case strings.HasPrefix(class, "ASRL"):
		name := strings.TrimPrefix(parts[0], "ASRL")
		if name == "" {
			return nil, fmt.Errorf("%w: %q: missing serial port", ErrInvalidResource, resource)
		}

		// Numeric ASRL indices map to OS device names; anything else is taken
		// as a literal device path (ASRL/dev/ttyUSB0::INSTR).
		if n, err := strconv.Atoi(name); err == nil {
			name = defaultSerialName(n)
		}

		return NewSerial(name, baudRate, timeout), nil

	default:
		return nil, fmt.Errorf("%w: %q: unsupported resource class", ErrInvalidResource, resource)
	}
}

// FormatSocketResource builds a TCPIP SOCKET resource string for host:port.
func FormatSocketResource(host string, port int) string {
	return fmt.Sprintf("TCPIP0::%s::%d::SOCKET", host, port)
}
