package transport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Serial is an RS-232 transport at 8 data bits, no parity, 1 stop bit.
// The Rigol DP711 factory default is 9600 baud.
type Serial struct {
	portName string
	baudRate int
	timeout  time.Duration

	port serial.Port
}

var _ Transport = (*Serial)(nil)

// NewSerial creates a serial transport for portName (e.g. "/dev/ttyUSB0" or
// "COM3"). A zero baudRate defaults to 9600 and a zero timeout to 5 seconds.
func NewSerial(portName string, baudRate int, timeout time.Duration) *Serial {
	if baudRate <= 0 {
		baudRate = 9600
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Serial{portName: portName, baudRate: baudRate, timeout: timeout}
}

func (s *Serial) Open() error {
	if s.port != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(s.portName, mode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUnreachable, s.portName, err)
	}

	if err := port.SetReadTimeout(s.timeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("transport: set read timeout on %s: %w", s.portName, err)
	}

	// Stale bytes from a previous session would desynchronize the first query.
	_ = port.ResetInputBuffer()
	_ = port.ResetOutputBuffer()

	s.port = port

	return nil
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}

	err := s.port.Close()
	s.port = nil

	return err
}

func (s *Serial) Send(cmd string) error {
	if s.port == nil {
		return ErrClosed
	}

	if _, err := s.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("transport: send on %s: %w", s.portName, err)
	}

	return nil
}

func (s *Serial) Query(cmd string) (string, error) {
	if err := s.Send(cmd); err != nil {
		return "", err
	}

	return s.readLine()
}

// readLine accumulates bytes until '\n'. go.bug.st/serial signals a read
// timeout with a zero-byte read and a nil error.
func (s *Serial) readLine() (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)

	for {
		n, err := s.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("transport: read on %s: %w", s.portName, err)
		}
		if n == 0 {
			return "", fmt.Errorf("%w: read on %s after %v", ErrTimeout, s.portName, s.timeout)
		}

		if buf[0] == '\n' {
			return strings.TrimRight(sb.String(), "\r"), nil
		}
		sb.WriteByte(buf[0])
	}
}

func (s *Serial) Connected() bool { return s.port != nil }

func (s *Serial) Endpoint() string { return s.portName }
