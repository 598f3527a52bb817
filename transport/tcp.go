package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// TCP is a raw socket transport, the native channel for LXI instruments such
// as the Keithley 2461 (port 5025).
type TCP struct {
	addr    string
	timeout time.Duration

	conn   net.Conn
	reader *bufio.Reader
}

var _ Transport = (*TCP)(nil)

// NewTCP creates a TCP transport for addr ("host:port") with a per-operation
// I/O timeout. A zero timeout defaults to 10 seconds.
func NewTCP(addr string, timeout time.Duration) *TCP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &TCP{addr: addr, timeout: timeout}
}

func (t *TCP) Open() error {
	if t.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("tcp", t.addr, t.timeout)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: dial %s: %v", ErrTimeout, t.addr, err)
		}

		return fmt.Errorf("%w: dial %s: %v", ErrUnreachable, t.addr, err)
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)

	return nil
}

func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.reader = nil

	return err
}

func (t *TCP) Send(cmd string) error {
	if t.conn == nil {
		return ErrClosed
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return err
	}

	if _, err := t.conn.Write([]byte(cmd + "\n")); err != nil {
		return t.wrapIOErr("send", err)
	}

	return nil
}

func (t *TCP) Query(cmd string) (string, error) {
	if err := t.Send(cmd); err != nil {
		return "", err
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return "", err
	}

	line, err := t.reader.ReadString('\n')
	if err != nil {
		return "", t.wrapIOErr("query", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func (t *TCP) Connected() bool { return t.conn != nil }

func (t *TCP) Endpoint() string { return t.addr }

func (t *TCP) wrapIOErr(op string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %s on %s: %v", ErrTimeout, op, t.addr, err)
	}

	return fmt.Errorf("transport: %s on %s: %w", op, t.addr, err)
}
