package transport

import (
	"fmt"
	"sync"
)

// Mock is an in-memory Transport for driver tests. Replies are scripted per
// query command; sent commands are recorded for assertion.
type Mock struct {
	mu       sync.Mutex
	open     bool
	endpoint string
	replies  map[string]string
	sent     []string

	// OpenErr, SendErr and QueryErr, when set, are returned by the
	// corresponding operation.
	OpenErr  error
	SendErr  error
	QueryErr error
}

var _ Transport = (*Mock)(nil)

// NewMock creates a mock transport with the given query→reply script.
func NewMock(endpoint string, replies map[string]string) *Mock {
	if replies == nil {
		replies = make(map[string]string)
	}
	if endpoint == "" {
		endpoint = "mock"
	}

	return &Mock{endpoint: endpoint, replies: replies}
}

func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.open = true

	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false

	return nil
}

func (m *Mock) Send(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return ErrClosed
	}
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, cmd)

	return nil
}

func (m *Mock) Query(cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return "", ErrClosed
	}
	if m.QueryErr != nil {
		return "", m.QueryErr
	}
	m.sent = append(m.sent, cmd)

	reply, ok := m.replies[cmd]
	if !ok {
		return "", fmt.Errorf("%w: no scripted reply for %q", ErrTimeout, cmd)
	}

	return reply, nil
}

// SetReply scripts (or re-scripts) the reply for one query command.
func (m *Mock) SetReply(cmd, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[cmd] = reply
}

// Sent returns a copy of all commands written so far.
func (m *Mock) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.sent...)
}

func (m *Mock) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.open
}

func (m *Mock) Endpoint() string { return m.endpoint }
