package instrument

import (
	"sync"
	"sync/atomic"
)

// MockSourceMeter is an in-memory SourceMeter for task, pool and session
// tests. Its readings are settable and every failure path is injectable.
type MockSourceMeter struct {
	mu        sync.Mutex
	connected bool
	output    bool
	level     float64
	limit     float64

	// Reading is returned by the measurement operations.
	Reading Measurement

	// Injectable failures.
	ConnectErr    error
	DisconnectErr error
	MeasureErr    error
	SetErr        error
	OutputErr     error

	// IdentityStr is returned by Identity after a successful Connect.
	IdentityStr string

	measureCount atomic.Int64
}

var _ SourceMeter = (*MockSourceMeter)(nil)

// NewMockSourceMeter creates a mock with a fixed reading.
func NewMockSourceMeter(reading Measurement) *MockSourceMeter {
	return &MockSourceMeter{
		Reading:     reading,
		IdentityStr: "KEITHLEY INSTRUMENTS,MODEL 2461,00000000,1.0.0",
	}
}

func (m *MockSourceMeter) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true

	return nil
}

func (m *MockSourceMeter) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	if m.DisconnectErr != nil {
		return m.DisconnectErr
	}

	return nil
}

func (m *MockSourceMeter) Reset() error { return nil }

func (m *MockSourceMeter) Identity() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return "", ErrNotConnected
	}

	return m.IdentityStr, nil
}

func (m *MockSourceMeter) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connected
}

func (m *MockSourceMeter) CheckErrors() ([]string, error) { return nil, nil }

func (m *MockSourceMeter) Name() string { return "Mock SourceMeter" }

func (m *MockSourceMeter) Kind() Kind { return KindSourceMeter }

func (m *MockSourceMeter) SetVoltage(level any, limit any) error {
	return m.setLevel(level, limit)
}

func (m *MockSourceMeter) SetCurrent(level any, limit any) error {
	return m.setLevel(level, limit)
}

func (m *MockSourceMeter) setLevel(level any, limit any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	if m.SetErr != nil {
		return m.SetErr
	}

	v, err := normalizeLevel(level)
	if err != nil {
		return err
	}
	m.level = v

	if limit != nil {
		lim, err := normalizeLevel(limit)
		if err != nil {
			return err
		}
		m.limit = lim
	}

	return nil
}

func (m *MockSourceMeter) SetSourceFunction(string) error { return nil }

func (m *MockSourceMeter) OutputOn() error { return m.setOutput(true) }

func (m *MockSourceMeter) OutputOff() error { return m.setOutput(false) }

func (m *MockSourceMeter) setOutput(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OutputErr != nil {
		return m.OutputErr
	}
	m.output = on

	return nil
}

func (m *MockSourceMeter) OutputState() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.output, nil
}

func (m *MockSourceMeter) MeasureVoltage() (float64, error) {
	mr, err := m.MeasureAll()
	return mr.Voltage, err
}

func (m *MockSourceMeter) MeasureCurrent() (float64, error) {
	mr, err := m.MeasureAll()
	return mr.Current, err
}

func (m *MockSourceMeter) MeasureResistance() (float64, error) {
	mr, err := m.MeasureAll()
	return mr.Resistance, err
}

func (m *MockSourceMeter) MeasurePower() (float64, error) {
	mr, err := m.MeasureAll()
	return mr.Power, err
}

func (m *MockSourceMeter) MeasureAll() (Measurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return Measurement{}, ErrNotConnected
	}
	if m.MeasureErr != nil {
		return Measurement{}, m.MeasureErr
	}
	m.measureCount.Add(1)

	return m.Reading, nil
}

func (m *MockSourceMeter) SetCompliance(value any, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lim, err := normalizeLevel(value)
	if err != nil {
		return err
	}
	m.limit = lim

	return nil
}

// Level returns the most recently programmed source level.
func (m *MockSourceMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.level
}

// Limit returns the most recently programmed compliance limit.
func (m *MockSourceMeter) Limit() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.limit
}

// MeasureCount returns how many measurements were taken.
func (m *MockSourceMeter) MeasureCount() int64 { return m.measureCount.Load() }
