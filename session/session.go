// Package session groups measurement runs: while a session is active every
// recorded sample is fanned out to the in-memory buffer pool, the running
// statistics, the anomaly detectors and the configured sinks. Ending the
// session yields its summary.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-scpi/buffer"
	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/logger"
)

var (
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("session: a session is already active")
	// ErrNoSession is returned when recording or ending without an active
	// session.
	ErrNoSession = errors.New("session: no active session")
	// ErrSessionClosed is returned by sinks after Close.
	ErrSessionClosed = errors.New("session: sink closed")
)

// defaultFlushInterval is the auto-save period pushing buffered sink rows
// out while a session runs.
const defaultFlushInterval = 30 * time.Second

// AnomalyFunc is notified for each sample flagged by a detector. quantity is
// "voltage" or "current"; score is the z-score that tripped the threshold.
type AnomalyFunc func(s instrument.Sample, quantity string, score float64)

// Manager runs at most one session at a time and owns the sinks for the
// lifetime of the process.
type Manager struct {
	logger  logger.Logger
	buffers *buffer.Pool
	sinks   []Sink

	flushInterval time.Duration
	window        int
	threshold     float64
	onAnomaly     AnomalyFunc

	mu      sync.Mutex
	current *session
}

// session is one active run.
type session struct {
	id        string
	acc       *accumulator
	detectors map[string]*quantityDetectors
	anomalies int

	stopFlush chan struct{}
	flushDone chan struct{}
}

// quantityDetectors holds the per-instrument voltage and current detectors.
type quantityDetectors struct {
	voltage *AnomalyDetector
	current *AnomalyDetector
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithSinks attaches persistence sinks. The manager owns them and closes
// them in Close.
func WithSinks(sinks ...Sink) ManagerOption {
	return func(m *Manager) { m.sinks = append(m.sinks, sinks...) }
}

// WithBufferPool substitutes the retention pool shared with other layers.
func WithBufferPool(p *buffer.Pool) ManagerOption {
	return func(m *Manager) { m.buffers = p }
}

// WithFlushInterval overrides the sink auto-save period.
func WithFlushInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.flushInterval = d
		}
	}
}

// WithAnomalyDetection tunes the per-quantity detectors.
func WithAnomalyDetection(window int, threshold float64) ManagerOption {
	return func(m *Manager) {
		m.window = window
		m.threshold = threshold
	}
}

// WithAnomalyFunc registers the anomaly notification callback. It is called
// from Record's goroutine and must not block.
func WithAnomalyFunc(fn AnomalyFunc) ManagerOption {
	return func(m *Manager) { m.onAnomaly = fn }
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:        logger.GetLogger().With("component", "session"),
		flushInterval: defaultFlushInterval,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.buffers == nil {
		m.buffers = buffer.NewPool()
	}

	return m
}

// Buffers returns the retention pool samples are fanned into.
func (m *Manager) Buffers() *buffer.Pool { return m.buffers }

// Start begins a session. Only one session may be active.
func (m *Manager) Start(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return fmt.Errorf("%w: %s", ErrSessionActive, m.current.id)
	}

	s := &session{
		id:        id,
		acc:       newAccumulator(),
		detectors: make(map[string]*quantityDetectors),
		stopFlush: make(chan struct{}),
		flushDone: make(chan struct{}),
	}
	m.current = s

	go m.flushLoop(s)

	m.logger.Info("session started", "id", id)

	return nil
}

// Active reports whether a session is running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current != nil
}

// CurrentID returns the active session identifier, empty when idle.
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ""
	}

	return m.current.id
}

// Record fans one sample out to the buffer pool, the statistics, the
// anomaly detectors and the sinks. Sink failures are logged and do not
// reject the sample; retention and statistics must survive a full disk.
func (m *Manager) Record(s instrument.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}

	m.buffers.Append(s.InstrumentID, s)
	m.current.acc.add(s)
	m.detect(s)

	for _, sink := range m.sinks {
		if err := sink.Write(s); err != nil {
			m.logger.Error("sink write failed", "instrument", s.InstrumentID, "error", err)
		}
	}

	return nil
}

// End stops the session, flushes the sinks and returns the summary.
func (m *Manager) End() (Stats, error) {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s == nil {
		return Stats{}, ErrNoSession
	}

	close(s.stopFlush)
	<-s.flushDone

	for _, sink := range m.sinks {
		if err := sink.Flush(); err != nil {
			m.logger.Error("sink flush failed", "error", err)
		}
	}

	stats := s.acc.stats(s.anomalies)
	m.logger.Info("session ended", "id", s.id,
		"samples", stats.Samples, "anomalies", stats.Anomalies, "duration", stats.Duration)

	return stats, nil
}

// Close ends any active session and closes the sinks. The manager is not
// usable afterwards.
func (m *Manager) Close() error {
	if m.Active() {
		if _, err := m.End(); err != nil && !errors.Is(err, ErrNoSession) {
			return err
		}
	}

	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// detect runs the per-instrument detectors. Caller holds m.mu.
func (m *Manager) detect(s instrument.Sample) {
	cur := m.current

	d, ok := cur.detectors[s.InstrumentID]
	if !ok {
		d = &quantityDetectors{
			voltage: NewAnomalyDetector(m.window, m.threshold),
			current: NewAnomalyDetector(m.window, m.threshold),
		}
		cur.detectors[s.InstrumentID] = d
	}

	if score, bad := d.voltage.Observe(s.Voltage); bad {
		cur.anomalies++
		m.notifyAnomaly(s, "voltage", score)
	}
	if score, bad := d.current.Observe(s.Current); bad {
		cur.anomalies++
		m.notifyAnomaly(s, "current", score)
	}
}

func (m *Manager) notifyAnomaly(s instrument.Sample, quantity string, score float64) {
	m.logger.Warn("anomalous sample",
		"instrument", s.InstrumentID, "quantity", quantity, "zscore", score)

	if m.onAnomaly != nil {
		m.onAnomaly(s, quantity, score)
	}
}

// flushLoop pushes buffered sink rows out periodically while the session
// runs, bounding data loss on a crash.
func (m *Manager) flushLoop(s *session) {
	defer close(s.flushDone)

	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopFlush:
			return
		case <-ticker.C:
			m.mu.Lock()
			for _, sink := range m.sinks {
				if err := sink.Flush(); err != nil {
					m.logger.Error("sink auto-flush failed", "error", err)
				}
			}
			m.mu.Unlock()
		}
	}
}
