package worker

import (
	"fmt"
	"time"

	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/transport"
)

// ConnectionParams describes the network target of a connect task. Addr is
// used for the reachability probe; the instrument carries its own transport
// for the protocol phase.
type ConnectionParams struct {
	// Addr is the "host:port" probed before the protocol connect. Empty
	// skips the probe phase.
	Addr string
	// ProbeTimeout bounds the raw reachability check. Zero selects
	// transport.DefaultProbeTimeout.
	ProbeTimeout time.Duration
}

// ConnectTask establishes one instrument connection: an optional raw
// reachability probe, then the protocol-level connect with identity
// verification. It completes after a single pass.
type ConnectTask struct {
	inst   instrument.Instrument
	params ConnectionParams
}

// NewConnectTask returns a runner that connects inst once.
func NewConnectTask(inst instrument.Instrument, params ConnectionParams) *ConnectTask {
	return &ConnectTask{inst: inst, params: params}
}

func (t *ConnectTask) Setup(e *Engine) error { return nil }

// ExecuteOnce runs the probe and connect phases, checking for a pending stop
// between them so cancellation lands within one probe timeout.
func (t *ConnectTask) ExecuteOnce(e *Engine) (bool, error) {
	if t.params.Addr != "" {
		if err := transport.Probe(t.params.Addr, t.params.ProbeTimeout); err != nil {
			return false, fmt.Errorf("probe %s: %w", t.params.Addr, err)
		}
	}

	if e.StopRequested() {
		return false, nil
	}

	if err := t.inst.Connect(); err != nil {
		return false, fmt.Errorf("connect %s: %w", t.inst.Name(), err)
	}

	identity, err := t.inst.Identity()
	if err != nil {
		return false, fmt.Errorf("identify %s: %w", t.inst.Name(), err)
	}

	e.EmitEvent(Event{Type: EventConnected, Identity: identity})

	return false, nil
}

func (t *ConnectTask) Cleanup(e *Engine) {}

// ReconnectTask re-establishes a dropped connection with a bounded number of
// attempts separated by a fixed delay. Exhausting the budget emits
// EventMaxAttempts and completes the task; it is a distinct signal, not a
// failure, so the consuming layer can decide whether to re-arm.
type ReconnectTask struct {
	inst        instrument.Instrument
	maxAttempts int
	delay       time.Duration
}

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = 2 * time.Second
)

// NewReconnectTask returns a runner that retries inst.Connect up to
// maxAttempts times. Non-positive arguments select the defaults.
func NewReconnectTask(inst instrument.Instrument, maxAttempts int, delay time.Duration) *ReconnectTask {
	if maxAttempts <= 0 {
		maxAttempts = defaultReconnectAttempts
	}
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	return &ReconnectTask{inst: inst, maxAttempts: maxAttempts, delay: delay}
}

func (t *ReconnectTask) Setup(e *Engine) error { return nil }

// ExecuteOnce performs one attempt: tear down any half-open state, then a
// full connect. One attempt per loop iteration keeps pause and stop
// responsive between retries.
func (t *ReconnectTask) ExecuteOnce(e *Engine) (bool, error) {
	attempt := int(e.Operations()) + 1
	e.EmitEvent(Event{Type: EventReconnectAttempt, Attempt: attempt})

	// Errors here are expected on a dead link; the disconnect just releases
	// local resources before reopening.
	_ = t.inst.Disconnect()

	err := t.inst.Connect()
	if err == nil {
		identity, idErr := t.inst.Identity()
		if idErr == nil {
			e.EmitEvent(Event{Type: EventConnected, Identity: identity})
			return false, nil
		}
		err = idErr
	}

	if attempt >= t.maxAttempts {
		e.EmitEvent(Event{
			Type: EventMaxAttempts,
			Err:  fmt.Errorf("%w after %d attempts: %v", ErrMaxAttemptsReached, attempt, err),
			Kind: classifyError(err),
		})

		return false, nil
	}

	if !sleepInterruptible(e, t.delay) {
		return false, nil
	}

	return true, nil
}

func (t *ReconnectTask) Cleanup(e *Engine) {}
