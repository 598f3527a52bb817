package worker

import (
	"sync"
	"sync/atomic"
)

// Status represents the lifecycle stage of a task engine.
type Status uint32

// Task lifecycle states. Transitions are only allowed along the edges:
//
//	Idle    --start-->  Running
//	Running --pause-->  Paused
//	Paused  --resume--> Running
//	Running|Paused --stop--> Stopping --> Idle
//	Running --failure-->    Failed
//	Running --exhausted-->  Completed
const (
	// Idle indicates the task has not started, or was stopped cleanly.
	Idle Status = iota
	// Running indicates the run loop is executing operations.
	Running
	// Paused indicates the run loop is holding between operations.
	Paused
	// Stopping indicates a stop was requested and the loop is winding down.
	Stopping
	// Failed is terminal: setup or an operation reported an error.
	Failed
	// Completed is terminal: the operation stream was exhausted naturally.
	Completed
)

// String returns the lower-case state name.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state can never transition again except
// through a fresh engine.
func (s Status) IsTerminal() bool { return s == Failed || s == Completed }

// validNext encodes the legal transition edges.
func validNext(from, to Status) bool {
	switch from {
	case Idle:
		return to == Running
	case Running:
		return to == Paused || to == Stopping || to == Failed || to == Completed
	case Paused:
		return to == Running || to == Stopping
	case Stopping:
		// a failure surfacing while the loop winds down still wins, so the
		// consumer sees the cause rather than a clean Idle
		return to == Idle || to == Failed
	default: // Failed, Completed
		return false
	}
}

// StatusChangeHandler is invoked, blocking, on every state transition.
type StatusChangeHandler func(prev, next Status)

// statusMgr guards the task status with an atomic value; the mutex serializes
// transitions so handlers observe them in order.
type statusMgr struct {
	mu       sync.Mutex
	state    atomic.Uint32
	handlers []StatusChangeHandler
}

func newStatusMgr(handlers ...StatusChangeHandler) *statusMgr {
	m := &statusMgr{handlers: handlers}
	m.state.Store(uint32(Idle))

	return m
}

func (m *statusMgr) Status() Status {
	return Status(m.state.Load())
}

// transition moves to next if the edge is legal. It returns false, without
// side effects, for an illegal edge; a no-op transition to the current state
// also returns false.
func (m *statusMgr) transition(next Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.Status()
	if cur == next || !validNext(cur, next) {
		return false
	}

	m.state.Store(uint32(next))

	for _, h := range m.handlers {
		if h != nil {
			h(cur, next)
		}
	}

	return true
}
