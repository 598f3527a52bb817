// Package worker provides the task framework every long-running instrument
// operation is built on: a generic state-machine engine that runs a Runner on
// its own goroutine, plus the connect, reconnect and measurement tasks.
//
// The engine is observable only through its typed event channel; no shared
// mutable state is exposed. The control layer never performs instrument I/O
// itself — it starts an engine and consumes events.
package worker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-scpi/internal/pool"
	"github.com/arloliu/go-scpi/logger"
)

const (
	// defaultStopTimeout bounds how long Stop blocks for the run loop to wind
	// down. A loop stuck in blocking I/O past this window is logged as a leak
	// risk and abandoned, not escalated.
	defaultStopTimeout = 5 * time.Second

	// defaultStartTimeout bounds the goroutine startup handshake.
	defaultStartTimeout = 5 * time.Second

	// pausePoll is the sleep interval of the paused loop.
	pausePoll = 100 * time.Millisecond

	// defaultEventBuffer is the event channel capacity. Overflow drops the
	// oldest event so a slow consumer can never block instrument I/O.
	defaultEventBuffer = 64
)

// Runner supplies the three operations a task implements. The engine owns
// the loop; the runner owns the semantics.
type Runner interface {
	// Setup performs one-time initialization. An error aborts the task and
	// moves it to Failed.
	Setup(e *Engine) error
	// ExecuteOnce performs one unit of work. Returning false stops the loop
	// without error (natural completion); an error moves the task to Failed.
	ExecuteOnce(e *Engine) (bool, error)
	// Cleanup is invoked exactly once on every exit path, including after a
	// panic in Setup or ExecuteOnce.
	Cleanup(e *Engine)
}

// Engine drives a Runner through the task state machine on a dedicated
// goroutine.
type Engine struct {
	name   string
	runner Runner
	logger logger.Logger

	status *statusMgr
	events chan Event
	done   chan struct{}

	stopFlag  atomic.Bool
	pauseFlag atomic.Bool
	launched  atomic.Bool

	opCount  atomic.Uint64
	errCount atomic.Uint64

	stopTimeout time.Duration
	dropped     atomic.Uint64

	emitMu sync.Mutex
	closed bool
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithStopTimeout overrides the bounded Stop wait.
func WithStopTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.stopTimeout = d
		}
	}
}

// WithEventBuffer overrides the event channel capacity.
func WithEventBuffer(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.events = make(chan Event, n)
		}
	}
}

// NewEngine creates an engine for the given runner. The engine starts in
// Idle and does nothing until Start.
func NewEngine(name string, runner Runner, opts ...EngineOption) *Engine {
	e := &Engine{
		name:        name,
		runner:      runner,
		logger:      logger.GetLogger().With("task", name),
		status:      newStatusMgr(),
		events:      make(chan Event, defaultEventBuffer),
		done:        make(chan struct{}),
		stopTimeout: defaultStopTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.status.handlers = append(e.status.handlers, func(prev, next Status) {
		e.emit(Event{Type: EventStateChanged, Prev: prev, Status: next})
	})

	return e
}

// Name returns the task name.
func (e *Engine) Name() string { return e.name }

// Status returns the current lifecycle state.
func (e *Engine) Status() Status { return e.status.Status() }

// Events returns the engine's event stream. The channel is closed after the
// final completion event, on every exit path.
func (e *Engine) Events() <-chan Event { return e.events }

// Done is closed when the task goroutine has fully exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Operations returns the number of completed ExecuteOnce calls.
func (e *Engine) Operations() uint64 { return e.opCount.Load() }

// ErrorCount returns the number of operation errors observed.
func (e *Engine) ErrorCount() uint64 { return e.errCount.Load() }

// Start launches the task goroutine. It returns ErrInvalidTransition unless
// the engine is Idle, and blocks until the goroutine has actually started.
func (e *Engine) Start() error {
	if !e.status.transition(Running) {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, e.Status())
	}

	e.launched.Store(true)
	started := make(chan struct{}, 1)

	go func() {
		started <- struct{}{}
		e.run()
	}()

	timer := pool.GetTimer(defaultStartTimeout)
	defer pool.PutTimer(timer)

	select {
	case <-started:
		return nil
	case <-timer.C:
		return ErrStartTimeout
	}
}

// Pause suspends the run loop between operations. A no-op unless Running.
func (e *Engine) Pause() {
	if e.status.transition(Paused) {
		e.pauseFlag.Store(true)
	}
}

// Resume continues a paused loop. A no-op unless Paused.
func (e *Engine) Resume() {
	if e.status.transition(Running) {
		e.pauseFlag.Store(false)
	}
}

// Stop requests cooperative cancellation and blocks until the loop exits or
// the stop timeout elapses. The flag is checked at loop boundaries; an
// in-flight blocking I/O call is not interrupted, so worst-case latency is
// one I/O timeout.
func (e *Engine) Stop() {
	e.stopFlag.Store(true)
	e.pauseFlag.Store(false)

	if !e.launched.Load() {
		return
	}

	// Best effort: the run loop drives Stopping->Idle itself, so a loop that
	// already exited leaves nothing to transition here.
	e.status.transition(Stopping)

	timer := pool.GetTimer(e.stopTimeout)
	defer pool.PutTimer(timer)

	select {
	case <-e.done:
	case <-timer.C:
		e.logger.Warn("task did not stop within timeout, goroutine may leak",
			"timeout", e.stopTimeout)
	}
}

// StopRequested reports whether a stop is pending. Runners check it before
// long blocking phases.
func (e *Engine) StopRequested() bool { return e.stopFlag.Load() }

// run is the engine loop: setup, execute until exhaustion/stop/failure,
// cleanup exactly once, final state transition.
func (e *Engine) run() {
	defer close(e.done)
	defer e.closeEvents()

	cleaned := false
	cleanup := func() {
		if !cleaned {
			cleaned = true
			e.runner.Cleanup(e)
		}
	}
	defer cleanup()

	defer func() {
		if r := recover(); r != nil {
			e.errCount.Add(1)
			e.logger.Error("panic in task", "panic", r)
			e.emit(Event{Type: EventError, Err: fmt.Errorf("panic: %v", r), Kind: ErrorKindUsage})
			cleanup()
			e.fail()
		}
	}()

	e.logger.Debug("task started")

	if err := e.runner.Setup(e); err != nil {
		e.errCount.Add(1)
		e.logger.Error("task setup failed", "error", err)
		e.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %w", ErrSetupFailed, err), Kind: ErrorKindSetup})
		e.fail()

		return
	}

	for !e.stopFlag.Load() {
		if e.pauseFlag.Load() {
			time.Sleep(pausePoll)
			continue
		}

		cont, err := e.runner.ExecuteOnce(e)
		if err != nil {
			e.errCount.Add(1)
			e.logger.Error("task operation failed", "error", err, "operations", e.opCount.Load())
			e.emit(Event{Type: EventError, Err: err, Kind: classifyError(err)})
			e.fail()

			return
		}

		e.opCount.Add(1)

		if !cont {
			break
		}
	}

	cleanup()

	if e.stopFlag.Load() {
		e.status.transition(Stopping)
		e.status.transition(Idle)
		e.logger.Debug("task stopped", "operations", e.opCount.Load())

		return
	}

	e.emit(Event{Type: EventCompleted, Operations: e.opCount.Load(), Errors: e.errCount.Load()})
	e.status.transition(Completed)
	e.logger.Debug("task completed", "operations", e.opCount.Load())
}

// fail transitions to Failed. The engine may be Paused when the failure
// surfaces; routing through Running keeps the edge table closed.
func (e *Engine) fail() {
	if !e.status.transition(Failed) {
		e.status.transition(Running)
		e.status.transition(Failed)
	}
}

// EmitProgress publishes completion percent, clamped to [0,100]; -1 means
// indeterminate.
func (e *Engine) EmitProgress(p int) {
	if p >= 0 {
		if p > 100 {
			p = 100
		}
	} else {
		p = -1
	}

	e.emit(Event{Type: EventProgress, Progress: p})
}

// EmitEvent publishes an arbitrary event on the engine stream.
func (e *Engine) EmitEvent(ev Event) { e.emit(ev) }

// emit publishes without blocking: when the buffer is full the oldest event
// is dropped so instrument I/O never waits on a slow consumer. Events raised
// after the stream closed are discarded.
func (e *Engine) emit(ev Event) {
	ev.Task = e.name
	ev.Time = time.Now()

	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	if e.closed {
		e.dropped.Add(1)
		return
	}

	select {
	case e.events <- ev:
		return
	default:
	}

	select {
	case <-e.events:
		e.dropped.Add(1)
	default:
	}

	select {
	case e.events <- ev:
	default:
		e.dropped.Add(1)
	}
}

func (e *Engine) closeEvents() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.closed = true
	close(e.events)
}
