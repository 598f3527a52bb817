package device

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/logger"
)

// Pool holds the connected instruments keyed by identifier and tracks one
// active selection that single-device operations target. All methods are
// safe for concurrent use.
type Pool struct {
	devices *xsync.MapOf[string, instrument.Instrument]
	logger  logger.Logger

	mu     sync.Mutex
	active string
}

// NewPool creates an empty device pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		devices: xsync.NewMapOf[string, instrument.Instrument](),
		logger:  logger.GetLogger().With("component", "device-pool"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// Connect opens the instrument and adds it to the pool. Connecting an
// identifier already in the pool is a no-op returning the existing member.
// The first successful connect becomes the active device.
func (p *Pool) Connect(id string, inst instrument.Instrument) (instrument.Instrument, error) {
	if existing, ok := p.devices.Load(id); ok {
		return existing, nil
	}

	if err := inst.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", id, err)
	}

	actual, loaded := p.devices.LoadOrStore(id, inst)
	if loaded {
		// Lost the race with a concurrent connect of the same id; release
		// our transport and hand back the winner.
		_ = inst.Disconnect()
		return actual, nil
	}

	p.mu.Lock()
	if p.active == "" {
		p.active = id
	}
	p.mu.Unlock()

	p.logger.Info("device connected", "id", id, "kind", inst.Kind())

	return inst, nil
}

// Disconnect closes the instrument and removes it from the pool. When the
// active device is removed, an arbitrary remaining member is promoted so the
// pool never has members without a selection. Unknown identifiers are a
// no-op.
func (p *Pool) Disconnect(id string) error {
	inst, ok := p.devices.LoadAndDelete(id)
	if !ok {
		return nil
	}

	err := inst.Disconnect()

	p.mu.Lock()
	if p.active == id {
		p.active = ""
		p.devices.Range(func(next string, _ instrument.Instrument) bool {
			p.active = next
			return false
		})
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}

	p.logger.Info("device disconnected", "id", id)

	return nil
}

// DisconnectAll closes every member, tolerating individual failures so one
// wedged device cannot keep the rest connected. The first error is returned
// after all members were attempted.
func (p *Pool) DisconnectAll() error {
	var firstErr error

	p.devices.Range(func(id string, _ instrument.Instrument) bool {
		if err := p.Disconnect(id); err != nil {
			p.logger.Warn("device disconnect failed", "id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		return true
	})

	return firstErr
}

// Get returns the instrument for id.
func (p *Pool) Get(id string) (instrument.Instrument, bool) {
	return p.devices.Load(id)
}

// Active returns the active instrument, or false when the pool is empty.
func (p *Pool) Active() (instrument.Instrument, bool) {
	p.mu.Lock()
	id := p.active
	p.mu.Unlock()

	if id == "" {
		return nil, false
	}

	return p.devices.Load(id)
}

// ActiveID returns the active identifier, empty when the pool is empty.
func (p *Pool) ActiveID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.active
}

// SetActive selects the device targeted by single-device operations. An
// identifier not in the pool leaves the selection unchanged.
func (p *Pool) SetActive(id string) bool {
	if _, ok := p.devices.Load(id); !ok {
		return false
	}

	p.mu.Lock()
	p.active = id
	p.mu.Unlock()

	return true
}

// IDs returns the member identifiers in no particular order.
func (p *Pool) IDs() []string {
	ids := make([]string, 0, p.devices.Size())
	p.devices.Range(func(id string, _ instrument.Instrument) bool {
		ids = append(ids, id)
		return true
	})

	return ids
}

// Size returns the member count.
func (p *Pool) Size() int { return p.devices.Size() }
