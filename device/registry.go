// Package device tracks what is attached to the bench: a PortRegistry that
// watches serial ports appearing and disappearing, and a DevicePool that
// holds the connected instruments and the active selection.
package device

import (
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial/enumerator"

	"github.com/arloliu/go-scpi/logger"
)

// PortInfo describes one serial port seen by the registry.
type PortInfo struct {
	// Name is the OS port name, e.g. "/dev/ttyUSB0" or "COM3".
	Name string
	// Description is the product string when the enumerator provides one.
	Description string
	// IsUSB reports whether the port sits on a USB adapter.
	IsUSB bool
	// VID and PID are the USB vendor/product identifiers, empty otherwise.
	VID string
	PID string
	// SerialNumber is the USB serial number, empty otherwise.
	SerialNumber string
}

// PortEventType tags registry notifications.
type PortEventType int

const (
	// PortAdded indicates a port appeared since the previous scan.
	PortAdded PortEventType = iota
	// PortRemoved indicates a port disappeared since the previous scan.
	PortRemoved
)

func (t PortEventType) String() string {
	if t == PortAdded {
		return "added"
	}

	return "removed"
}

// PortEvent is one hotplug notification.
type PortEvent struct {
	Type PortEventType
	Port PortInfo
	Time time.Time
}

// PortLister enumerates the serial ports currently present. The production
// implementation wraps the platform enumerator; tests substitute a fixture.
type PortLister interface {
	List() ([]PortInfo, error)
}

// SystemPortLister enumerates real ports through the platform serial stack.
type SystemPortLister struct{}

func (SystemPortLister) List() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			Description:  d.Product,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
		})
	}

	return ports, nil
}

// defaultScanInterval is the hotplug poll period.
const defaultScanInterval = 2 * time.Second

// Registry polls the port lister and publishes add/remove events. A port
// vanishing while an instrument held it is how unexpected disconnects
// surface, so consumers treat PortRemoved for an in-use port as a broken
// connection.
type Registry struct {
	lister   PortLister
	logger   logger.Logger
	interval time.Duration

	mu    sync.RWMutex
	known map[string]PortInfo

	events chan PortEvent
	stop   chan struct{}
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	launched  atomic.Bool
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithLister substitutes the port enumerator.
func WithLister(l PortLister) RegistryOption {
	return func(r *Registry) { r.lister = l }
}

// WithScanInterval overrides the poll period.
func WithScanInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry. It does not scan until Start.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		lister:   SystemPortLister{},
		logger:   logger.GetLogger().With("component", "port-registry"),
		interval: defaultScanInterval,
		known:    make(map[string]PortInfo),
		events:   make(chan PortEvent, 32),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start performs an initial scan, then polls in the background. The first
// scan's ports are recorded without events; only changes are published.
func (r *Registry) Start() error {
	var err error
	r.startOnce.Do(func() {
		ports, listErr := r.lister.List()
		if listErr != nil {
			err = listErr
			return
		}

		r.mu.Lock()
		for _, p := range ports {
			r.known[p.Name] = p
		}
		r.mu.Unlock()

		r.launched.Store(true)
		go r.loop()
	})

	return err
}

// Stop ends the background poll and closes the event channel. Safe to call
// when Start was never called, or when its initial scan failed.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		if r.launched.Load() {
			<-r.done
			return
		}
		// The loop never ran, so nothing else will release consumers.
		close(r.events)
		close(r.done)
	})
}

// Events returns the hotplug notification stream.
func (r *Registry) Events() <-chan PortEvent { return r.events }

// Ports returns the ports present at the last scan.
func (r *Registry) Ports() []PortInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PortInfo, 0, len(r.known))
	for _, p := range r.known {
		out = append(out, p)
	}

	return out
}

// Scan diffs the current port list against the known set and publishes the
// changes. The poll loop calls it on every tick; tests call it directly.
func (r *Registry) Scan() error {
	ports, err := r.lister.List()
	if err != nil {
		return err
	}

	current := make(map[string]PortInfo, len(ports))
	for _, p := range ports {
		current[p.Name] = p
	}

	now := time.Now()

	r.mu.Lock()
	var changes []PortEvent
	for name, p := range current {
		if _, ok := r.known[name]; !ok {
			changes = append(changes, PortEvent{Type: PortAdded, Port: p, Time: now})
		}
	}
	for name, p := range r.known {
		if _, ok := current[name]; !ok {
			changes = append(changes, PortEvent{Type: PortRemoved, Port: p, Time: now})
		}
	}
	r.known = current
	r.mu.Unlock()

	for _, ev := range changes {
		r.logger.Info("serial port "+ev.Type.String(), "port", ev.Port.Name)
		select {
		case r.events <- ev:
		default:
			r.logger.Warn("port event dropped, consumer too slow", "port", ev.Port.Name)
		}
	}

	return nil
}

func (r *Registry) loop() {
	defer close(r.done)
	defer close(r.events)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.Scan(); err != nil {
				r.logger.Warn("port scan failed", "error", err)
			}
		}
	}
}
