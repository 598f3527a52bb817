// Package metric exposes the control core's counters as Prometheus
// collectors. Components keep their own atomic counters; this package only
// bridges them, so disabling metrics costs nothing at the hot paths.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/go-scpi/buffer"
	"github.com/arloliu/go-scpi/device"
	"github.com/arloliu/go-scpi/session"
	"github.com/arloliu/go-scpi/worker"
)

// Bridge registers collectors for core components on one registerer.
type Bridge struct {
	reg prometheus.Registerer
}

// NewBridge creates a bridge registering on reg, or on the default
// registerer when reg is nil.
func NewBridge(reg prometheus.Registerer) *Bridge {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Bridge{reg: reg}
}

// ObserveEngine exports a task engine's operation and error counters plus
// its lifecycle state, labeled with the task name.
func (b *Bridge) ObserveEngine(e *worker.Engine) []prometheus.Collector {
	labels := prometheus.Labels{"task": e.Name()}

	ops := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        "scpi_task_operations_total",
		Help:        "Completed task operations.",
		ConstLabels: labels,
	}, func() float64 { return float64(e.Operations()) })

	errs := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        "scpi_task_errors_total",
		Help:        "Task operation errors.",
		ConstLabels: labels,
	}, func() float64 { return float64(e.ErrorCount()) })

	status := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "scpi_task_status",
		Help:        "Task lifecycle state (0 idle, 1 running, 2 paused, 3 stopping, 4 failed, 5 completed).",
		ConstLabels: labels,
	}, func() float64 { return float64(e.Status()) })

	return b.register(ops, errs, status)
}

// ObserveDevicePool exports the connected-device count.
func (b *Bridge) ObserveDevicePool(p *device.Pool) []prometheus.Collector {
	size := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "scpi_devices_connected",
		Help: "Instruments currently connected in the device pool.",
	}, func() float64 { return float64(p.Size()) })

	return b.register(size)
}

// ObserveBufferPool exports the retention footprint estimate and the ring
// count.
func (b *Bridge) ObserveBufferPool(p *buffer.Pool) []prometheus.Collector {
	mem := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "scpi_buffer_memory_bytes",
		Help: "Estimated memory retained by sample buffers.",
	}, func() float64 { return float64(p.EstimateMemory()) })

	rings := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "scpi_buffer_rings",
		Help: "Per-instrument sample buffers currently allocated.",
	}, func() float64 { return float64(len(p.IDs())) })

	return b.register(mem, rings)
}

// ObserveSession exports whether a measurement session is active.
func (b *Bridge) ObserveSession(m *session.Manager) []prometheus.Collector {
	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "scpi_session_active",
		Help: "1 while a measurement session is running.",
	}, func() float64 {
		if m.Active() {
			return 1
		}
		return 0
	})

	return b.register(active)
}

func (b *Bridge) register(cs ...prometheus.Collector) []prometheus.Collector {
	for _, c := range cs {
		b.reg.MustRegister(c)
	}

	return cs
}
