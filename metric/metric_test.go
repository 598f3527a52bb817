package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-scpi/buffer"
	"github.com/arloliu/go-scpi/device"
	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/session"
	"github.com/arloliu/go-scpi/worker"
)

type nopRunner struct{ ops int }

func (r *nopRunner) Setup(e *worker.Engine) error { return nil }

func (r *nopRunner) ExecuteOnce(e *worker.Engine) (bool, error) {
	r.ops++
	return r.ops < 2, nil
}

func (r *nopRunner) Cleanup(e *worker.Engine) {}

func TestObserveEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewBridge(reg)

	e := worker.NewEngine("bench", &nopRunner{})
	cs := b.ObserveEngine(e)
	require.Len(t, cs, 3)

	require.NoError(t, e.Start())
	<-e.Done()

	assert.Equal(t, 2.0, testutil.ToFloat64(cs[0]))
	assert.Equal(t, 0.0, testutil.ToFloat64(cs[1]))
	assert.Equal(t, float64(worker.Completed), testutil.ToFloat64(cs[2]))
}

func TestObserveDevicePool(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewBridge(reg)

	p := device.NewPool()
	cs := b.ObserveDevicePool(p)
	require.Len(t, cs, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(cs[0]))

	_, err := p.Connect("a", instrument.NewMockSourceMeter(instrument.Measurement{}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(cs[0]))
}

func TestObserveBufferPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewBridge(reg)

	p := buffer.NewPool(buffer.WithCapacity(10))
	cs := b.ObserveBufferPool(p)
	require.Len(t, cs, 2)
	assert.Equal(t, 0.0, testutil.ToFloat64(cs[1]))

	p.Append("a", instrument.NewSample("a", 1, 1))
	assert.Equal(t, 1.0, testutil.ToFloat64(cs[1]))
	assert.Greater(t, testutil.ToFloat64(cs[0]), 0.0)
}

func TestObserveSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewBridge(reg)

	m := session.NewManager()
	cs := b.ObserveSession(m)
	require.Len(t, cs, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(cs[0]))

	require.NoError(t, m.Start("run"))
	assert.Equal(t, 1.0, testutil.ToFloat64(cs[0]))

	_, err := m.End()
	require.NoError(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(cs[0]))
}
