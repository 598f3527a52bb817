package device

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/transport"
)

// fixtureLister serves a mutable port list.
type fixtureLister struct {
	mu    sync.Mutex
	ports []PortInfo
	err   error
}

func (f *fixtureLister) List() ([]PortInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	return append([]PortInfo(nil), f.ports...), nil
}

func (f *fixtureLister) set(ports ...PortInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = ports
}

func TestRegistryScan(t *testing.T) {
	ttyUSB0 := PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1A86", PID: "7523"}
	ttyUSB1 := PortInfo{Name: "/dev/ttyUSB1", IsUSB: true}

	t.Run("initial scan records without events", func(t *testing.T) {
		lister := &fixtureLister{}
		lister.set(ttyUSB0)

		r := NewRegistry(WithLister(lister))
		require.NoError(t, r.Start())
		defer r.Stop()

		assert.Len(t, r.Ports(), 1)
		assert.Empty(t, r.Events())
	})

	t.Run("added port is published", func(t *testing.T) {
		lister := &fixtureLister{}
		lister.set(ttyUSB0)

		r := NewRegistry(WithLister(lister))
		require.NoError(t, r.Start())
		defer r.Stop()

		lister.set(ttyUSB0, ttyUSB1)
		require.NoError(t, r.Scan())

		ev := <-r.Events()
		assert.Equal(t, PortAdded, ev.Type)
		assert.Equal(t, "/dev/ttyUSB1", ev.Port.Name)
		assert.Len(t, r.Ports(), 2)
	})

	t.Run("removed port is published", func(t *testing.T) {
		lister := &fixtureLister{}
		lister.set(ttyUSB0, ttyUSB1)

		r := NewRegistry(WithLister(lister))
		require.NoError(t, r.Start())
		defer r.Stop()

		lister.set(ttyUSB0)
		require.NoError(t, r.Scan())

		ev := <-r.Events()
		assert.Equal(t, PortRemoved, ev.Type)
		assert.Equal(t, "/dev/ttyUSB1", ev.Port.Name)
		assert.Len(t, r.Ports(), 1)
	})

	t.Run("unchanged list publishes nothing", func(t *testing.T) {
		lister := &fixtureLister{}
		lister.set(ttyUSB0)

		r := NewRegistry(WithLister(lister))
		require.NoError(t, r.Start())
		defer r.Stop()

		require.NoError(t, r.Scan())
		assert.Empty(t, r.Events())
	})

	t.Run("scan error is surfaced", func(t *testing.T) {
		lister := &fixtureLister{}
		r := NewRegistry(WithLister(lister))
		require.NoError(t, r.Start())
		defer r.Stop()

		lister.err = errors.New("enumerator broken")
		assert.Error(t, r.Scan())
	})
}

func TestRegistryStop(t *testing.T) {
	// Stop must return even when the poll loop never launched.
	awaitStop := func(t *testing.T, r *Registry) {
		t.Helper()

		done := make(chan struct{})
		go func() {
			r.Stop()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Stop did not return")
		}

		_, open := <-r.Events()
		assert.False(t, open, "event channel should be closed after Stop")
	}

	t.Run("after failed start", func(t *testing.T) {
		lister := &fixtureLister{err: errors.New("enumerator broken")}
		r := NewRegistry(WithLister(lister))
		require.Error(t, r.Start())

		awaitStop(t, r)
	})

	t.Run("without start", func(t *testing.T) {
		r := NewRegistry(WithLister(&fixtureLister{}))

		awaitStop(t, r)
	})

	t.Run("is idempotent", func(t *testing.T) {
		lister := &fixtureLister{}
		r := NewRegistry(WithLister(lister))
		require.NoError(t, r.Start())

		r.Stop()
		awaitStop(t, r)
	})
}

func TestIdentify(t *testing.T) {
	t.Run("recognizes a source meter", func(t *testing.T) {
		tr := transport.NewMock("TCPIP0::10.0.0.5::5025::SOCKET", map[string]string{
			"*IDN?":      "KEITHLEY INSTRUMENTS,MODEL 2461,04312345,1.7.12b",
			":SYST:ERR?": "0,\"No error\"",
			"*OPC?":      "1",
		})

		info, err := Identify(tr)
		require.NoError(t, err)

		assert.Equal(t, "2461", info.Model)
		assert.Equal(t, instrument.KindSourceMeter, info.Kind)
		assert.Equal(t, "2461@TCPIP0::10.0.0.5::5025::SOCKET", info.ID)
		assert.Contains(t, info.Identity, "2461")
	})

	t.Run("recognizes a power supply case-insensitively", func(t *testing.T) {
		tr := transport.NewMock("ASRL3::INSTR", map[string]string{
			"*IDN?":      "rigol technologies,dp711,DP7A000001,00.01.05",
			":SYST:ERR?": "0,\"No error\"",
			"*OPC?":      "1",
		})

		info, err := Identify(tr)
		require.NoError(t, err)

		assert.Equal(t, "DP711", info.Model)
		assert.Equal(t, instrument.KindPowerSupply, info.Kind)
	})

	t.Run("unknown talker is listed as unidentified", func(t *testing.T) {
		tr := transport.NewMock("ASRL4::INSTR", map[string]string{
			"*IDN?": "ACME,WIDGET-9,0,1.0",
		})

		info, err := Identify(tr)
		require.NoError(t, err)

		assert.Equal(t, UnidentifiedLabel, info.Model)
		assert.Equal(t, instrument.KindUnknown, info.Kind)
		assert.Equal(t, "unidentified@ASRL4::INSTR", info.ID)
	})

	t.Run("silent port is listed as unidentified", func(t *testing.T) {
		tr := transport.NewMock("ASRL5::INSTR", nil)

		info, err := Identify(tr)
		require.NoError(t, err)

		assert.Equal(t, UnidentifiedLabel, info.Model)
		assert.Equal(t, instrument.KindUnknown, info.Kind)
		assert.Empty(t, info.Identity)
		assert.Equal(t, "unidentified@ASRL5::INSTR", info.ID)
		assert.False(t, tr.Connected(), "identify must close the transport")
	})

	t.Run("classifies from a later reply when identification is broken", func(t *testing.T) {
		tr := transport.NewMock("ASRL6::INSTR", map[string]string{
			":SYST:ERR?": "0,\"No error\"",
		})

		info, err := Identify(tr)
		require.NoError(t, err)

		assert.Equal(t, UnidentifiedLabel, info.Model)
		assert.Equal(t, "0,\"No error\"", info.Identity)
	})

	t.Run("open failure is still an error", func(t *testing.T) {
		tr := transport.NewMock("ASRL7::INSTR", nil)
		tr.OpenErr = transport.ErrUnreachable

		_, err := Identify(tr)
		assert.ErrorIs(t, err, transport.ErrUnreachable)
	})
}

func TestNewDriver(t *testing.T) {
	t.Run("builds drivers for recognized kinds", func(t *testing.T) {
		smu, err := NewDriver(Info{Kind: instrument.KindSourceMeter}, transport.NewMock("x", nil))
		require.NoError(t, err)
		assert.Equal(t, instrument.KindSourceMeter, smu.Kind())

		psu, err := NewDriver(Info{Kind: instrument.KindPowerSupply}, transport.NewMock("x", nil))
		require.NoError(t, err)
		assert.Equal(t, instrument.KindPowerSupply, psu.Kind())
	})

	t.Run("unidentified has no driver", func(t *testing.T) {
		_, err := NewDriver(Info{Kind: instrument.KindUnknown, Model: UnidentifiedLabel}, transport.NewMock("x", nil))
		assert.ErrorIs(t, err, instrument.ErrInvalidFunction)
	})
}
