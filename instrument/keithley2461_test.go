package instrument

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-scpi/transport"
)

const keithleyIDN = "KEITHLEY INSTRUMENTS,MODEL 2461,04312345,1.7.12b"

// newConnected2461 returns a driver connected through a scripted mock
// transport.
func newConnected2461(t *testing.T, extra map[string]string) (*Keithley2461, *transport.Mock) {
	t.Helper()

	replies := map[string]string{
		"*IDN?":      keithleyIDN,
		":SYST:ERR?": "0,\"No error\"",
	}
	for k, v := range extra {
		replies[k] = v
	}

	tr := transport.NewMock("TCPIP0::10.0.0.5::5025::SOCKET", replies)
	k := NewKeithley2461(tr)
	require.NoError(t, k.Connect())

	return k, tr
}

func TestKeithley2461Connect(t *testing.T) {
	t.Run("clears status and verifies identity", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		assert.True(t, k.Connected())
		sent := tr.Sent()
		require.NotEmpty(t, sent)
		assert.Equal(t, "*CLS", sent[0])
		assert.Contains(t, sent, "*IDN?")

		idn, err := k.Identity()
		require.NoError(t, err)
		assert.Equal(t, keithleyIDN, idn)
	})

	t.Run("connect twice is a no-op", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		before := len(tr.Sent())
		require.NoError(t, k.Connect())
		assert.Equal(t, before, len(tr.Sent()))
	})

	t.Run("wrong device is rejected and closed", func(t *testing.T) {
		tr := transport.NewMock("TCPIP0::10.0.0.9::5025::SOCKET", map[string]string{
			"*IDN?": "RIGOL TECHNOLOGIES,DP711,X,1.0",
		})
		k := NewKeithley2461(tr)

		err := k.Connect()
		require.ErrorIs(t, err, ErrIdentityMismatch)
		assert.False(t, tr.Connected())
	})

	t.Run("open failure propagates", func(t *testing.T) {
		tr := transport.NewMock("x", nil)
		tr.OpenErr = transport.ErrUnreachable

		err := NewKeithley2461(tr).Connect()
		assert.ErrorIs(t, err, transport.ErrUnreachable)
	})
}

func TestKeithley2461Source(t *testing.T) {
	t.Run("voltage with current limit", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		require.NoError(t, k.SetVoltage(2.5, "100mA"))

		sent := tr.Sent()
		assert.Contains(t, sent, ":SOUR:VOLT 2.5")
		assert.Contains(t, sent, ":SOUR:VOLT:ILIM 0.1")
	})

	t.Run("voltage without limit leaves ilim alone", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		require.NoError(t, k.SetVoltage("500mV", nil))

		sent := tr.Sent()
		assert.Contains(t, sent, ":SOUR:VOLT 0.5")
		for _, cmd := range sent {
			assert.NotContains(t, cmd, "ILIM")
		}
	})

	t.Run("current with voltage limit", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		require.NoError(t, k.SetCurrent("10uA", 5.0))

		sent := tr.Sent()
		assert.Contains(t, sent, ":SOUR:CURR 1e-05")
		assert.Contains(t, sent, ":SOUR:CURR:VLIM 5")
	})

	t.Run("compliance parameters", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		require.NoError(t, k.SetCompliance("1mA", "current"))
		require.NoError(t, k.SetCompliance(21.0, "voltage"))

		sent := tr.Sent()
		assert.Contains(t, sent, ":SOUR:VOLT:ILIM 0.001")
		assert.Contains(t, sent, ":SOUR:CURR:VLIM 21")

		assert.ErrorIs(t, k.SetCompliance(1.0, "power"), ErrInvalidFunction)
	})

	t.Run("source function", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		require.NoError(t, k.SetSourceFunction("volt"))
		require.NoError(t, k.SetSourceFunction("CURRENT"))
		assert.ErrorIs(t, k.SetSourceFunction("RES"), ErrInvalidFunction)

		sent := tr.Sent()
		assert.Contains(t, sent, ":SOUR:FUNC VOLT")
		assert.Contains(t, sent, ":SOUR:FUNC CURR")
	})

	t.Run("garbage level is rejected", func(t *testing.T) {
		k, _ := newConnected2461(t, nil)

		assert.ErrorIs(t, k.SetVoltage("lots", nil), ErrValueOutOfRange)
	})

	t.Run("disconnected driver rejects commands", func(t *testing.T) {
		k := NewKeithley2461(transport.NewMock("x", nil))

		assert.ErrorIs(t, k.SetVoltage(1.0, nil), ErrNotConnected)
		_, err := k.MeasureVoltage()
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}

func TestKeithley2461Measure(t *testing.T) {
	t.Run("batched measure parses four fields", func(t *testing.T) {
		k, tr := newConnected2461(t, map[string]string{
			measureAllQuery: "+5.001E+00;+2.500E-01;+2.0004E+01;+1.25E+00",
		})

		m, err := k.MeasureAll()
		require.NoError(t, err)

		assert.InDelta(t, 5.001, m.Voltage, 1e-9)
		assert.InDelta(t, 0.25, m.Current, 1e-9)
		assert.InDelta(t, 20.004, m.Resistance, 1e-9)
		assert.InDelta(t, 1.25, m.Power, 1e-9)

		// exactly one round trip past the connect handshake
		var measureQueries int
		for _, cmd := range tr.Sent() {
			if cmd == measureAllQuery {
				measureQueries++
			}
		}
		assert.Equal(t, 1, measureQueries)
	})

	t.Run("wrong field count falls back to individual queries", func(t *testing.T) {
		k, _ := newConnected2461(t, map[string]string{
			measureAllQuery: "+5.0E+00;+2.5E-01", // two fields instead of four
			":MEAS:VOLT?":   "5.0",
			":MEAS:CURR?":   "0.25",
			":MEAS:RES?":    "20.0",
			":MEAS:POW?":    "1.25",
		})

		m, err := k.MeasureAll()
		require.NoError(t, err)
		assert.Equal(t, 5.0, m.Voltage)
		assert.Equal(t, 0.25, m.Current)
		assert.Equal(t, 20.0, m.Resistance)
		assert.Equal(t, 1.25, m.Power)
	})

	t.Run("non-numeric reply falls back too", func(t *testing.T) {
		k, _ := newConnected2461(t, map[string]string{
			measureAllQuery: "ERROR;ERROR;ERROR;ERROR",
			":MEAS:VOLT?":   "1.0",
			":MEAS:CURR?":   "0.5",
			":MEAS:RES?":    "2.0",
			":MEAS:POW?":    "0.5",
		})

		m, err := k.MeasureAll()
		require.NoError(t, err)
		assert.Equal(t, 1.0, m.Voltage)
	})

	t.Run("individual quantities", func(t *testing.T) {
		k, _ := newConnected2461(t, map[string]string{
			":MEAS:VOLT?": "+4.9998E+00",
			":MEAS:RES?":  "1.0E+03",
		})

		v, err := k.MeasureVoltage()
		require.NoError(t, err)
		assert.InDelta(t, 4.9998, v, 1e-9)

		r, err := k.MeasureResistance()
		require.NoError(t, err)
		assert.Equal(t, 1000.0, r)
	})

	t.Run("malformed numeric reply", func(t *testing.T) {
		k, _ := newConnected2461(t, map[string]string{
			":MEAS:VOLT?": "garbage",
		})

		_, err := k.MeasureVoltage()
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestKeithley2461Output(t *testing.T) {
	k, tr := newConnected2461(t, map[string]string{":OUTP?": "1"})

	require.NoError(t, k.OutputOn())
	require.NoError(t, k.OutputOff())

	on, err := k.OutputState()
	require.NoError(t, err)
	assert.True(t, on)

	sent := tr.Sent()
	assert.Contains(t, sent, ":OUTP ON")
	assert.Contains(t, sent, ":OUTP OFF")

	t.Run("malformed state", func(t *testing.T) {
		tr.SetReply(":OUTP?", "MAYBE")
		_, err := k.OutputState()
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestKeithley2461Extras(t *testing.T) {
	t.Run("beep", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		require.NoError(t, k.Beep(2000, 100*time.Millisecond))
		assert.Contains(t, tr.Sent(), ":SYST:BEEP 2000, 0.1")
	})

	t.Run("measurement speed bounds", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		require.NoError(t, k.SetMeasurementSpeed(0.01))
		assert.Contains(t, tr.Sent(), ":SENS:VOLT:NPLC 0.01")
		assert.Contains(t, tr.Sent(), ":SENS:CURR:NPLC 0.01")

		assert.ErrorIs(t, k.SetMeasurementSpeed(0.001), ErrValueOutOfRange)
		assert.ErrorIs(t, k.SetMeasurementSpeed(11), ErrValueOutOfRange)
	})

	t.Run("auto range programs source and sense", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		require.NoError(t, k.SetAutoRange(true))

		sent := tr.Sent()
		assert.Contains(t, sent, ":SENS:VOLT:RANG:AUTO ON")
		assert.Contains(t, sent, ":SENS:CURR:RANG:AUTO ON")
		assert.Contains(t, sent, ":SOUR:VOLT:RANG:AUTO ON")
		assert.Contains(t, sent, ":SOUR:CURR:RANG:AUTO ON")
	})

	t.Run("measure function", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)

		require.NoError(t, k.SetMeasureFunction("resistance"))
		assert.Contains(t, tr.Sent(), ":SENS:FUNC \"RES\"")

		assert.ErrorIs(t, k.SetMeasureFunction("impedance"), ErrInvalidFunction)
	})

	t.Run("check errors drains the queue", func(t *testing.T) {
		k, tr := newConnected2461(t, nil)
		tr.SetReply(":SYST:ERR?", "-113,\"Undefined header\"")

		faults, err := k.CheckErrors()
		require.NoError(t, err)
		require.NotEmpty(t, faults)
		assert.Contains(t, faults[0], "-113")
		// bounded polling: the queue never reports empty here
		assert.Len(t, faults, 20)
	})
}

func TestKeithley2461Disconnect(t *testing.T) {
	k, tr := newConnected2461(t, nil)

	require.NoError(t, k.Disconnect())
	assert.False(t, k.Connected())
	assert.False(t, tr.Connected())

	t.Run("disconnect twice is a no-op", func(t *testing.T) {
		assert.NoError(t, k.Disconnect())
	})

	t.Run("identity cache is cleared", func(t *testing.T) {
		_, err := k.Identity()
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}
