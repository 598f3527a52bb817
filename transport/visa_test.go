package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResource(t *testing.T) {
	t.Run("tcpip socket with default port", func(t *testing.T) {
		tr, err := ParseResource("TCPIP0::192.168.1.50::SOCKET", 0, time.Second)
		require.NoError(t, err)

		tcp, ok := tr.(*TCP)
		require.True(t, ok)
		assert.Equal(t, "192.168.1.50:5025", tcp.Endpoint())
	})

	t.Run("tcpip socket with explicit port", func(t *testing.T) {
		tr, err := ParseResource("TCPIP0::smu.lab.local::5555::SOCKET", 0, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "smu.lab.local:5555", tr.Endpoint())
	})

	t.Run("tcpip class is case insensitive", func(t *testing.T) {
		tr, err := ParseResource("tcpip::10.0.0.7::socket", 0, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.7:5025", tr.Endpoint())
	})

	t.Run("tcpip instr rejected", func(t *testing.T) {
		_, err := ParseResource("TCPIP0::192.168.1.50::INSTR", 0, time.Second)
		assert.ErrorIs(t, err, ErrInvalidResource)
	})

	t.Run("tcpip bad port rejected", func(t *testing.T) {
		_, err := ParseResource("TCPIP0::host::pppp::SOCKET", 0, time.Second)
		assert.ErrorIs(t, err, ErrInvalidResource)
	})

	t.Run("asrl numeric index maps to device name", func(t *testing.T) {
		tr, err := ParseResource("ASRL3::INSTR", 9600, time.Second)
		require.NoError(t, err)

		s, ok := tr.(*Serial)
		require.True(t, ok)
		assert.Equal(t, defaultSerialName(3), s.Endpoint())
	})

	t.Run("asrl literal device path", func(t *testing.T) {
		tr, err := ParseResource("ASRL/dev/ttyUSB0::INSTR", 9600, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "/dev/ttyUSB0", tr.Endpoint())
	})

	t.Run("asrl without port rejected", func(t *testing.T) {
		_, err := ParseResource("ASRL::INSTR", 9600, time.Second)
		assert.ErrorIs(t, err, ErrInvalidResource)
	})

	t.Run("unknown class rejected", func(t *testing.T) {
		_, err := ParseResource("GPIB0::12::INSTR", 0, time.Second)
		assert.ErrorIs(t, err, ErrInvalidResource)
	})

	t.Run("single part rejected", func(t *testing.T) {
		_, err := ParseResource("localhost:5025", 0, time.Second)
		assert.ErrorIs(t, err, ErrInvalidResource)
	})
}

func TestFormatSocketResource(t *testing.T) {
	assert.Equal(t, "TCPIP0::192.168.1.50::5025::SOCKET", FormatSocketResource("192.168.1.50", 5025))
}
