package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock(t *testing.T) {
	t.Run("scripted query and sent log", func(t *testing.T) {
		m := NewMock("TCPIP0::test::SOCKET", map[string]string{"*IDN?": "ACME,X,1,1"})
		require.NoError(t, m.Open())

		reply, err := m.Query("*IDN?")
		require.NoError(t, err)
		assert.Equal(t, "ACME,X,1,1", reply)

		require.NoError(t, m.Send("*CLS"))
		assert.Equal(t, []string{"*IDN?", "*CLS"}, m.Sent())
		assert.Equal(t, "TCPIP0::test::SOCKET", m.Endpoint())
	})

	t.Run("unscripted query times out", func(t *testing.T) {
		m := NewMock("", nil)
		require.NoError(t, m.Open())

		_, err := m.Query(":SYST:ERR?")
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, "mock", m.Endpoint())
	})

	t.Run("closed rejects io", func(t *testing.T) {
		m := NewMock("", nil)

		assert.ErrorIs(t, m.Send("*CLS"), ErrClosed)
		_, err := m.Query("*IDN?")
		assert.ErrorIs(t, err, ErrClosed)
	})
}
