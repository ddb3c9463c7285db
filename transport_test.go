package wiihost

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransportUnlimitedCreditByDefault(t *testing.T) {
	m := NewMemoryTransport()
	assert.True(t, m.HasSendCredit(), "expected unlimited credit by default")
	for i := 0; i < 5; i++ {
		_, err := m.Write([]byte{byte(i)})
		require.NoError(t, err)
	}
	assert.True(t, m.HasSendCredit(), "expected credit to remain after writes with unlimited budget")
	assert.Len(t, m.Frames(), 5)
}

func TestMemoryTransportFiniteCreditExhausts(t *testing.T) {
	m := NewMemoryTransport()
	m.SetCredit(2)

	assert.True(t, m.HasSendCredit(), "expected credit before any writes")
	m.Write([]byte{1})
	assert.True(t, m.HasSendCredit(), "expected credit after first of two writes")
	m.Write([]byte{2})
	assert.False(t, m.HasSendCredit(), "expected credit exhausted after second write")
}

func TestMemoryTransportSetCreditRestoresUnlimited(t *testing.T) {
	m := NewMemoryTransport()
	m.SetCredit(0)
	assert.False(t, m.HasSendCredit(), "expected no credit with a zero budget")
	m.SetCredit(-1)
	assert.True(t, m.HasSendCredit(), "expected unlimited credit restored by a negative budget")
}

func TestMemoryTransportWriteCopiesInput(t *testing.T) {
	m := NewMemoryTransport()
	p := []byte{1, 2, 3}
	m.Write(p)
	p[0] = 0xFF
	require.Equal(t, byte(1), m.Frames()[0][0], "Write must copy, not alias the caller's slice")
}

func TestMemoryTransportReadIsAlwaysEOF(t *testing.T) {
	m := NewMemoryTransport()
	buf := make([]byte, 16)
	_, err := m.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemoryTransportCloseIsNoop(t *testing.T) {
	m := NewMemoryTransport()
	assert.NoError(t, m.Close())
}
