package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/gsmrelay/log2"
)

type memStorage struct {
	b []byte
}

func (m *memStorage) Read() ([]byte, error) {
	if m.b == nil {
		return nil, nil
	}
	cp := make([]byte, len(m.b))
	copy(cp, m.b)
	return cp, nil
}

func (m *memStorage) Write(b []byte) (int, error) {
	m.b = make([]byte, len(b))
	copy(m.b, b)
	return len(b), nil
}

func TestLayout(t *testing.T) {
	t.Parallel()

	mem := &memStorage{}
	l := New(log2.NewTest(t, log2.LError), 4, mem)
	require.NoError(t, l.Load())

	l.Inc(0, true)
	l.Inc(0, true)
	l.Inc(1, false)
	l.Inc(3, true)

	expect := []byte{
		2, 0, 0, 0, // R1: on=2 off=0
		0, 0, 1, 0, // R2: on=0 off=1
		0, 0, 0, 0, // R3
		1, 0, 0, 0, // R4: on=1
	}
	assert.Equal(t, expect, mem.b)

	// fresh instance loads the same counters back
	l2 := New(log2.NewTest(t, log2.LError), 4, mem)
	require.NoError(t, l2.Load())
	assert.Equal(t, uint16(2), l2.Count(0, true))
	assert.Equal(t, uint16(1), l2.Count(1, false))
	assert.Equal(t, uint16(0), l2.Count(2, true))
	assert.Equal(t, uint16(1), l2.Count(3, true))
}

func TestWrap(t *testing.T) {
	t.Parallel()

	l := New(log2.NewTest(t, log2.LError), 1, nil)
	require.NoError(t, l.UnmarshalBinary([]byte{0xff, 0xff, 0x00, 0x00}))
	assert.Equal(t, uint16(65535), l.Count(0, true))
	l.Inc(0, true)
	assert.Equal(t, uint16(0), l.Count(0, true))
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	l := New(log2.NewTest(t, log2.LError), 2, &memStorage{})
	require.NoError(t, l.Load())
	assert.Equal(t, uint16(0), l.Count(0, true))
	assert.Equal(t, uint16(0), l.Count(1, false))
}

func TestOutOfRange(t *testing.T) {
	t.Parallel()

	l := New(log2.NewTest(t, log2.LError), 2, nil)
	l.Inc(5, true) // logged, not fatal
	assert.Equal(t, uint16(0), l.Count(5, true))
}

func TestShortData(t *testing.T) {
	t.Parallel()

	// data persisted by a 1-relay deployment, now configured for 2
	l := New(log2.NewTest(t, log2.LError), 2, nil)
	require.NoError(t, l.UnmarshalBinary([]byte{7, 0, 3, 0}))
	assert.Equal(t, uint16(7), l.Count(0, true))
	assert.Equal(t, uint16(3), l.Count(0, false))
	assert.Equal(t, uint16(0), l.Count(1, true))
}
