package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/gsmrelay/log2"
)

type fakeLedger struct {
	on  map[int]int
	off map[int]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{on: make(map[int]int), off: make(map[int]int)}
}

func (l *fakeLedger) Inc(id int, on bool) {
	if on {
		l.on[id]++
	} else {
		l.off[id]++
	}
}

type fakeRecorder struct{ lines []string }

func (r *fakeRecorder) Record(line string) { r.lines = append(r.lines, line) }

func newTestBank(t testing.TB, n int) (*Bank, *FakeLines, *fakeLedger, *fakeRecorder) {
	pins := make([]uint32, n)
	for i := range pins {
		pins[i] = uint32(10 + i)
	}
	lines := NewFakeLines(pins...)
	b, err := NewBank(log2.NewTest(t, log2.LDebug), lines, pins)
	require.NoError(t, err)
	b.SetSettle(0)
	led := newFakeLedger()
	rec := &fakeRecorder{}
	b.SetLedger(led)
	b.SetRecorder(rec)
	return b, lines, led, rec
}

func TestSetIdempotent(t *testing.T) {
	t.Parallel()

	b, lines, led, rec := newTestBank(t, 4)
	flushed0 := lines.Flushed // initial all-low flush

	assert.True(t, b.Set(0, true))
	assert.Equal(t, flushed0+1, lines.Flushed)
	assert.Equal(t, byte(1), lines.Values[10])
	assert.Equal(t, 1, led.on[0])
	assert.Equal(t, []string{"R1 => ON"}, rec.lines)

	// second set to the same value: no write, no count, no line
	assert.False(t, b.Set(0, true))
	assert.Equal(t, flushed0+1, lines.Flushed)
	assert.Equal(t, 1, led.on[0])
	assert.Equal(t, []string{"R1 => ON"}, rec.lines)
}

func TestToggleCounts(t *testing.T) {
	t.Parallel()

	b, _, led, _ := newTestBank(t, 2)
	const n = 7
	for i := 0; i < n; i++ {
		b.Set(0, !b.Get(0))
	}
	assert.Equal(t, n, led.on[0]+led.off[0])
	assert.True(t, b.Get(0)) // odd number of toggles from OFF
}

func TestSetAll(t *testing.T) {
	t.Parallel()

	b, lines, led, rec := newTestBank(t, 4)
	b.Set(0, true)
	rec.lines = nil

	b.SetAll(true)
	// R1 already on: only the three flipped relays get lines, plus trailer
	assert.Equal(t, []string{"R2 => ON", "R3 => ON", "R4 => ON", "ALL RELAYS => ON"}, rec.lines)
	assert.Equal(t, 1, led.on[0]) // R1 counted once, from the earlier Set
	assert.Equal(t, 0, led.off[0])
	for _, pin := range []uint32{10, 11, 12, 13} {
		assert.Equal(t, byte(1), lines.Values[pin])
	}
	assert.Equal(t, []bool{true, true, true, true}, b.Snapshot())

	rec.lines = nil
	b.SetAll(false)
	assert.Equal(t, []string{"R1 => OFF", "R2 => OFF", "R3 => OFF", "R4 => OFF", "ALL RELAYS => OFF"}, rec.lines)
}

func TestSetOutOfRange(t *testing.T) {
	t.Parallel()

	b, _, led, rec := newTestBank(t, 2)
	assert.False(t, b.Set(5, true))
	assert.Empty(t, rec.lines)
	assert.Empty(t, led.on)
	assert.False(t, b.Get(5))
}
