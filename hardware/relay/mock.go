package relay

// Use to stub gpio lines in your tests.

import (
	gpio "github.com/temoto/gpio-cdev-go"
)

// FakeLines is a minimal in-memory gpio.Lineser. It tracks the buffered
// value per pin and how many times Flush pushed them to "hardware".
type FakeLines struct {
	pins    []uint32
	Values  map[uint32]byte
	Flushed int
	Closed  bool
}

var _ gpio.Lineser = (*FakeLines)(nil)

func NewFakeLines(pins ...uint32) *FakeLines {
	return &FakeLines{
		pins:   pins,
		Values: make(map[uint32]byte, len(pins)),
	}
}

func (f *FakeLines) Close() error {
	f.Closed = true
	return nil
}

func (f *FakeLines) SetFunc(line uint32) gpio.LineSetFunc {
	return func(value byte) { f.Values[line] = value }
}

func (f *FakeLines) LineOffsets() []uint32 { return f.pins }

func (f *FakeLines) Read() (gpio.HandleData, error) {
	d := gpio.HandleData{}
	for i, pin := range f.pins {
		d.Values[i] = f.Values[pin]
	}
	return d, nil
}

func (f *FakeLines) Flush() error {
	f.Flushed++
	return nil
}

func (f *FakeLines) SetBulk(bs ...byte) {
	for i, b := range bs {
		if i < len(f.pins) {
			f.Values[f.pins[i]] = b
		}
	}
}
