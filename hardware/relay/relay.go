// Package relay drives a bank of relays through GPIO character device
// lines. The bank owns last-known state, counts every transition in the
// ledger and reports change lines for operator summaries.
package relay

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
	"github.com/temoto/gsmrelay/log2"
)

const DefaultSettle = 200 * time.Millisecond

// Ledger counts accepted state transitions. ledger.Ledger implements it.
type Ledger interface {
	Inc(id int, on bool)
}

// Recorder takes human readable change lines. report.Aggregator implements it.
type Recorder interface {
	Record(line string)
}

// Notifier mirrors transitions to telemetry. tele.Teler implements it.
type Notifier interface {
	RelayChange(id int, on bool)
}

type Bank struct { //nolint:maligned
	Log *log2.Log

	chip   gpio.Chiper
	lines  gpio.Lineser
	set    []gpio.LineSetFunc
	state  []bool
	settle time.Duration

	ledger Ledger
	rec    Recorder
	notify Notifier
}

// Open claims pins on the named gpiochip as outputs, all driven low.
func Open(log *log2.Log, chipName string, pins []uint32) (*Bank, error) {
	chip, err := gpio.Open(chipName, "gsmrelay")
	if err != nil {
		return nil, errors.Annotatef(err, "relay chip=%s", chipName)
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, "relay", pins...)
	if err != nil {
		chip.Close()
		return nil, errors.Annotatef(err, "relay lines=%v", pins)
	}
	b, err := NewBank(log, lines, pins)
	if err != nil {
		lines.Close()
		chip.Close()
		return nil, err
	}
	b.chip = chip
	return b, nil
}

// NewBank wires an already opened line handle; tests pass a fake Lineser.
func NewBank(log *log2.Log, lines gpio.Lineser, pins []uint32) (*Bank, error) {
	if len(pins) == 0 {
		return nil, errors.Errorf("relay no pins configured")
	}
	b := &Bank{
		Log:    log,
		lines:  lines,
		set:    make([]gpio.LineSetFunc, len(pins)),
		state:  make([]bool, len(pins)),
		settle: DefaultSettle,
	}
	for i, pin := range pins {
		b.set[i] = lines.SetFunc(pin)
	}
	// known startup state: everything off
	for _, f := range b.set {
		f(0)
	}
	if err := lines.Flush(); err != nil {
		return nil, errors.Annotate(err, "relay initial flush")
	}
	return b, nil
}

func (b *Bank) SetLedger(l Ledger)        { b.ledger = l }
func (b *Bank) SetRecorder(r Recorder)    { b.rec = r }
func (b *Bank) SetNotifier(n Notifier)    { b.notify = n }
func (b *Bank) SetSettle(d time.Duration) { b.settle = d }

func (b *Bank) N() int { return len(b.state) }

func (b *Bank) Get(id int) bool {
	if id < 0 || id >= len(b.state) {
		return false
	}
	return b.state[id]
}

// Snapshot returns current states in ascending id order.
func (b *Bank) Snapshot() []bool {
	out := make([]bool, len(b.state))
	copy(out, b.state)
	return out
}

// Set drives relay id to the desired state. Returns false without touching
// hardware, ledger or recorder when already there.
func (b *Bank) Set(id int, on bool) bool {
	if id < 0 || id >= len(b.state) {
		b.Log.Errorf("relay set out of range id=%d", id)
		return false
	}
	if b.state[id] == on {
		return false
	}
	b.set[id](bit(on))
	if err := b.lines.Flush(); err != nil {
		// no way to model partial hardware state, give up loudly
		b.Log.Fatal(errors.ErrorStack(errors.Annotatef(err, "relay write id=%d", id)))
		return false
	}
	b.state[id] = on
	b.Log.Infof("relay R%d => %s", id+1, OnOff(on))
	if b.ledger != nil {
		b.ledger.Inc(id, on)
	}
	if b.rec != nil {
		b.rec.Record(fmt.Sprintf("R%d => %s", id+1, OnOff(on)))
	}
	if b.notify != nil {
		b.notify.RelayChange(id, on)
	}
	// let the driver hardware settle before the next toggle
	time.Sleep(b.settle)
	return true
}

// SetAll drives every relay to the desired state and records one trailer
// line after the per-relay lines, whether or not anything flipped.
func (b *Bank) SetAll(on bool) {
	for id := range b.state {
		b.Set(id, on)
	}
	if b.rec != nil {
		b.rec.Record(fmt.Sprintf("ALL RELAYS => %s", OnOff(on)))
	}
}

func (b *Bank) Close() error {
	var err error
	if b.lines != nil {
		err = b.lines.Close()
	}
	if b.chip != nil {
		if e := b.chip.Close(); err == nil {
			err = e
		}
	}
	return err
}

func OnOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func bit(on bool) byte {
	if on {
		return 1
	}
	return 0
}
