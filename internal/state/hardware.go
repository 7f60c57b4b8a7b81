package state

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/gsmrelay/hardware/modem"
	"github.com/temoto/gsmrelay/hardware/relay"
	"github.com/temoto/gsmrelay/helpers"
	"github.com/temoto/gsmrelay/log2"
)

const (
	defaultBaud    = 115200
	defaultPinChip = "/dev/gpiochip0"
)

type hardware struct {
	Modem struct {
		once
		Port modem.Porter
	}
	Relay struct {
		once
		Bank *relay.Bank
	}
}

func (g *Global) Modem() (modem.Porter, error) {
	x := &g.Hardware.Modem // short alias
	_ = x.do(func() error {
		if x.Port != nil { // testing mode
			return nil
		}

		cfg := &g.Config.Hardware.Modem
		if cfg.Device == "" {
			return errors.NotValidf("config: modem.device is empty")
		}
		baud := cfg.Baud
		if baud == 0 {
			baud = defaultBaud
		}
		modemLog := g.Log.Clone(log2.LInfo)
		if cfg.LogDebug {
			modemLog.SetLevel(log2.LDebug)
		}
		port, err := modem.NewPort(modemLog, cfg.Device, baud)
		if err != nil {
			return errors.Annotatef(err, "config: modem device=%s baud=%d", cfg.Device, baud)
		}
		modem.Setup(modemLog, port)
		x.Port = port
		return nil
	})
	return x.Port, x.err
}

func (g *Global) MustModem() modem.Porter {
	p, err := g.Modem()
	if err != nil {
		g.Fatal(err)
	}
	return p
}

func (g *Global) Relays() (*relay.Bank, error) {
	x := &g.Hardware.Relay // short alias
	_ = x.do(func() error {
		if x.Bank != nil { // testing mode
			return nil
		}

		cfg := &g.Config.Hardware.Relay
		if len(cfg.Pins) == 0 {
			return errors.NotValidf("config: relay.pins is empty")
		}
		chip := cfg.PinChip
		if chip == "" {
			chip = defaultPinChip
		}
		pins := make([]uint32, len(cfg.Pins))
		for i, p := range cfg.Pins {
			pins[i] = uint32(p)
		}
		bank, err := relay.Open(g.Log, chip, pins)
		if err != nil {
			return errors.Annotatef(err, "config: relay chip=%s pins=%v", chip, cfg.Pins)
		}
		bank.SetSettle(helpers.IntMillisecondDefault(cfg.SettleMs, relay.DefaultSettle))
		bank.SetLedger(g.Ledger)
		bank.SetNotifier(g.Tele)
		x.Bank = bank
		return nil
	})
	return x.Bank, x.err
}

func (g *Global) MustRelays() *relay.Bank {
	b, err := g.Relays()
	if err != nil {
		g.Fatal(err)
	}
	return b
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
