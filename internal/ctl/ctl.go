// Package ctl runs the control loop: it reads modem lines, tracks call
// state and dispatches tone and SMS commands to the relay bank.
package ctl

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/temoto/alive/v2"
	"github.com/temoto/gsmrelay/hardware/modem"
	"github.com/temoto/gsmrelay/hardware/relay"
	"github.com/temoto/gsmrelay/internal/report"
	"github.com/temoto/gsmrelay/internal/tele"
	"github.com/temoto/gsmrelay/internal/urc"
	"github.com/temoto/gsmrelay/log2"
)

type CallState uint8

const (
	CallIdle CallState = iota
	CallRinging
	CallActive
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallRinging:
		return "ringing"
	case CallActive:
		return "active"
	}
	return fmt.Sprintf("CallState(%d)", uint8(s))
}

const (
	readTimeout   = 200 * time.Millisecond
	acceptTimeout = 5 * time.Second

	// DTMF '1'..'4' address relays, '5' and '6' are broadcast.
	toneRelayBase = 49
	toneAllOn     = 53
	toneAllOff    = 54
)

type Controller struct { //nolint:maligned
	Log *log2.Log

	// Pauses after a handled tone / SMS body, modem firmware garbles
	// reads right after relay switching. Zero in tests.
	SettleTone time.Duration
	SettleSMS  time.Duration

	port     modem.Porter
	bank     *relay.Bank
	agg      *report.Aggregator
	tele     tele.Teler
	operator string

	mu        sync.Mutex
	call      CallState
	number    string // candidate caller while ringing, confirmed while active
	awaitBody bool   // +CMT: seen, next line is the SMS body
}

func New(log *log2.Log, port modem.Porter, bank *relay.Bank, agg *report.Aggregator, teler tele.Teler, operator string) *Controller {
	if teler == nil {
		teler = tele.NewStub()
	}
	return &Controller{
		Log:        log,
		SettleTone: 300 * time.Millisecond,
		SettleSMS:  500 * time.Millisecond,
		port:       port,
		bank:       bank,
		agg:        agg,
		tele:       teler,
		operator:   operator,
	}
}

// Run is the single reader of the modem port. Everything else that talks
// to the modem (console dial/hangup, SMS sending) must go through the
// Controller or the shared Porter while Run is between reads.
func (c *Controller) Run(a *alive.Alive) {
	defer a.Done()
	c.Log.Debugf("ctl loop start")
	for a.IsRunning() {
		line, err := c.port.ReadLine(readTimeout)
		switch {
		case err == nil:
			c.HandleLine(line)
		case modem.IsTimeout(err):
			// nothing on the wire, fall through to the flush check
		default:
			c.Log.Errorf("ctl read: %v", err)
			time.Sleep(readTimeout)
		}
		if c.agg.IsDue(time.Now()) {
			_ = c.agg.Flush()
		}
	}
	c.Log.Debugf("ctl loop stop")
}

// HandleLine processes one line from the modem, URC or SMS body.
func (c *Controller) HandleLine(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.awaitBody {
		c.awaitBody = false
		c.Log.Infof("sms body=%q", line)
		c.dispatchSMS(line)
		time.Sleep(c.SettleSMS)
		return
	}

	ev := urc.Classify(line)
	switch ev.Kind {
	case urc.KindRing:
		c.Log.Infof("ring")
		// answer every incoming call, command access is not restricted
		if !c.port.RunCommand("ATA", "OK", acceptTimeout) {
			c.Log.Errorf("ATA failed")
		}

	case urc.KindCallerID:
		if ev.Number == "" {
			c.Log.Errorf("malformed caller id line=%q", line)
			return
		}
		c.Log.Infof("caller id number=%s", ev.Number)
		c.number = ev.Number
		c.call = CallRinging

	case urc.KindAccept:
		if c.call != CallActive && c.number != "" {
			c.call = CallActive
			c.Log.Infof("call active number=%s", c.number)
			c.tele.State(tele.State_Call)
		}

	case urc.KindTerminated:
		c.terminate(line)

	case urc.KindError:
		// ERROR means call teardown only while one is up, otherwise it
		// is a reply to some failed command and already logged there.
		if c.call == CallActive {
			c.terminate(line)
		} else {
			c.Log.Debugf("modem error line=%q", line)
		}

	case urc.KindTone:
		if ev.Tone < 0 {
			c.Log.Errorf("bad tone line=%q", line)
			return
		}
		c.dispatchTone(ev.Tone)
		time.Sleep(c.SettleTone)

	case urc.KindMessage:
		c.Log.Infof("sms header line=%q", line)
		c.awaitBody = true

	default:
		c.Log.Debugf("modem line=%q", line)
	}
}

// terminate handles every way a call ends. The call-end summary is sent
// exactly once per call because the Active->Idle transition happens here
// and nowhere else.
func (c *Controller) terminate(line string) {
	if c.call != CallActive {
		c.Log.Debugf("terminator while %s line=%q", c.call.String(), line)
		return
	}
	c.Log.Infof("call ended number=%s line=%q", c.number, line)
	c.call = CallIdle
	c.number = ""
	if err := c.agg.FlushCallEnd(); err != nil {
		c.Log.Errorf("call end report: %v", err)
	}
	c.tele.State(tele.State_Nominal)
}

func (c *Controller) dispatchTone(code int) {
	switch {
	case code >= toneRelayBase && code < toneRelayBase+c.bank.N():
		id := code - toneRelayBase
		c.bank.Set(id, !c.bank.Get(id))
	case code == toneAllOn:
		c.bank.SetAll(true)
	case code == toneAllOff:
		c.bank.SetAll(false)
	default:
		c.Log.Infof("tone ignored code=%d", code)
	}
}

func (c *Controller) dispatchSMS(body string) {
	text := strings.ToUpper(strings.TrimSpace(body))
	switch {
	case strings.Contains(text, "ALL ON"):
		c.bank.SetAll(true)
		return
	case strings.Contains(text, "ALL OFF"):
		c.bank.SetAll(false)
		return
	}

	matched := false
	for id := 0; id < c.bank.N(); id++ {
		if strings.Contains(text, fmt.Sprintf("R%d ON", id+1)) {
			c.bank.Set(id, true)
			matched = true
		}
		// checked after ON on purpose: a message naming both leaves
		// the relay off
		if strings.Contains(text, fmt.Sprintf("R%d OFF", id+1)) {
			c.bank.Set(id, false)
			matched = true
		}
	}
	if !matched {
		c.Log.Infof("sms unrecognized body=%q", body)
	}
}

// Dial starts an outgoing voice call, used by the debug console.
func (c *Controller) Dial(number string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := fmt.Sprintf("ATD%s;", number)
	if !c.port.RunCommand(cmd, "OK", acceptTimeout) {
		c.Log.Errorf("dial number=%s failed", number)
		return
	}
	c.number = number
	c.call = CallActive
	c.tele.State(tele.State_Call)
}

// Hangup drops the current call locally. The modem will not emit NO
// CARRIER for ATH, so the Active->Idle transition runs here.
func (c *Controller) Hangup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.port.RunCommand("ATH", "OK", acceptTimeout) {
		c.Log.Errorf("hangup failed")
	}
	c.terminate("ATH")
}

// State reports the call machine, used by the console and tests.
func (c *Controller) State() (CallState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call, c.number
}
