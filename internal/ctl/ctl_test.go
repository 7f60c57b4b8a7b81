package ctl

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
	"github.com/temoto/gsmrelay/hardware/modem"
	"github.com/temoto/gsmrelay/hardware/relay"
	"github.com/temoto/gsmrelay/internal/ledger"
	"github.com/temoto/gsmrelay/internal/report"
	"github.com/temoto/gsmrelay/log2"
)

const testOperator = "+79990001122"

type mockSender struct {
	mu   sync.Mutex
	sent []string
}

func (m *mockSender) SendSMS(number, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, number+"|"+body)
	return nil
}

func (m *mockSender) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

type testEnv struct {
	ctl    *Controller
	port   *modem.MockPort
	bank   *relay.Bank
	ledger *ledger.Ledger
	sender *mockSender
}

func newTestEnv(t testing.TB, quiet time.Duration) *testEnv {
	log := log2.NewTest(t, log2.LDebug)
	port := modem.NewMockPort()
	pins := []uint32{10, 11, 12, 13}
	bank, err := relay.NewBank(log, relay.NewFakeLines(pins...), pins)
	require.NoError(t, err)
	bank.SetSettle(0)
	led := ledger.New(log, len(pins), nil)
	bank.SetLedger(led)
	sender := &mockSender{}
	agg := report.New(log, sender, testOperator, quiet, bank.Snapshot)
	bank.SetRecorder(agg)
	c := New(log, port, bank, agg, nil, testOperator)
	c.SettleTone = 0
	c.SettleSMS = 0
	return &testEnv{ctl: c, port: port, bank: bank, ledger: led, sender: sender}
}

func TestCallLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, report.DefaultQuiet)
	env.ctl.HandleLine("RING")
	assert.Contains(t, env.port.Outbound(), "ATA")

	env.ctl.HandleLine(`+CLIP: "+79001234567",145,"",0,"",0`)
	call, number := env.ctl.State()
	assert.Equal(t, CallRinging, call)
	assert.Equal(t, "+79001234567", number)

	env.ctl.HandleLine("OK")
	call, _ = env.ctl.State()
	assert.Equal(t, CallActive, call)

	env.ctl.HandleLine("+DTMF: 49")
	assert.True(t, env.bank.Get(0))

	env.ctl.HandleLine("NO CARRIER")
	call, number = env.ctl.State()
	assert.Equal(t, CallIdle, call)
	assert.Equal(t, "", number)

	sent := env.sender.Sent()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0], testOperator+"|"))
	assert.Contains(t, sent[0], "relay changes:")
	assert.Contains(t, sent[0], "R1 => ON")
	assert.Contains(t, sent[0], "final states:")
	assert.Contains(t, sent[0], "R1: ON")
	assert.Contains(t, sent[0], "R2: OFF")
}

func TestCallEndNoChanges(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, report.DefaultQuiet)
	env.ctl.HandleLine(`+CLIP: "+79001234567",145`)
	env.ctl.HandleLine("OK")
	env.ctl.HandleLine("BUSY")
	sent := env.sender.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "call ended, no changes")

	// a second terminator while idle sends nothing more
	env.ctl.HandleLine("NO CARRIER")
	assert.Len(t, env.sender.Sent(), 1)
}

func TestErrorTerminatesOnlyActiveCall(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, report.DefaultQuiet)
	env.ctl.HandleLine("ERROR")
	assert.Empty(t, env.sender.Sent())

	env.ctl.HandleLine(`+CLIP: "+79001234567",145`)
	env.ctl.HandleLine("OK")
	env.ctl.HandleLine("ERROR")
	call, _ := env.ctl.State()
	assert.Equal(t, CallIdle, call)
	assert.Len(t, env.sender.Sent(), 1)
}

func TestToneToggle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, report.DefaultQuiet)
	env.ctl.HandleLine("+DTMF: 49")
	env.ctl.HandleLine("+DTMF: 49")
	assert.False(t, env.bank.Get(0))
	assert.Equal(t, uint16(1), env.ledger.Count(0, true))
	assert.Equal(t, uint16(1), env.ledger.Count(0, false))

	env.ctl.HandleLine("+DTMF: 53")
	assert.Equal(t, []bool{true, true, true, true}, env.bank.Snapshot())
	env.ctl.HandleLine("+DTMF: 54")
	assert.Equal(t, []bool{false, false, false, false}, env.bank.Snapshot())

	// out of DTMF command range
	env.ctl.HandleLine("+DTMF: 35")
	assert.Equal(t, []bool{false, false, false, false}, env.bank.Snapshot())
	// non-numeric payload
	env.ctl.HandleLine("+DTMF: #")
	assert.Equal(t, []bool{false, false, false, false}, env.bank.Snapshot())
}

func TestSMSCommands(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, report.DefaultQuiet)
	env.ctl.HandleLine(`+CMT: "+79001234567","","26/08/21,12:00:00+12"`)
	env.ctl.HandleLine("r1 on r3 on")
	assert.True(t, env.bank.Get(0))
	assert.False(t, env.bank.Get(1))
	assert.True(t, env.bank.Get(2))

	// the body is consumed, the next line is a URC again
	env.ctl.HandleLine("r2 on")
	assert.False(t, env.bank.Get(1))

	env.ctl.HandleLine(`+CMT: "+79001234567"`)
	env.ctl.HandleLine("ALL OFF")
	assert.Equal(t, []bool{false, false, false, false}, env.bank.Snapshot())
}

func TestSMSOffWinsOverOn(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, report.DefaultQuiet)
	env.ctl.HandleLine(`+CMT: "+79001234567"`)
	env.ctl.HandleLine("R1 ON R1 OFF")
	assert.False(t, env.bank.Get(0))
	assert.Equal(t, uint16(1), env.ledger.Count(0, true))
	assert.Equal(t, uint16(1), env.ledger.Count(0, false))
}

func TestSMSAllOnTrailer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, report.DefaultQuiet)
	env.ctl.HandleLine(`+CMT: "+79001234567"`)
	env.ctl.HandleLine("ALL ON")
	env.ctl.HandleLine(`+CLIP: "+79001234567",145`)
	env.ctl.HandleLine("OK")
	env.ctl.HandleLine("NO CARRIER")
	sent := env.sender.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "ALL RELAYS => ON")
}

func TestSMSUnrecognized(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, report.DefaultQuiet)
	env.ctl.HandleLine(`+CMT: "+79001234567"`)
	env.ctl.HandleLine("hello there")
	assert.Equal(t, []bool{false, false, false, false}, env.bank.Snapshot())
	assert.Empty(t, env.sender.Sent())
}

func TestHangupFlushesOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, report.DefaultQuiet)
	env.ctl.Dial(testOperator)
	call, number := env.ctl.State()
	assert.Equal(t, CallActive, call)
	assert.Equal(t, testOperator, number)
	assert.Contains(t, env.port.Outbound(), "ATD"+testOperator+";")

	env.ctl.HandleLine("+DTMF: 50")
	env.ctl.Hangup()
	assert.Contains(t, env.port.Outbound(), "ATH")
	call, _ = env.ctl.State()
	assert.Equal(t, CallIdle, call)
	require.Len(t, env.sender.Sent(), 1)

	// NO CARRIER after local hangup must not send again
	env.ctl.HandleLine("NO CARRIER")
	assert.Len(t, env.sender.Sent(), 1)
}

func TestRunQuietFlush(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10*time.Millisecond)
	env.port.QueueLine("+DTMF: 49")

	a := alive.NewAlive()
	a.Add(1)
	go env.ctl.Run(a)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(env.sender.Sent()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	a.Stop()
	a.Wait()

	sent := env.sender.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "R1 => ON")
	assert.True(t, env.bank.Get(0))
}
