// Package report batches relay change lines into SMS summaries for the
// operator. A summary goes out after a quiet period with no further
// changes, or immediately when a call ends.
package report

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gsmrelay/helpers/atomic_clock"
	"github.com/temoto/gsmrelay/log2"
)

const DefaultQuiet = 60 * time.Second

const (
	header          = "relay changes:"
	statesHeader    = "final states:"
	noChangesNotice = "call ended, no changes"
)

type Sender interface {
	SendSMS(number, body string) error
}

// StatesFunc reports current relay states in ascending id order.
type StatesFunc func() []bool

type Aggregator struct {
	log      *log2.Log
	sender   Sender
	operator string
	quiet    time.Duration
	states   StatesFunc

	mu    sync.Mutex
	lines []string
	dirty bool
	last  atomic_clock.Clock
}

func New(log *log2.Log, sender Sender, operator string, quiet time.Duration, states StatesFunc) *Aggregator {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Aggregator{
		log:      log,
		sender:   sender,
		operator: operator,
		quiet:    quiet,
		states:   states,
	}
}

func (a *Aggregator) Record(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = append(a.lines, line)
	a.dirty = true
	a.last.SetNow()
	a.log.Debugf("report record %q pending=%d", line, len(a.lines))
}

// IsDue reports whether the quiet window elapsed with changes pending.
func (a *Aggregator) IsDue(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dirty && now.UnixNano()-a.last.UnixNano() >= int64(a.quiet)
}

// Flush sends pending changes to the operator; no-op when clean.
func (a *Aggregator) Flush() error {
	body, ok := a.take()
	if !ok {
		return nil
	}
	return a.send(body)
}

// FlushCallEnd always produces exactly one outbound message: the pending
// summary, or a fixed notice when nothing changed during the call.
func (a *Aggregator) FlushCallEnd() error {
	body, ok := a.take()
	if !ok {
		body = noChangesNotice
	}
	return a.send(body)
}

// take composes the summary body and clears pending state in one step so
// a failed send is not retried with stale lines.
func (a *Aggregator) take() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dirty {
		return "", false
	}
	b := strings.Builder{}
	b.WriteString(header)
	for _, line := range a.lines {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	b.WriteString("\n\n")
	b.WriteString(statesHeader)
	for i, on := range a.states() {
		b.WriteByte('\n')
		b.WriteString("R")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(": ")
		b.WriteString(onOff(on))
	}
	a.lines = nil
	a.dirty = false
	return b.String(), true
}

func (a *Aggregator) send(body string) error {
	a.log.Infof("report send to=%s bytes=%d", a.operator, len(body))
	if err := a.sender.SendSMS(a.operator, body); err != nil {
		// best effort, lost summaries are logged and forgotten
		err = errors.Annotatef(err, "report send to=%s", a.operator)
		a.log.Errorf(err.Error())
		return err
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
