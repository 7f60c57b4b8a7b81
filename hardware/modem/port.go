// Package modem talks to a GSM modem over a serial line: raw UART setup,
// line-oriented reads for unsolicited result codes, command/expect round
// trips and SMS submission.
package modem

import (
	"bytes"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gsmrelay/log2"
	"golang.org/x/sys/unix"
)

type ErrTimeoutT string

func (e ErrTimeoutT) Error() string { return string(e) }
func (ErrTimeoutT) Timeout() bool   { return true }

var ErrReadTimeout error = ErrTimeoutT("modem read timeout")

func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if t, ok := err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return false
}

// Porter is the modem transport contract. Port implements it against real
// hardware, MockPort implements it for tests.
type Porter interface {
	SendLine(s string) error
	Write(b []byte) error
	// ReadLine returns the next complete inbound line with CR/LF stripped,
	// or a timeout error.
	ReadLine(timeout time.Duration) (string, error)
	// Expect collects inbound bytes up to timeout and reports whether
	// substr appeared. Collected bytes are consumed either way.
	Expect(substr string, timeout time.Duration) bool
	RunCommand(cmd, expect string, timeout time.Duration) bool
	Close() error
}

var baudSpeed = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// Port owns one receive buffer, so its methods serialize: a console
// command waits out at most one pending ReadLine timeout.
type Port struct {
	Log *log2.Log

	mu  sync.Mutex
	f   *os.File
	acc []byte
}

func NewPort(log *log2.Log, device string, baud int) (*Port, error) {
	speed, ok := baudSpeed[baud]
	if !ok {
		return nil, errors.Errorf("modem unsupported baud=%d", baud)
	}
	f, err := os.OpenFile(device, syscall.O_RDWR|syscall.O_NOCTTY, 0600)
	if err != nil {
		return nil, errors.Annotatef(err, "modem open device=%s", device)
	}
	p := &Port{
		Log: log,
		f:   f,
		acc: make([]byte, 0, 4096),
	}
	if err := p.resetTermios(speed); err != nil {
		f.Close()
		return nil, errors.Annotatef(err, "modem termios device=%s", device)
	}
	return p, nil
}

// 8N1, no flow control, non-canonical, reads return whatever is buffered.
func (p *Port) resetTermios(speed uint32) error {
	t := unix.Termios{
		Iflag:  unix.IGNBRK,
		Cflag:  unix.CLOCAL | unix.CREAD | unix.CS8 | speed,
		Ispeed: speed,
		Ospeed: speed,
	}
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	// TCSETSF also flushes stale input from before we attached
	return unix.IoctlSetTermios(int(p.f.Fd()), unix.TCSETSF, &t)
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acc = nil
	return p.f.Close()
}

func (p *Port) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(b)
}

func (p *Port) write(b []byte) error {
	_, err := p.f.Write(b)
	return errors.Annotate(err, "modem write")
}

func (p *Port) SendLine(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendLine(s)
}

func (p *Port) sendLine(s string) error {
	p.Log.Debugf("modem send %q", s)
	return p.write(append([]byte(s), '\r', '\n'))
}

func (p *Port) ReadLine(timeout time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline := time.Now().Add(timeout)
	for {
		if i := bytes.IndexByte(p.acc, '\n'); i >= 0 {
			line := bytes.TrimRight(p.acc[:i], "\r")
			s := string(line)
			p.acc = p.acc[:copy(p.acc, p.acc[i+1:])]
			return s, nil
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return "", ErrReadTimeout
		}
		if err := p.fill(wait); err != nil {
			if IsTimeout(err) {
				return "", ErrReadTimeout
			}
			return "", err
		}
	}
}

func (p *Port) Expect(substr string, timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expect(substr, timeout)
}

func (p *Port) expect(substr string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	found := false
	sb := []byte(substr)
	for {
		if bytes.Contains(p.acc, sb) {
			found = true
			break
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			break
		}
		if err := p.fill(wait); err != nil {
			if !IsTimeout(err) {
				p.Log.Errorf("modem expect %q err=%v", substr, err)
			}
			break
		}
	}
	// everything scanned is consumed, replies are not replayed as URCs
	p.Log.Debugf("modem expect %q found=%t consumed=%d", substr, found, len(p.acc))
	p.acc = p.acc[:0]
	return found
}

func (p *Port) RunCommand(cmd, expect string, timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sendLine(cmd); err != nil {
		p.Log.Errorf("modem command %q err=%v", cmd, err)
		return false
	}
	ok := p.expect(expect, timeout)
	if !ok {
		p.Log.Errorf("modem command %q expect %q timeout=%v", cmd, expect, timeout)
	}
	return ok
}

// fill blocks until at least one byte is readable or wait elapses, then
// drains everything the kernel has buffered into p.acc.
func (p *Port) fill(wait time.Duration) error {
	fd := int(p.f.Fd())
	if err := waitRead(fd, 1, wait); err != nil {
		return err
	}
	n, err := unix.IoctlGetInt(fd, unix.TIOCINQ)
	if err != nil {
		return errors.Annotate(err, "modem FIONREAD")
	}
	if n <= 0 {
		n = 1
	}
	buf := make([]byte, n)
	rn, err := syscall.Read(fd, buf)
	if rn > 0 {
		p.acc = append(p.acc, buf[:rn]...)
	}
	return errors.Annotate(err, "modem read")
}

func waitRead(fd int, min int, wait time.Duration) error {
	tfinal := time.Now().Add(wait)
	for {
		out, err := unix.IoctlGetInt(fd, unix.TIOCINQ)
		if err != nil {
			return errors.Annotate(err, "modem FIONREAD")
		}
		if out >= min {
			return nil
		}
		if time.Now().After(tfinal) {
			return ErrReadTimeout
		}
		time.Sleep(wait / 16)
	}
}
