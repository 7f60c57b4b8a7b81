package modem

// Public API to easily stub the modem in your tests.

import (
	"sync"
	"time"
)

// MockPort implements Porter without hardware. Inbound lines are queued
// with QueueLine, outbound traffic is recorded. Commands succeed unless
// listed in Refuse.
type MockPort struct {
	mu sync.Mutex
	rx []string
	tx []string

	// Refuse maps command or expect strings to "pretend no reply came".
	Refuse map[string]bool
}

var _ Porter = (*MockPort)(nil)

func NewMockPort() *MockPort {
	return &MockPort{Refuse: make(map[string]bool)}
}

func (m *MockPort) QueueLine(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, s)
}

// Outbound returns everything sent so far: lines and raw writes.
func (m *MockPort) Outbound() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.tx))
	copy(out, m.tx)
	return out
}

func (m *MockPort) SendLine(s string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tx = append(m.tx, s)
	return nil
}

func (m *MockPort) Write(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tx = append(m.tx, string(b))
	return nil
}

func (m *MockPort) ReadLine(timeout time.Duration) (string, error) {
	m.mu.Lock()
	if len(m.rx) > 0 {
		line := m.rx[0]
		m.rx = m.rx[1:]
		m.mu.Unlock()
		return line, nil
	}
	m.mu.Unlock()
	// short nap keeps a Run() loop from spinning hot in tests
	time.Sleep(time.Millisecond)
	return "", ErrReadTimeout
}

func (m *MockPort) Expect(substr string, timeout time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Refuse[substr]
}

func (m *MockPort) RunCommand(cmd, expect string, timeout time.Duration) bool {
	m.mu.Lock()
	m.tx = append(m.tx, cmd)
	refused := m.Refuse[cmd] || m.Refuse[expect]
	m.mu.Unlock()
	return !refused
}

func (m *MockPort) Close() error { return nil }
