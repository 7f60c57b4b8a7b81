package modem

import (
	"time"

	"github.com/temoto/gsmrelay/log2"
)

// Startup AT sequence: no echo, caller id, DTMF detection, SMS text mode
// with direct delivery of incoming messages. Failures are logged by
// RunCommand and are not fatal, the modem may already be configured.
var setupSequence = []struct {
	cmd     string
	expect  string
	timeout time.Duration
}{
	{"ATE0", "OK", 2 * time.Second},
	{"AT+CLIP=1", "OK", 2 * time.Second},
	{"AT+DDET=1", "OK", 2 * time.Second},
	{"AT+CMGF=1", "OK", 2 * time.Second},
	{"AT+CNMI=2,2,0,0,0", "OK", 2 * time.Second},
}

func Setup(log *log2.Log, p Porter) {
	for _, step := range setupSequence {
		ok := p.RunCommand(step.cmd, step.expect, step.timeout)
		log.Infof("modem setup %s ok=%t", step.cmd, ok)
	}
}
