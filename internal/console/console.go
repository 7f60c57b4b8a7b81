// Package console is the interactive debug shell: test SMS, dial and
// hang up without a second phone.
package console

import (
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/temoto/gsmrelay/helpers/cli"
	"github.com/temoto/gsmrelay/internal/ctl"
	"github.com/temoto/gsmrelay/internal/report"
	"github.com/temoto/gsmrelay/log2"
)

const usage = `commands:
- s     send test SMS to the operator
- call  dial the operator
- h     hang up`

const testSMSBody = "gsmrelay test message"

type Console struct {
	Log      *log2.Log
	ctl      *ctl.Controller
	sender   report.Sender
	operator string
}

func New(log *log2.Log, c *ctl.Controller, sender report.Sender, operator string) *Console {
	return &Console{Log: log, ctl: c, sender: sender, operator: operator}
}

// Run blocks until stdin is closed or a stop signal arrives.
func (c *Console) Run(stop func()) {
	cli.MainLoop(c.exec, completer, stop)
}

func (c *Console) exec(line string) {
	switch strings.TrimSpace(line) {
	case "":
	case "s":
		if err := c.sender.SendSMS(c.operator, testSMSBody); err != nil {
			c.Log.Errorf("console sms: %v", err)
		}
	case "call":
		c.ctl.Dial(c.operator)
	case "h":
		c.ctl.Hangup()
	default:
		c.Log.Infof(usage)
	}
}

func completer(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "s", Description: "send test SMS to operator"},
		{Text: "call", Description: "dial operator"},
		{Text: "h", Description: "hang up"},
	}
	return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
}
