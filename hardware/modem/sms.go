package modem

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gsmrelay/log2"
)

const (
	smsTextModeTimeout = 2 * time.Second
	smsPromptTimeout   = 5 * time.Second
	smsSendTimeout     = 10 * time.Second
	smsSettle          = 500 * time.Millisecond

	// Ctrl+Z terminates the message body in text mode.
	smsEndByte = 0x1a
)

// Gateway submits outbound SMS through a Porter. Best effort: a missing
// delivery confirmation is logged, never retried.
type Gateway struct {
	Log  *log2.Log
	Port Porter
}

func NewGateway(log *log2.Log, port Porter) *Gateway {
	return &Gateway{Log: log, Port: port}
}

func (gw *Gateway) SendSMS(number, body string) error {
	if !gw.Port.RunCommand("AT+CMGF=1", "OK", smsTextModeTimeout) {
		// some firmwares stay in text mode from setup, try to compose anyway
		gw.Log.Errorf("sms text mode unconfirmed")
	}
	if !gw.Port.RunCommand(fmt.Sprintf(`AT+CMGS="%s"`, number), ">", smsPromptTimeout) {
		return errors.Errorf("sms compose prompt timeout number=%s", number)
	}
	time.Sleep(smsSettle)
	if err := gw.Port.Write([]byte(body)); err != nil {
		return errors.Annotatef(err, "sms body number=%s", number)
	}
	if err := gw.Port.Write([]byte{smsEndByte}); err != nil {
		return errors.Annotatef(err, "sms terminate number=%s", number)
	}
	if !gw.Port.Expect("OK", smsSendTimeout) {
		gw.Log.Errorf("sms send unconfirmed number=%s", number)
	}
	return nil
}
