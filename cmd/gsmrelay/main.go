// gsmrelay answers voice calls on a GSM modem and switches relays by
// DTMF tones or SMS commands, reporting changes back to the operator.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/gsmrelay/hardware/modem"
	"github.com/temoto/gsmrelay/helpers"
	"github.com/temoto/gsmrelay/internal/console"
	"github.com/temoto/gsmrelay/internal/ctl"
	"github.com/temoto/gsmrelay/internal/report"
	"github.com/temoto/gsmrelay/internal/state"
	"github.com/temoto/gsmrelay/internal/tele"
	"github.com/temoto/gsmrelay/log2"
)

// set by script/build
var BuildVersion string = "unknown"

func main() {
	flagConfig := flag.String("config", "gsmrelay.hcl", "")
	flag.Parse()

	logger := log2.NewStderr(log2.LInfo)
	if sdnotify(logger, "start") {
		// under systemd, journal adds timestamps
		logger.SetFlags(log2.LServiceFlags)
	} else {
		logger.SetFlags(log2.LInteractiveFlags)
	}
	logger.Infof("hello")

	ctx, g := state.NewContext(logger, tele.New())
	g.BuildVersion = BuildVersion

	config := state.MustReadConfig(logger, state.NewOsFullReader(), *flagConfig)
	g.MustInit(ctx, config)

	port := g.MustModem()
	bank := g.MustRelays()

	gw := modem.NewGateway(logger, port)
	sender := summarySender{gw: gw, tele: g.Tele}
	quiet := helpers.IntSecondDefault(config.Report.QuietSec, report.DefaultQuiet)
	agg := report.New(logger, sender, config.Report.Operator, quiet, bank.Snapshot)
	bank.SetRecorder(agg)

	c := ctl.New(logger, port, bank, agg, g.Tele, config.Report.Operator)
	g.Alive.Add(1)
	go c.Run(g.Alive)

	sdnotify(logger, daemon.SdNotifyReady)
	g.Tele.State(tele.State_Nominal)
	logger.Infof("init complete, running")

	if config.Console.Enable {
		console.New(logger, c, sender, config.Report.Operator).Run(g.Stop)
	} else {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigs:
			logger.Infof("signal %v", sig)
			g.Stop()
		case <-g.Alive.StopChan():
		}
	}

	g.Alive.Wait()
	if err := bank.Close(); err != nil {
		logger.Errorf("relay close: %v", err)
	}
	if err := port.Close(); err != nil {
		logger.Errorf("modem close: %v", err)
	}
	g.Tele.Close()
	logger.Infof("goodbye")
}

// summarySender delivers operator summaries over SMS and mirrors them
// to telemetry.
type summarySender struct {
	gw   *modem.Gateway
	tele tele.Teler
}

func (s summarySender) SendSMS(number, body string) error {
	s.tele.Summary(body)
	return s.gw.SendSMS(number, body)
}

func sdnotify(logger *log2.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		logger.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
