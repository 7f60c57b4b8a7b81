package tele

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/errors"
	tele_config "github.com/temoto/gsmrelay/internal/tele/config"
	"github.com/temoto/gsmrelay/log2"
)

type State byte

const (
	State_Invalid State = iota
	State_Boot
	State_Nominal
	State_Call
	State_Problem
)

func (s State) String() string {
	switch s {
	case State_Boot:
		return "boot"
	case State_Nominal:
		return "nominal"
	case State_Call:
		return "call"
	case State_Problem:
		return "problem"
	}
	return fmt.Sprintf("State(%d)", byte(s))
}

// Teler contract:
// - Init() fails only with invalid config, network issues ignored
// - State/Error/RelayChange/Summary never block on network and never fail;
//   messages that cannot be delivered right now are dropped with a log line
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	State(State)
	Error(error)
	RelayChange(id int, on bool)
	Summary(body string)
}

type tele struct {
	sync.Mutex
	config       tele_config.Config
	log          *log2.Log
	transport    Transporter
	currentState State
}

func New() Teler { return &tele{} }

func NewWithTransporter(trans Transporter) Teler {
	return &tele{transport: trans}
}

func (self *tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.config = teleConfig
	self.log = log
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.config.Enabled {
		return nil
	}

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, log, teleConfig); err != nil {
		return errors.Annotate(err, "tele transport")
	}

	self.State(State_Boot)
	return nil
}

func (self *tele) Close() {
	if !self.config.Enabled {
		return
	}
	self.transport.CloseTele()
}

func (self *tele) State(s State) {
	if !self.config.Enabled {
		return
	}
	self.Lock()
	defer self.Unlock()
	if self.currentState == s {
		return
	}
	self.log.Debugf("tele state %s -> %s", self.currentState.String(), s.String())
	self.currentState = s
	if !self.transport.SendState([]byte(s.String())) {
		self.log.Errorf("tele state=%s lost", s.String())
	}
}

func (self *tele) Error(e error) {
	if !self.config.Enabled || e == nil {
		return
	}
	if !self.transport.SendError([]byte(errors.ErrorStack(e))) {
		self.log.Errorf("tele error=%v lost", e)
	}
}

func (self *tele) RelayChange(id int, on bool) {
	if !self.config.Enabled {
		return
	}
	state := "OFF"
	if on {
		state = "ON"
	}
	payload := fmt.Sprintf("R%d %s", id+1, state)
	if !self.transport.SendRelay([]byte(payload)) {
		self.log.Errorf("tele relay=%s lost", payload)
	}
}

func (self *tele) Summary(body string) {
	if !self.config.Enabled || body == "" {
		return
	}
	if !self.transport.SendSummary([]byte(body)) {
		self.log.Errorf("tele summary lost body=%q", body)
	}
}
