package tele

import (
	"context"

	tele_config "github.com/temoto/gsmrelay/internal/tele/config"
	"github.com/temoto/gsmrelay/log2"
)

type stub struct{}

var _ Teler = stub{} // compile-time interface test

func (stub) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }
func (stub) Close()                                                    {}
func (stub) State(State)                                               {}
func (stub) Error(error)                                               {}
func (stub) RelayChange(id int, on bool)                               {}
func (stub) Summary(body string)                                       {}

func NewStub() Teler { return stub{} }
