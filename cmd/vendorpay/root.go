package main

import (
	"io"
	"log"
	"net/http"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/unixtransport"
)

type rootConfig struct {
	stdout io.Writer
	stderr io.Writer

	logLevel string

	info, debug, trace *log.Logger
}

func (cfg *rootConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log-level",
		Value:       ffval.NewEnum(&cfg.logLevel, "info", "i", "debug", "d", "trace", "t", "none", "n"),
		Usage:       "log level: i/info, d/debug, t/trace, n/none",
		Placeholder: "LEVEL",
	})
}

// registerUnixTransport lets the default transport dial unix sockets, via
// URLs like http+unix:///path/to/socket:/debug/calls/stream. It must be
// called before the default transport is wrapped.
func (cfg *rootConfig) registerUnixTransport() {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		cfg.debug.Printf("default transport is %T, unix socket URIs won't work", http.DefaultTransport)
		return
	}
	unixtransport.Register(transport)
}
