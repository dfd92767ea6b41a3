package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/vendorpay/apitrc"
	"github.com/vendorpay/apitrc/apitrcweb"
	"github.com/vendorpay/apitrc/internal/apitrcutil"
)

type tailConfig struct {
	*rootConfig

	uri           string
	output        string
	sendBuf       int
	recvBuf       int
	statsInterval time.Duration
	retryInterval time.Duration

	method      string
	pathPrefix  string
	host        string
	minCalls    int
	minDuration time.Duration
	isErrored   bool

	flags *ff.FlagSet
}

func (cfg *tailConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'u', LongName: "uri" /*            */, Value: ffval.NewValueDefault(&cfg.uri, "localhost:8081/debug/calls/stream") /* */, Usage: "stream server URI, i.e. the --debug-addr of vendorpay serve", Placeholder: "URI"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'o', LongName: "output" /*         */, Value: ffval.NewEnum(&cfg.output, "summary", "ndjson") /*                      */, Usage: "output format: summary, ndjson", Placeholder: "FORMAT"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "send-buffer" /*    */, Value: ffval.NewValueDefault(&cfg.sendBuf, 100) /*                              */, Usage: "remote send buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "recv-buffer" /*    */, Value: ffval.NewValueDefault(&cfg.recvBuf, 100) /*                              */, Usage: "local receive buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "stats-interval" /* */, Value: ffval.NewValueDefault(&cfg.statsInterval, 10*time.Second) /*             */, Usage: "stats reporting interval"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "retry-interval" /* */, Value: ffval.NewValueDefault(&cfg.retryInterval, 3*time.Second) /*              */, Usage: "connection retry interval"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'm', LongName: "method" /*         */, Value: ffval.NewValue(&cfg.method) /*                                           */, Usage: "only requests with this method", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 'p', LongName: "path" /*           */, Value: ffval.NewValue(&cfg.pathPrefix) /*                                       */, Usage: "only requests with this path prefix", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "host" /*           */, Value: ffval.NewValue(&cfg.host) /*                                             */, Usage: "only requests that called this host", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 'n', LongName: "min-calls" /*      */, Value: ffval.NewValue(&cfg.minCalls) /*                                         */, Usage: "only requests with at least this many calls", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 'd', LongName: "duration" /*       */, Value: ffval.NewValue(&cfg.minDuration) /*                                      */, Usage: "only requests that took at least this long", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 'e', LongName: "errored" /*        */, Value: ffval.NewValue(&cfg.isErrored) /*                                        */, Usage: "only requests with at least one failed call", NoDefault: true})
	cfg.flags = fs
}

func (cfg *tailConfig) filter() apitrcweb.Filter {
	var minDuration *time.Duration
	if f, ok := cfg.flags.GetFlag("duration"); ok && f.IsSet() {
		minDuration = &cfg.minDuration
	}
	return apitrcweb.Filter{
		Method:      cfg.method,
		PathPrefix:  cfg.pathPrefix,
		Host:        cfg.host,
		MinCalls:    cfg.minCalls,
		MinDuration: minDuration,
		IsErrored:   cfg.isErrored,
	}
}

func (cfg *tailConfig) Exec(ctx context.Context, args []string) error {
	// The stream client uses the default transport.
	cfg.registerUnixTransport()

	f := cfg.filter()
	{
		cfg.info.Printf("uri: %s", cfg.uri)
		cfg.info.Printf("filter: %s", f)
		cfg.debug.Printf("send buffer: %d", cfg.sendBuf)
		cfg.debug.Printf("recv buffer: %d", cfg.recvBuf)
		cfg.debug.Printf("stats interval: %s", cfg.statsInterval)
		cfg.debug.Printf("retry interval: %s", cfg.retryInterval)
	}

	client := &apitrcweb.StreamClient{
		URI:           cfg.uri,
		SendBuffer:    cfg.sendBuf,
		RetryInterval: cfg.retryInterval,
		StatsInterval: cfg.statsInterval,
		OnStats: func(stats apitrcweb.Stats) {
			cfg.debug.Printf("stats: %s", stats)
		},
	}

	exchanges := make(chan *apitrc.Exchange, cfg.recvBuf)

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return client.Stream(ctx, f, exchanges)
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return cfg.writeExchanges(ctx, exchanges)
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	return g.Run()
}

func (cfg *tailConfig) writeExchanges(ctx context.Context, exchanges <-chan *apitrc.Exchange) error {
	enc := json.NewEncoder(cfg.stdout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ex := <-exchanges:
			switch cfg.output {
			case "ndjson":
				if err := enc.Encode(ex); err != nil {
					return fmt.Errorf("encode exchange: %w", err)
				}
			default:
				fmt.Fprintf(cfg.stdout, "%s %s %s %d %s\n",
					ex.Start.Format(time.RFC3339),
					ex.Method, ex.Path, ex.Status,
					apitrcutil.HumanizeDuration(ex.Duration),
				)
				for _, c := range ex.Calls {
					fmt.Fprintf(cfg.stdout, "    %s\n", formatCall(c))
				}
			}
		}
	}
}
