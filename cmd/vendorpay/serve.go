package main

import (
	"context"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/unixtransport/unixproxy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vendorpay/apitrc"
	"github.com/vendorpay/apitrc/apitrcprom"
	"github.com/vendorpay/apitrc/apitrcweb"
	"github.com/vendorpay/apitrc/dashboard"
	"github.com/vendorpay/apitrc/internal/apitrcutil"
	"github.com/vendorpay/apitrc/treasury"
)

type serveConfig struct {
	*rootConfig

	listenAddr       string
	debugAddr        string
	mtBaseURL        string
	mtAPIKey         string
	mtOrganizationID string
	mtTransport      string
	streamBuffer     int
	shutdownTimeout  time.Duration
}

func (cfg *serveConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "listen-addr" /*        */, Value: ffval.NewValueDefault(&cfg.listenAddr, "localhost:8080") /*         */, Usage: "HTTP listen address, or unix socket path"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "debug-addr" /*         */, Value: ffval.NewValue(&cfg.debugAddr) /*                               */, Usage: "private listen address for the call stream and metrics (disabled if empty)", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "mt-base-url" /*        */, Value: ffval.NewValueDefault(&cfg.mtBaseURL, treasury.DefaultBaseURL) /* */, Usage: "payment provider API base URL"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "mt-api-key" /*         */, Value: ffval.NewValue(&cfg.mtAPIKey) /*                                */, Usage: "payment provider API key", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "mt-organization-id" /* */, Value: ffval.NewValue(&cfg.mtOrganizationID) /*                        */, Usage: "payment provider organization ID", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "mt-transport" /*       */, Value: ffval.NewEnum(&cfg.mtTransport, "client", "fetch") /*            */, Usage: "how provider calls are made: client, fetch"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "stream-buffer" /*      */, Value: ffval.NewValueDefault(&cfg.streamBuffer, 100) /*                 */, Usage: "default send buffer for call stream subscribers"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "shutdown-timeout" /*   */, Value: ffval.NewValueDefault(&cfg.shutdownTimeout, 5*time.Second) /*   */, Usage: "graceful shutdown timeout"})
}

func (cfg *serveConfig) Exec(ctx context.Context, args []string) error {
	// Order matters: the unix transport has to be registered on the concrete
	// transport, which Install then wraps.
	cfg.registerUnixTransport()
	apitrc.Install()

	providerConfig := treasury.Config{
		BaseURL:        cfg.mtBaseURL,
		OrganizationID: cfg.mtOrganizationID,
		APIKey:         cfg.mtAPIKey,
	}
	switch cfg.mtTransport {
	case "fetch":
		providerConfig.Fetch = apitrc.Fetch
	default:
		providerConfig.HTTPClient = http.DefaultClient
	}

	provider, err := treasury.NewClient(providerConfig)
	if err != nil {
		return fmt.Errorf("create provider client: %w", err)
	}

	cfg.info.Printf("provider: %s (%s)", cfg.mtBaseURL, cfg.mtTransport)

	api, debug := cfg.handlers(provider)

	var g run.Group

	if err := cfg.addServer(ctx, &g, cfg.listenAddr, api); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if debug != nil {
		if err := cfg.addServer(ctx, &g, cfg.debugAddr, debug); err != nil {
			return fmt.Errorf("debug: %w", err)
		}
	} else {
		cfg.debug.Printf("no debug address, call stream and metrics disabled")
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	return g.Run()
}

// handlers returns the public API handler, and the debug handler serving the
// call stream and metrics. Streamed exchanges carry the captured calls of every
// client's requests, so the debug handler is only built, and returned
// non-nil, when a separate debug address is configured.
func (cfg *serveConfig) handlers(provider dashboard.Provider) (api, debug http.Handler) {
	observers := []apitrc.ObserveFunc{cfg.logExchange}

	if cfg.debugAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		var (
			metrics      = apitrcprom.NewMetrics(registry)
			streamServer = apitrcweb.NewStreamServer(cfg.streamBuffer)
		)
		observers = append(observers, metrics.Observe, streamServer.Observe)

		debugMux := http.NewServeMux()
		debugMux.Handle("/debug/calls/stream", streamServer)
		debugMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		debug = debugMux
	}

	apiMux := http.NewServeMux()
	apiMux.Handle("/api/", dashboard.NewHandler(dashboard.Config{
		Provider:   provider,
		Middleware: apitrc.Middleware(observers...),
		ErrorLog:   cfg.info,
	}))

	return apiMux, debug
}

// addServer listens on addr, and adds an actor serving h to the group.
func (cfg *serveConfig) addServer(ctx context.Context, g *run.Group, addr string, h http.Handler) error {
	ln, err := unixproxy.ListenURI(ctx, addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	cfg.info.Printf("listening on %s", addr)

	server := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Add(func() error {
		return server.Serve(ln)
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			cfg.info.Printf("shutdown %s: %v", addr, err)
		}
	})

	return nil
}

func (cfg *serveConfig) logExchange(ex *apitrc.Exchange) {
	cfg.debug.Printf(
		"%s %s: %d, %s, %d call(s), %s",
		ex.Method, ex.Path, ex.Status,
		apitrcutil.HumanizeBytes(ex.Size),
		len(ex.Calls),
		apitrcutil.HumanizeDuration(ex.Duration),
	)
	for _, c := range ex.Calls {
		cfg.trace.Printf("%s: %s", ex.ID, formatCall(c))
	}
	if ex.Dropped > 0 {
		cfg.debug.Printf("%s %s: %d late call(s) dropped", ex.Method, ex.Path, ex.Dropped)
	}
}
