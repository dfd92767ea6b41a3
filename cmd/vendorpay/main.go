// vendorpay serves the vendor payment dashboard API, and tails the outbound
// calls made by a running server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

func main() {
	var (
		ctx    = context.Background()
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, stdout, stderr io.Writer, args []string) (err error) {
	rootConfig := &rootConfig{
		stdout: stdout,
		stderr: stderr,
	}

	rootFlags := ff.NewFlagSet("vendorpay")
	rootConfig.register(rootFlags)

	rootCommand := &ff.Command{
		Name:      "vendorpay",
		ShortHelp: "vendor payment dashboard backend",
		Flags:     rootFlags,
	}

	// Config for `vendorpay serve`.
	serveConfig := &serveConfig{rootConfig: rootConfig}
	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	serveConfig.register(serveFlags)
	serveCommand := &ff.Command{
		Name:      "serve",
		ShortHelp: "serve the dashboard API",
		LongHelp:  "Serve the dashboard API, backed by the payment provider, with outbound call tracking.",
		Flags:     serveFlags,
		Exec:      serveConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, serveCommand)

	// Config for `vendorpay tail`.
	tailConfig := &tailConfig{rootConfig: rootConfig}
	tailFlags := ff.NewFlagSet("tail").SetParent(rootFlags)
	tailConfig.register(tailFlags)
	tailCommand := &ff.Command{
		Name:      "tail",
		ShortHelp: "stream tracked requests from a running server",
		LongHelp:  "Stream tracked requests, and the outbound calls they made, that match the provided filter flags.",
		Flags:     tailFlags,
		Exec:      tailConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, tailCommand)

	// Print help when appropriate.
	showHelp := true
	defer func() {
		errHelp := errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec)
		if showHelp || errHelp {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
		}
		if errHelp {
			err = nil
		}
	}()

	// Initial parsing.
	if err := rootCommand.Parse(args, ff.WithEnvVarPrefix("VENDORPAY")); err != nil {
		return err
	}

	// Validation and set-up.
	{
		var infodst, debugdst, tracedst io.Writer
		switch rootConfig.logLevel {
		case "n", "none":
			infodst, debugdst, tracedst = io.Discard, io.Discard, io.Discard
		case "i", "info":
			infodst, debugdst, tracedst = stderr, io.Discard, io.Discard
		case "d", "debug":
			infodst, debugdst, tracedst = stderr, stderr, io.Discard
		case "t", "trace":
			infodst, debugdst, tracedst = stderr, stderr, stderr
		default:
			return fmt.Errorf("invalid log level %q", rootConfig.logLevel)
		}
		rootConfig.info = log.New(infodst, "", 0)
		rootConfig.debug = log.New(debugdst, "[DEBUG] ", log.Lmsgprefix)
		rootConfig.trace = log.New(tracedst, "[TRACE] ", log.Lmsgprefix)
	}

	// Run errors shouldn't show help by default.
	showHelp = false

	// Run the selected command.
	return rootCommand.Run(ctx)
}
