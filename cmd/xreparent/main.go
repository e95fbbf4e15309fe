// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/xreparent/lib/config"
	"github.com/bureau-foundation/xreparent/lib/display"
	"github.com/bureau-foundation/xreparent/lib/process"
	"github.com/bureau-foundation/xreparent/lib/version"
	"github.com/bureau-foundation/xreparent/lib/xtrace"
	"github.com/bureau-foundation/xreparent/lib/xwire"
	"github.com/bureau-foundation/xreparent/xproxy"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// workloadStopGrace is how long a workload has to exit after SIGTERM
// before it is killed.
const workloadStopGrace = 10 * time.Second

// errHelp is returned by parseArguments after printing usage.
var errHelp = errors.New("help requested")

// invocation is the fully resolved command line.
type invocation struct {
	config  *config.Config
	parent  uint32
	command []string
	version bool
}

func parseArguments(args []string, usage io.Writer) (*invocation, error) {
	var (
		configPath       string
		upstream         string
		listen           string
		tracePath        string
		traceCompression string
		orphanTimeout    time.Duration
		waitUpstream     time.Duration
		ioTimeout        time.Duration
		bufferSize       int
		verbose          bool
		showVersion      bool
	)

	flagSet := pflag.NewFlagSet("xreparent", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(usage)
	flagSet.StringVar(&configPath, "config", "", "config file (YAML or JSONC), also $"+config.EnvironmentVariable)
	flagSet.StringVar(&upstream, "display", "", "upstream display (default $DISPLAY)")
	flagSet.StringVar(&listen, "listen", config.DefaultListen, "synthetic display to create")
	flagSet.StringVar(&tracePath, "trace", "", "write a protocol trace to this file")
	flagSet.StringVar(&traceCompression, "trace-compression", "zstd", "trace compression: none, zstd or lz4")
	flagSet.DurationVar(&orphanTimeout, "orphan-timeout", 0, "exit if the workload exits and no client connects within this long (0 waits forever)")
	flagSet.DurationVar(&waitUpstream, "wait-display", 0, "wait this long for the upstream display's socket to appear")
	flagSet.DurationVar(&ioTimeout, "io-timeout", 0, "deadline for each read and write on a proxied connection (0 = none)")
	flagSet.IntVar(&bufferSize, "buffer-size", 0, "per-direction read buffer in bytes (0 = default)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() { printUsage(usage, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, errHelp
		}
		return nil, err
	}
	if showVersion {
		return &invocation{version: true}, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// Flags given explicitly override the file.
	if flagSet.Changed("display") {
		cfg.Upstream = upstream
	}
	if flagSet.Changed("listen") {
		cfg.Listen = listen
	}
	if flagSet.Changed("trace") {
		cfg.Trace.Path = tracePath
	}
	if flagSet.Changed("trace-compression") {
		cfg.Trace.Compression = traceCompression
	}
	if flagSet.Changed("orphan-timeout") {
		cfg.OrphanTimeout = config.Duration(orphanTimeout)
	}
	if flagSet.Changed("wait-display") {
		cfg.WaitUpstream = config.Duration(waitUpstream)
	}
	if flagSet.Changed("io-timeout") {
		cfg.IOTimeout = config.Duration(ioTimeout)
	}
	if flagSet.Changed("buffer-size") {
		cfg.BufferSize = bufferSize
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	positional := flagSet.Args()
	parentText := cfg.Parent
	if parentText == "" {
		if len(positional) == 0 {
			printUsage(usage, flagSet)
			return nil, errors.New("missing PARENT_XID_HEX")
		}
		parentText, positional = positional[0], positional[1:]
	}
	parent, err := xwire.ParseWindowID(parentText)
	if err != nil {
		return nil, err
	}

	return &invocation{
		config:  cfg,
		parent:  parent,
		command: positional,
	}, nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Run an X11 client inside another application's window.

Usage:
  xreparent [flags] PARENT_XID_HEX [command [args...]]

Windows the client creates on the root window are created as children
of PARENT_XID_HEX instead. The command runs with DISPLAY set to the
synthetic display; without one, xreparent serves until interrupted.

Examples:
  # Run xclock inside the window picked with xwininfo
  xreparent 0x3e00007 xclock

  # Serve :42 and record a trace for later inspection
  xreparent --listen :42 --trace /tmp/xclock.trace 0x3e00007

Flags:
`)
	fmt.Fprint(w, flagSet.FlagUsages())
}

// newLogger picks a human-readable handler on a terminal and JSON
// otherwise, unless the configuration names a format.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	format := cfg.Log.Format
	if format == "" || format == "auto" {
		format = "json"
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "text"
		}
	}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler), nil
}

func run(args []string) error {
	parsed, err := parseArguments(args, os.Stderr)
	if errors.Is(err, errHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if parsed.version {
		fmt.Printf("xreparent %s\n", version.Full())
		return nil
	}
	cfg := parsed.config

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	var upstream display.Address
	if cfg.Upstream == "" {
		upstream, err = display.FromEnvironment()
	} else {
		upstream, err = display.Resolve(cfg.Upstream)
	}
	if err != nil {
		return fmt.Errorf("upstream display: %w", err)
	}
	listen, err := display.Resolve(cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen display: %w", err)
	}
	if listen.Path == upstream.Path {
		return fmt.Errorf("listen display %s is the upstream display", listen)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.WaitUpstream > 0 {
		logger.Info("waiting for upstream display", "display", upstream.String(), "timeout", time.Duration(cfg.WaitUpstream).String())
		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.WaitUpstream))
		err := upstream.WaitForSocket(waitCtx)
		cancel()
		if err != nil {
			return err
		}
	}

	supervisor := &xproxy.Supervisor{
		Upstream:      upstream,
		Target:        parsed.parent,
		BufferSize:    cfg.BufferSize,
		IOTimeout:     time.Duration(cfg.IOTimeout),
		OrphanTimeout: time.Duration(cfg.OrphanTimeout),
		Logger:        logger,
	}

	if cfg.Trace.Path != "" {
		recorder, err := openTrace(cfg, upstream, listen, parsed.parent)
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error("closing trace", "path", cfg.Trace.Path, "error", err)
				return
			}
			logger.Info("trace written", "path", cfg.Trace.Path, "records", recorder.Count())
		}()
		supervisor.Tracer = recorder
	}

	if err := supervisor.Listen(listen); err != nil {
		return err
	}
	defer supervisor.Close()

	logger.Info("starting xreparent",
		"version", version.Info(),
		"upstream", upstream.String(),
		"listen", listen.String(),
		"parent", fmt.Sprintf("%#x", parsed.parent),
	)

	var workload *process.Workload
	if len(parsed.command) > 0 {
		workload, err = process.StartWorkload(parsed.command, listen.Environ())
		if err != nil {
			return err
		}
		logger.Info("workload started", "command", parsed.command[0], "pid", workload.Pid())
		go func() {
			<-workload.Done()
			logger.Info("workload exited", "exit_code", workload.ExitCode())
			supervisor.WorkloadExited()
		}()
	}

	serveErr := supervisor.Serve(ctx)

	if workload != nil {
		if err := workload.Stop(workloadStopGrace); err != nil {
			logger.Warn("stopping workload", "error", err)
		}
		if err := workload.Err(); process.WaitFailed(err) {
			serveErr = errors.Join(serveErr, fmt.Errorf("waiting for workload: %w", err))
		}
	}
	if serveErr != nil {
		return serveErr
	}

	logger.Info("shutdown complete", "connections", supervisor.Served())
	return nil
}

func openTrace(cfg *config.Config, upstream, listen display.Address, parent uint32) (*xtrace.Recorder, error) {
	compression, err := xtrace.ParseCompression(cfg.Trace.Compression)
	if err != nil {
		return nil, err
	}
	return xtrace.Create(cfg.Trace.Path, compression, xtrace.Header{
		Upstream: upstream.String(),
		Listen:   listen.String(),
		Target:   parent,
		Producer: version.Producer("xreparent"),
	}, nil)
}
