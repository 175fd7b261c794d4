//go:build linux

// Command kmsctl is an interactive shell for driving a KMS display
// pipeline from the terminal.
//
// It opens a DRM card (through logind when available, falling back to
// a direct open), brings up the display manager on it, and accepts
// commands for probing connectors, applying modes, changing power
// state, and presenting solid-fill test frames from CPU-filled dumb
// buffers. All pipeline activity can be recorded to a trace file for
// later inspection with kmspipe-log.
//
// Usage:
//
//	kmsctl [flags]
//
// Flags:
//
//	-config string     Configuration file path
//	-device string     DRM card node (overrides config, default /dev/dri/card0)
//	-trace string      Trace file path (overrides config)
//	-trace-compress    Write the trace zstd-compressed
//	-log-level string  Log level: debug, info, warn, error (overrides config)
//	-wait              Wait for the card node to appear before opening
//
// Examples:
//
//	# Probe the default card and present a test frame
//	kmsctl
//
//	# Drive a secondary card with a compressed trace
//	kmsctl -device /dev/dri/card1 -trace /tmp/pipe.trace -trace-compress
//
//	# Wait for a hotpluggable card to show up
//	kmsctl -device /dev/dri/card2 -wait
//
// Interactive Commands:
//
//	list        - List connectors and their displays
//	modes <display> - List the display's modes
//	set-mode <display> <n> - Apply mode <n> from the modes listing
//	dpms <display> <level> - Set power level: on, standby, suspend, off
//	present <display> [color] - Present a solid-fill frame
//	vsync <display> on|off - Toggle vsync reporting
//	status      - Show device and display status
//	quit        - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kmspipe/kmspipe-go/cmd/kmsctl/dumbfb"
	"github.com/kmspipe/kmspipe-go/cmd/kmsctl/interactive"
	"github.com/kmspipe/kmspipe-go/pkg/config"
	"github.com/kmspipe/kmspipe-go/pkg/display"
	"github.com/kmspipe/kmspipe-go/pkg/log"
	"github.com/kmspipe/kmspipe-go/pkg/session"
)

// Options holds the command-line options. It implements
// interactive.ShellConfig.
type Options struct {
	ConfigFile    string
	Device        string
	TracePath     string
	TraceCompress bool
	LogLevel      string
	Wait          bool

	driver string
}

// DevicePath returns the resolved card node.
func (o *Options) DevicePath() string {
	return o.Device
}

// Driver returns the kernel driver identity, when known.
func (o *Options) Driver() string {
	return o.driver
}

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&opts.Device, "device", "", "DRM card node (overrides config)")
	flag.StringVar(&opts.TracePath, "trace", "", "Trace file path (overrides config)")
	flag.BoolVar(&opts.TraceCompress, "trace-compress", false, "Write the trace zstd-compressed")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.BoolVar(&opts.Wait, "wait", false, "Wait for the card node to appear before opening")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kmsctl: %v\n", err)
		os.Exit(1)
	}
	if opts.Device != "" {
		cfg.DevicePath = opts.Device
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.TracePath != "" {
		cfg.Trace.Path = opts.TracePath
	}
	if opts.TraceCompress {
		cfg.Trace.Compress = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "kmsctl: %v\n", err)
		os.Exit(1)
	}
	opts.Device = cfg.DevicePath

	// The log destination moves behind the readline prompt once the
	// shell owns the terminal.
	logOut := newSwitchWriter(os.Stderr)
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.Wait {
		logger.Info("waiting for card", "path", cfg.DevicePath)
		if err := session.WaitForCard(ctx, cfg.DevicePath); err != nil {
			logger.Error("card never appeared", "path", cfg.DevicePath, "err", err)
			os.Exit(1)
		}
	}

	sess := session.New(session.Config{Logger: logger})
	card, err := sess.OpenCard(ctx, cfg.DevicePath)
	if err != nil {
		logger.Error("failed to open card", "path", cfg.DevicePath, "err", err)
		os.Exit(1)
	}
	if drv, err := card.DriverVersion(); err == nil {
		opts.driver = fmt.Sprintf("%s %s", drv.Name, drv.Version())
		logger.Info("card opened", "path", cfg.DevicePath,
			"driver", drv.Name, "version", drv.Version())
	}

	trace := log.Logger(log.NoopLogger{})
	if cfg.Trace.Path != "" {
		var fl *log.FileLogger
		if cfg.Trace.Compress {
			fl, err = log.NewCompressedFileLogger(cfg.Trace.Path)
		} else {
			fl, err = log.NewFileLogger(cfg.Trace.Path)
		}
		if err != nil {
			logger.Error("failed to open trace file", "path", cfg.Trace.Path, "err", err)
			os.Exit(1)
		}
		defer fl.Close()
		trace = fl
	}

	importer := dumbfb.New(card)

	mgr := display.New(card, display.Config{
		Logger:         logger,
		Trace:          trace,
		Importer:       importer,
		QueueDepth:     cfg.QueueDepth,
		QueueDepths:    cfg.QueueDepths,
		CacheSize:      cfg.CacheSize,
		PollTimeout:    cfg.PollTimeoutDuration(),
		VSyncOffscreen: cfg.VSyncOffscreen,
	})
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start display manager", "err", err)
		os.Exit(1)
	}
	logger.Info("pipeline running", "device", cfg.DevicePath, "session", mgr.Session())

	sh, err := interactive.New(mgr, importer, &opts)
	if err != nil {
		logger.Error("failed to create interactive shell", "err", err)
		mgr.Stop()
		os.Exit(1)
	}
	logOut.Set(sh.Stderr())
	go sh.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
	}

	logOut.Set(os.Stderr)
	logger.Info("shutting down")
	mgr.Stop()
	if err := importer.Close(); err != nil {
		logger.Warn("buffer cleanup failed", "err", err)
	}
	if err := card.Close(); err != nil {
		logger.Warn("card close failed", "err", err)
	}
	if err := sess.Close(); err != nil {
		logger.Warn("session close failed", "err", err)
	}
	logger.Info("goodbye")
}

// switchWriter is an io.Writer whose destination can be swapped while
// loggers hold a reference to it.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSwitchWriter(w io.Writer) *switchWriter {
	return &switchWriter{w: w}
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Set redirects subsequent writes to w.
func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}
