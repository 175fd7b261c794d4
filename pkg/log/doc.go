// Package log provides structured display-event tracing for kmspipe.
//
// This package defines the Logger interface and Event types for capturing
// display pipeline events at every layer (discovery, configuration, frame
// presentation, kernel events). It is separate from operational logging
// (slog) - the trace provides a complete machine-readable record for
// debugging mode-set and presentation problems after the fact.
//
// # Basic Usage
//
// Applications configure tracing by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Trace, _ = log.NewFileLogger("/var/log/kmspipe/display.ktrace")
//
//	// Long captures: zstd-compressed file
//	cfg.Trace, _ = log.NewCompressedFileLogger("/var/log/kmspipe/display.ktrace.zst")
//
//	// Both: use MultiLogger
//	cfg.Trace = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Discovery: topology enumeration and pipeline binding
//   - Config: mode-set commits, power changes
//   - Frame: queue/drop/present lifecycle per display
//   - Event: hotplug and vsync records from the kernel
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Trace files use CBOR encoding with .ktrace extension (.ktrace.zst when
// compressed). The kmspipe-log CLI tool provides viewing, filtering, and
// export capabilities.
package log
