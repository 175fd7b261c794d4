// Package config loads the library's file configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kmspipe/kmspipe-go/pkg/event"
	"github.com/kmspipe/kmspipe-go/pkg/present"
)

// DefaultDevicePath is the card node opened when the config names none.
const DefaultDevicePath = "/dev/dri/card0"

// ErrInvalid reports a configuration that fails validation.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the file-backed configuration. Zero fields fall back to the
// defaults from Default.
type Config struct {
	// DevicePath is the DRM card node to open.
	DevicePath string `yaml:"device_path"`

	// QueueDepth bounds each display's pending frames.
	QueueDepth int `yaml:"queue_depth"`

	// QueueDepths overrides QueueDepth per logical display index.
	QueueDepths map[int]int `yaml:"queue_depths"`

	// CacheSize is the per-display framebuffer import cache size.
	CacheSize int `yaml:"cache_size"`

	// PollTimeout bounds event descriptor waits, in time.ParseDuration
	// form ("1s", "250ms").
	PollTimeout string `yaml:"poll_timeout"`

	// VSyncOffscreen keeps vsync callbacks flowing for displays whose
	// output disconnects.
	VSyncOffscreen bool `yaml:"vsync_offscreen"`

	// Trace configures the machine-readable event trace file.
	Trace TraceConfig `yaml:"trace"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
}

// TraceConfig configures the event trace output.
type TraceConfig struct {
	// Path is the trace file; empty disables tracing.
	Path string `yaml:"path"`

	// Compress writes the trace zstd-compressed.
	Compress bool `yaml:"compress"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		DevicePath:  DefaultDevicePath,
		QueueDepth:  present.DefaultQueueDepth,
		CacheSize:   present.DefaultCacheSize,
		PollTimeout: event.DefaultPollTimeout.String(),
		LogLevel:    "info",
	}
}

// Load reads the config file at path, overlaying it on the defaults. A
// missing file yields the defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	if c.DevicePath == "" {
		return fmt.Errorf("%w: empty device_path", ErrInvalid)
	}
	if c.QueueDepth < 0 {
		return fmt.Errorf("%w: queue_depth %d", ErrInvalid, c.QueueDepth)
	}
	for display, depth := range c.QueueDepths {
		if display < 0 || depth < 1 {
			return fmt.Errorf("%w: queue_depths[%d] = %d", ErrInvalid, display, depth)
		}
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache_size %d", ErrInvalid, c.CacheSize)
	}
	if c.PollTimeout != "" {
		if _, err := time.ParseDuration(c.PollTimeout); err != nil {
			return fmt.Errorf("%w: poll_timeout %q", ErrInvalid, c.PollTimeout)
		}
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	return nil
}

// PollTimeoutDuration returns the parsed poll timeout, zero when unset
// or unparseable so the listener picks its default.
func (c *Config) PollTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.PollTimeout)
	if err != nil {
		return 0
	}
	return d
}

// SlogLevel maps the configured log level onto slog's scale.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
