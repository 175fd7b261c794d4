package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmspipe/kmspipe-go/pkg/event"
	"github.com/kmspipe/kmspipe-go/pkg/present"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kmspipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultDevicePath, cfg.DevicePath)
	assert.Equal(t, present.DefaultQueueDepth, cfg.QueueDepth)
	assert.Equal(t, present.DefaultCacheSize, cfg.CacheSize)
	assert.Equal(t, event.DefaultPollTimeout, cfg.PollTimeoutDuration())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
device_path: /dev/dri/card1
queue_depth: 4
queue_depths:
  1: 1
poll_timeout: 250ms
vsync_offscreen: true
trace:
  path: /tmp/kmspipe.trace
  compress: true
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/dri/card1", cfg.DevicePath)
	assert.Equal(t, 4, cfg.QueueDepth)
	assert.Equal(t, map[int]int{1: 1}, cfg.QueueDepths)
	// Unmentioned fields keep their defaults.
	assert.Equal(t, present.DefaultCacheSize, cfg.CacheSize)
	assert.Equal(t, 250*time.Millisecond, cfg.PollTimeoutDuration())
	assert.True(t, cfg.VSyncOffscreen)
	assert.Equal(t, "/tmp/kmspipe.trace", cfg.Trace.Path)
	assert.True(t, cfg.Trace.Compress)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "queue_depth: [nope")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "log_level: loud")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty device path", func(c *Config) { c.DevicePath = "" }, false},
		{"negative queue depth", func(c *Config) { c.QueueDepth = -1 }, false},
		{"zero depth override", func(c *Config) { c.QueueDepths = map[int]int{0: 0} }, false},
		{"negative display override", func(c *Config) { c.QueueDepths = map[int]int{-1: 2} }, false},
		{"negative cache size", func(c *Config) { c.CacheSize = -2 }, false},
		{"bad poll timeout", func(c *Config) { c.PollTimeout = "soon" }, false},
		{"empty poll timeout", func(c *Config) { c.PollTimeout = "" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"empty log level", func(c *Config) { c.LogLevel = "" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	levels := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for name, want := range levels {
		cfg := Default()
		cfg.LogLevel = name
		assert.Equal(t, want, cfg.SlogLevel(), "log_level %q", name)
	}
}
