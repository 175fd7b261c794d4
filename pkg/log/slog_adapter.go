package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes display events to an slog.Logger.
// Useful for development when you want to see trace events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("category", event.Category.String()),
	}

	if event.Display != NoDisplay {
		attrs = append(attrs, slog.Int("display", event.Display))
	}

	// Add type-specific attributes
	switch {
	case event.Discovery != nil:
		attrs = append(attrs,
			slog.Int("crtcs", event.Discovery.Crtcs),
			slog.Int("encoders", event.Discovery.Encoders),
			slog.Int("connectors", event.Discovery.Connectors),
			slog.Int("planes", event.Discovery.Planes),
		)
	case event.Pipe != nil:
		attrs = append(attrs,
			slog.Uint64("connector", uint64(event.Pipe.Connector)),
			slog.Bool("bound", event.Pipe.Bound),
		)
		if event.Pipe.Bound {
			attrs = append(attrs,
				slog.Uint64("encoder", uint64(event.Pipe.Encoder)),
				slog.Uint64("crtc", uint64(event.Pipe.Crtc)),
			)
		}
		if event.Pipe.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Pipe.Reason))
		}
	case event.ModeSet != nil:
		attrs = append(attrs,
			slog.Uint64("crtc", uint64(event.ModeSet.Crtc)),
			slog.Uint64("blob", uint64(event.ModeSet.BlobID)),
			slog.String("mode", event.ModeSet.Mode),
		)
		if event.ModeSet.Deferred {
			attrs = append(attrs, slog.Bool("deferred", true))
		}
	case event.Commit != nil:
		attrs = append(attrs,
			slog.Int("properties", event.Commit.Properties),
			slog.Bool("modeset", event.Commit.Modeset),
		)
		if event.Commit.FBID != 0 {
			attrs = append(attrs, slog.Uint64("fb", uint64(event.Commit.FBID)))
		}
		if event.Commit.Duration != nil {
			attrs = append(attrs, slog.Duration("duration", *event.Commit.Duration))
		}
		if event.Commit.Failed {
			attrs = append(attrs,
				slog.Bool("failed", true),
				slog.String("message", event.Commit.Message),
			)
		}
	case event.Hotplug != nil:
		attrs = append(attrs,
			slog.Uint64("connector", uint64(event.Hotplug.Connector)),
			slog.Bool("connected", event.Hotplug.Connected),
		)
		if event.Hotplug.Connected {
			attrs = append(attrs, slog.Int("modes", event.Hotplug.Modes))
		}
	case event.VSync != nil:
		attrs = append(attrs, slog.Uint64("sequence", event.VSync.Sequence))
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("action", event.Frame.Action.String()),
			slog.Uint64("buffer", event.Frame.BufferKey),
		)
		if event.Frame.FBID != 0 {
			attrs = append(attrs, slog.Uint64("fb", uint64(event.Frame.FBID)))
		}
		if event.Frame.Point != 0 {
			attrs = append(attrs, slog.Uint64("point", event.Frame.Point))
		}
	case event.Power != nil:
		attrs = append(attrs,
			slog.Uint64("connector", uint64(event.Power.Connector)),
			slog.String("power", event.Power.Mode.String()),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_context", event.Error.Context),
			slog.String("error_msg", event.Error.Message),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "display", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
