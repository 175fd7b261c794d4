// Package commands implements the kmspipe-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kmspipe/kmspipe-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	SessionID string
	Display   *int
	Category  *log.Category
}

const tsFormat = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [sess:id] display CATEGORY Type
	ts := event.Timestamp.UTC().Format(tsFormat)
	sess := shortenSessionID(event.SessionID)

	fmt.Fprintf(w, "%s [sess:%s] %-4s %-9s %s\n",
		ts, sess, displayLabel(event.Display), event.Category, eventType(event))

	// Type-specific details
	switch {
	case event.Discovery != nil:
		formatDiscoveryDetails(w, event.Discovery)
	case event.Pipe != nil:
		formatPipeDetails(w, event.Pipe)
	case event.ModeSet != nil:
		formatModeSetDetails(w, event.ModeSet)
	case event.Commit != nil:
		formatCommitDetails(w, event.Commit)
	case event.Hotplug != nil:
		formatHotplugDetails(w, event.Hotplug)
	case event.VSync != nil:
		formatVSyncDetails(w, event.VSync)
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Power != nil:
		formatPowerDetails(w, event.Power)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// eventType returns the type label for the event's payload.
func eventType(event log.Event) string {
	switch {
	case event.Discovery != nil:
		return "Discovery"
	case event.Pipe != nil:
		return "Pipe"
	case event.ModeSet != nil:
		return "ModeSet"
	case event.Commit != nil:
		return "Commit"
	case event.Hotplug != nil:
		return "Hotplug"
	case event.VSync != nil:
		return "VSync"
	case event.Frame != nil:
		return event.Frame.Action.String()
	case event.Power != nil:
		return "Power"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// displayLabel renders the display index, "card" for card-level events.
func displayLabel(display int) string {
	if display == log.NoDisplay {
		return "card"
	}
	return "d" + strconv.Itoa(display)
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatDiscoveryDetails writes topology enumeration details.
func formatDiscoveryDetails(w io.Writer, d *log.DiscoveryEvent) {
	fmt.Fprintf(w, "  Crtcs: %d  Encoders: %d  Connectors: %d  Planes: %d\n",
		d.Crtcs, d.Encoders, d.Connectors, d.Planes)
}

// formatPipeDetails writes pipeline binding details.
func formatPipeDetails(w io.Writer, p *log.PipeEvent) {
	if p.Bound {
		fmt.Fprintf(w, "  Connector %d -> encoder %d -> crtc %d\n", p.Connector, p.Encoder, p.Crtc)
		return
	}
	fmt.Fprintf(w, "  Connector %d unbound", p.Connector)
	if p.Reason != "" {
		fmt.Fprintf(w, ": %s", p.Reason)
	}
	fmt.Fprintln(w)
}

// formatModeSetDetails writes mode activation details.
func formatModeSetDetails(w io.Writer, ms *log.ModeSetEvent) {
	fmt.Fprintf(w, "  Mode: %s (crtc %d, blob %d)\n", ms.Mode, ms.Crtc, ms.BlobID)
	if ms.Deferred {
		fmt.Fprintln(w, "  Deferred: applies with the next frame")
	}
}

// formatCommitDetails writes atomic commit details.
func formatCommitDetails(w io.Writer, c *log.CommitEvent) {
	fmt.Fprintf(w, "  Properties: %d\n", c.Properties)
	if c.Modeset {
		fmt.Fprintln(w, "  Modeset: true")
	}
	if c.FBID != 0 {
		fmt.Fprintf(w, "  FBID: %d\n", c.FBID)
	}
	if c.Duration != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*c.Duration))
	}
	if c.Failed {
		fmt.Fprintf(w, "  Failed: %s\n", c.Message)
	}
}

// formatHotplugDetails writes connector transition details.
func formatHotplugDetails(w io.Writer, h *log.HotplugEvent) {
	state := "connected"
	if !h.Connected {
		state = "disconnected"
	}
	fmt.Fprintf(w, "  Connector %d %s", h.Connector, state)
	if h.Modes > 0 {
		fmt.Fprintf(w, ", %d modes", h.Modes)
	}
	fmt.Fprintln(w)
}

// formatVSyncDetails writes vertical blank details.
func formatVSyncDetails(w io.Writer, v *log.VSyncEvent) {
	fmt.Fprintf(w, "  Sequence: %d\n", v.Sequence)
	if v.Hardware != 0 {
		fmt.Fprintf(w, "  Hardware: %s\n", time.Unix(0, v.Hardware).UTC().Format(tsFormat))
	}
}

// formatFrameDetails writes frame lifecycle details.
func formatFrameDetails(w io.Writer, f *log.FrameEvent) {
	if f.BufferKey != 0 {
		fmt.Fprintf(w, "  Buffer: %d\n", f.BufferKey)
	}
	if f.FBID != 0 {
		fmt.Fprintf(w, "  FBID: %d\n", f.FBID)
	}
	if f.QueueDepth != 0 {
		fmt.Fprintf(w, "  QueueDepth: %d\n", f.QueueDepth)
	}
	if f.Point != 0 {
		fmt.Fprintf(w, "  Point: %d\n", f.Point)
	}
}

// formatPowerDetails writes DPMS change details.
func formatPowerDetails(w io.Writer, p *log.PowerEvent) {
	fmt.Fprintf(w, "  Connector %d -> %s\n", p.Connector, p.Mode)
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Context: %s\n", err.Context)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// filterEvents returns events matching the filter criteria.
func filterEvents(events []log.Event, filter ViewFilter) []log.Event {
	var result []log.Event
	for _, e := range events {
		if filter.SessionID != "" && e.SessionID != filter.SessionID {
			continue
		}
		if filter.Display != nil && e.Display != *filter.Display {
			continue
		}
		if filter.Category != nil && e.Category != *filter.Category {
			continue
		}
		result = append(result, e)
	}
	return result
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "discovery":
		return log.CategoryDiscovery, nil
	case "config":
		return log.CategoryConfig, nil
	case "frame":
		return log.CategoryFrame, nil
	case "event":
		return log.CategoryEvent, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be discovery, config, frame, event, or error)", s)
	}
}

// ParseDisplayFlag parses a display index from command-line flag.
// "card" selects card-level events.
func ParseDisplayFlag(s string) (int, error) {
	return parseDisplay(s)
}

// parseDisplay parses a display index. "card" maps to log.NoDisplay.
func parseDisplay(s string) (int, error) {
	if strings.ToLower(s) == "card" {
		return log.NoDisplay, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid display: %s (must be a display index or 'card')", s)
	}
	return n, nil
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		// Apply filter
		if filter.SessionID != "" && event.SessionID != filter.SessionID {
			continue
		}
		if filter.Display != nil && event.Display != *filter.Display {
			continue
		}
		if filter.Category != nil && event.Category != *filter.Category {
			continue
		}

		formatEvent(output, event)
	}

	return nil
}
