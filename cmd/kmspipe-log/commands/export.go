package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kmspipe/kmspipe-go/pkg/log"
)

// RunExport exports the trace file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	// Write header
	header := []string{"timestamp", "session_id", "display", "category", "type", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		row := []string{
			event.Timestamp.UTC().Format(tsFormat),
			event.SessionID,
			strconv.Itoa(event.Display),
			event.Category.String(),
			eventType(event),
			eventDetail(event),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// eventDetail summarizes the payload in one machine-greppable cell.
func eventDetail(event log.Event) string {
	switch {
	case event.Discovery != nil:
		d := event.Discovery
		return fmt.Sprintf("crtcs=%d encoders=%d connectors=%d planes=%d",
			d.Crtcs, d.Encoders, d.Connectors, d.Planes)
	case event.Pipe != nil:
		p := event.Pipe
		return fmt.Sprintf("connector=%d encoder=%d crtc=%d bound=%t",
			p.Connector, p.Encoder, p.Crtc, p.Bound)
	case event.ModeSet != nil:
		ms := event.ModeSet
		return fmt.Sprintf("mode=%s crtc=%d deferred=%t", ms.Mode, ms.Crtc, ms.Deferred)
	case event.Commit != nil:
		c := event.Commit
		return fmt.Sprintf("props=%d fbid=%d modeset=%t failed=%t",
			c.Properties, c.FBID, c.Modeset, c.Failed)
	case event.Hotplug != nil:
		h := event.Hotplug
		return fmt.Sprintf("connector=%d connected=%t modes=%d", h.Connector, h.Connected, h.Modes)
	case event.VSync != nil:
		return fmt.Sprintf("seq=%d", event.VSync.Sequence)
	case event.Frame != nil:
		f := event.Frame
		return fmt.Sprintf("key=%d fbid=%d depth=%d point=%d",
			f.BufferKey, f.FBID, f.QueueDepth, f.Point)
	case event.Power != nil:
		return fmt.Sprintf("connector=%d mode=%s", event.Power.Connector, event.Power.Mode)
	case event.Error != nil:
		return event.Error.Message
	default:
		return ""
	}
}
