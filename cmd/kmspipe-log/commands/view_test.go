package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/log"
)

func TestFormatFrameEvent(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 15, 32, 123456000, time.UTC)
	event := log.Event{
		Timestamp: ts,
		SessionID: "abc12345-6789-0123-4567-890abcdef012",
		Display:   0,
		Category:  log.CategoryFrame,
		Frame: &log.FrameEvent{
			Action:     log.FrameQueued,
			BufferKey:  7,
			QueueDepth: 2,
			Point:      12,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	// Check timestamp format
	if !strings.Contains(output, "2026-02-03T10:15:32.123456Z") {
		t.Errorf("expected microsecond timestamp, got: %s", output)
	}

	// Check session ID (shortened)
	if !strings.Contains(output, "[sess:abc12345]") {
		t.Errorf("expected shortened session ID, got: %s", output)
	}

	// Check display column and category
	if !strings.Contains(output, "d0") {
		t.Errorf("expected display column, got: %s", output)
	}
	if !strings.Contains(output, "FRAME") {
		t.Errorf("expected FRAME category, got: %s", output)
	}

	// Check action label and details
	if !strings.Contains(output, "QUEUED") {
		t.Errorf("expected QUEUED label, got: %s", output)
	}
	if !strings.Contains(output, "Buffer: 7") {
		t.Errorf("expected buffer key, got: %s", output)
	}
	if !strings.Contains(output, "Point: 12") {
		t.Errorf("expected timeline point, got: %s", output)
	}
}

func TestFormatCommitEvent(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 15, 32, 0, time.UTC)
	dur := 812 * time.Microsecond
	event := log.Event{
		Timestamp: ts,
		SessionID: "abc12345",
		Display:   0,
		Category:  log.CategoryFrame,
		Commit: &log.CommitEvent{
			Properties: 2,
			FBID:       31,
			Duration:   &dur,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "Commit") {
		t.Errorf("expected Commit label, got: %s", output)
	}
	if !strings.Contains(output, "Properties: 2") {
		t.Errorf("expected property count, got: %s", output)
	}
	if !strings.Contains(output, "FBID: 31") {
		t.Errorf("expected FBID, got: %s", output)
	}
	if !strings.Contains(output, "Duration:") {
		t.Errorf("expected Duration, got: %s", output)
	}
}

func TestFormatFailedCommitEvent(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 15, 32, 0, time.UTC)
	event := log.Event{
		Timestamp: ts,
		SessionID: "abc12345",
		Display:   0,
		Category:  log.CategoryFrame,
		Commit: &log.CommitEvent{
			Properties: 13,
			Modeset:    true,
			Failed:     true,
			Message:    "device rejected transaction",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "Modeset: true") {
		t.Errorf("expected modeset marker, got: %s", output)
	}
	if !strings.Contains(output, "Failed: device rejected transaction") {
		t.Errorf("expected failure message, got: %s", output)
	}
}

func TestFormatModeSetEvent(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 15, 30, 0, time.UTC)
	event := log.Event{
		Timestamp: ts,
		SessionID: "abc12345",
		Display:   1,
		Category:  log.CategoryConfig,
		ModeSet: &log.ModeSetEvent{
			Crtc:     41,
			BlobID:   77,
			Mode:     "1920x1080@60",
			Deferred: true,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "ModeSet") {
		t.Errorf("expected ModeSet label, got: %s", output)
	}
	if !strings.Contains(output, "1920x1080@60") {
		t.Errorf("expected mode string, got: %s", output)
	}
	if !strings.Contains(output, "Deferred") {
		t.Errorf("expected deferred marker, got: %s", output)
	}
}

func TestFormatHotplugEvent(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 15, 35, 0, time.UTC)
	event := log.Event{
		Timestamp: ts,
		SessionID: "abc12345",
		Display:   0,
		Category:  log.CategoryEvent,
		Hotplug: &log.HotplugEvent{
			Connector: 33,
			Connected: true,
			Modes:     5,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "Hotplug") {
		t.Errorf("expected Hotplug label, got: %s", output)
	}
	if !strings.Contains(output, "Connector 33 connected") {
		t.Errorf("expected connector transition, got: %s", output)
	}
	if !strings.Contains(output, "5 modes") {
		t.Errorf("expected mode count, got: %s", output)
	}
}

func TestFormatVSyncEvent(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 15, 32, 0, time.UTC)
	event := log.Event{
		Timestamp: ts,
		SessionID: "abc12345",
		Display:   0,
		Category:  log.CategoryEvent,
		VSync: &log.VSyncEvent{
			Sequence: 1204,
			Hardware: ts.Add(-50 * time.Microsecond).UnixNano(),
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "VSync") {
		t.Errorf("expected VSync label, got: %s", output)
	}
	if !strings.Contains(output, "Sequence: 1204") {
		t.Errorf("expected sequence, got: %s", output)
	}
	if !strings.Contains(output, "Hardware:") {
		t.Errorf("expected hardware timestamp, got: %s", output)
	}
}

func TestFormatPowerEvent(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 16, 0, 0, time.UTC)
	event := log.Event{
		Timestamp: ts,
		SessionID: "abc12345",
		Display:   0,
		Category:  log.CategoryConfig,
		Power: &log.PowerEvent{
			Connector: 33,
			Mode:      kms.DPMSOff,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "Power") {
		t.Errorf("expected Power label, got: %s", output)
	}
	if !strings.Contains(output, "Connector 33 -> off") {
		t.Errorf("expected power transition, got: %s", output)
	}
}

func TestFormatErrorEvent(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 15, 40, 0, time.UTC)
	event := log.Event{
		Timestamp: ts,
		SessionID: "abc12345",
		Display:   log.NoDisplay,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Context: "import buffer",
			Message: "no space left on device",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "card") {
		t.Errorf("expected card-level display column, got: %s", output)
	}
	if !strings.Contains(output, "Context: import buffer") {
		t.Errorf("expected error context, got: %s", output)
	}
	if !strings.Contains(output, "Message: no space left on device") {
		t.Errorf("expected error message, got: %s", output)
	}
}

func TestFilterByDisplay(t *testing.T) {
	events := []log.Event{
		{Display: 0, Category: log.CategoryFrame},
		{Display: 1, Category: log.CategoryFrame},
		{Display: 0, Category: log.CategoryFrame},
	}

	one := 1
	filter := ViewFilter{Display: &one}

	filtered := filterEvents(events, filter)
	if len(filtered) != 1 {
		t.Errorf("expected 1 event, got %d", len(filtered))
	}
	if filtered[0].Display != 1 {
		t.Errorf("expected display 1, got %d", filtered[0].Display)
	}
}

func TestFilterByCategory(t *testing.T) {
	events := []log.Event{
		{Category: log.CategoryDiscovery},
		{Category: log.CategoryConfig},
		{Category: log.CategoryFrame},
		{Category: log.CategoryError},
	}

	config := log.CategoryConfig
	filter := ViewFilter{Category: &config}

	filtered := filterEvents(events, filter)
	if len(filtered) != 1 {
		t.Errorf("expected 1 event, got %d", len(filtered))
	}
	if filtered[0].Category != log.CategoryConfig {
		t.Errorf("expected config category, got %v", filtered[0].Category)
	}
}

func TestFilterBySession(t *testing.T) {
	events := []log.Event{
		{SessionID: "sess-1", Category: log.CategoryFrame},
		{SessionID: "sess-2", Category: log.CategoryFrame},
		{SessionID: "sess-1", Category: log.CategoryFrame},
	}

	filter := ViewFilter{SessionID: "sess-2"}

	filtered := filterEvents(events, filter)
	if len(filtered) != 1 {
		t.Errorf("expected 1 event, got %d", len(filtered))
	}
	if filtered[0].SessionID != "sess-2" {
		t.Errorf("expected sess-2, got %s", filtered[0].SessionID)
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input    string
		expected log.Category
		wantErr  bool
	}{
		{"discovery", log.CategoryDiscovery, false},
		{"DISCOVERY", log.CategoryDiscovery, false},
		{"config", log.CategoryConfig, false},
		{"frame", log.CategoryFrame, false},
		{"event", log.CategoryEvent, false},
		{"error", log.CategoryError, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		got, err := parseCategory(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseCategory(%q) expected error", tt.input)
			}
		} else {
			if err != nil {
				t.Errorf("parseCategory(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("parseCategory(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		}
	}
}

func TestParseDisplay(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{"0", 0, false},
		{"2", 2, false},
		{"card", log.NoDisplay, false},
		{"CARD", log.NoDisplay, false},
		{"-2", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := parseDisplay(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDisplay(%q) expected error", tt.input)
			}
		} else {
			if err != nil {
				t.Errorf("parseDisplay(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("parseDisplay(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		}
	}
}

func TestRunViewFiltersFile(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, SessionID: "s", Display: 0, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Action: log.FrameQueued, BufferKey: 1}},
		{Timestamp: ts, SessionID: "s", Display: 1, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Action: log.FrameQueued, BufferKey: 2}},
	}

	path := createTestLogFile(t, events)

	one := 1
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Display: &one}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Buffer: 2") {
		t.Errorf("expected display 1 event, got: %s", output)
	}
	if strings.Contains(output, "Buffer: 1") {
		t.Errorf("display 0 event should be filtered out, got: %s", output)
	}
}
