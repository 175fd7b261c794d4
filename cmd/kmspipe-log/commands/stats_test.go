package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kmspipe/kmspipe-go/pkg/log"
)

func TestStatsCountsByCategory(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Display: log.NoDisplay, Category: log.CategoryDiscovery,
			Discovery: &log.DiscoveryEvent{Crtcs: 2}},
		{Timestamp: ts, Display: 0, Category: log.CategoryConfig,
			ModeSet: &log.ModeSetEvent{Mode: "1920x1080@60"}},
		{Timestamp: ts, Display: 0, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Action: log.FrameQueued}},
		{Timestamp: ts, Display: 0, Category: log.CategoryError,
			Error: &log.ErrorEventData{Message: "test"}},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	// Check category counts
	if !strings.Contains(output, "DISCOVERY:") {
		t.Error("expected DISCOVERY category in output")
	}
	if !strings.Contains(output, "CONFIG:") {
		t.Error("expected CONFIG category in output")
	}
	if !strings.Contains(output, "FRAME:") {
		t.Error("expected FRAME category in output")
	}
	if !strings.Contains(output, "ERROR:") {
		t.Error("expected ERROR category in output")
	}
}

func TestStatsFrameLifecycle(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Display: 0, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Action: log.FrameQueued}},
		{Timestamp: ts, Display: 0, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Action: log.FrameQueued}},
		{Timestamp: ts, Display: 0, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Action: log.FrameDropped}},
		{Timestamp: ts, Display: 0, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Action: log.FramePresented}},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "QUEUED:") {
		t.Error("expected QUEUED count in output")
	}
	if !strings.Contains(output, "DROPPED:") {
		t.Error("expected DROPPED count in output")
	}
	if !strings.Contains(output, "PRESENTED:") {
		t.Error("expected PRESENTED count in output")
	}
	if !strings.Contains(output, "1 dropped") {
		t.Errorf("expected per-display drop count, got:\n%s", output)
	}
}

func TestStatsCommitFailureRate(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	dur := 800 * time.Microsecond
	events := []log.Event{
		{Timestamp: ts, Display: 0, Category: log.CategoryFrame,
			Commit: &log.CommitEvent{Properties: 2, Duration: &dur}},
		{Timestamp: ts, Display: 0, Category: log.CategoryFrame,
			Commit: &log.CommitEvent{Properties: 2, Duration: &dur}},
		{Timestamp: ts, Display: 0, Category: log.CategoryFrame,
			Commit: &log.CommitEvent{Properties: 13, Failed: true, Message: "rejected"}},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Commits: 3 (1 failed, 33.3% failure rate)") {
		t.Errorf("expected commit failure rate, got:\n%s", output)
	}
	if !strings.Contains(output, "Commit Time: avg") {
		t.Errorf("expected average commit time, got:\n%s", output)
	}
}

func TestStatsVSyncIntervals(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	period := 16666667 * time.Nanosecond
	var events []log.Event
	for i := 0; i < 4; i++ {
		hw := ts.Add(time.Duration(i) * period)
		events = append(events, log.Event{
			Timestamp: hw.Add(40 * time.Microsecond),
			SessionID: "s",
			Display:   0,
			Category:  log.CategoryEvent,
			VSync: &log.VSyncEvent{
				Sequence: uint64(i + 1),
				Hardware: hw.UnixNano(),
			},
		})
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "VSync: 4 events") {
		t.Errorf("expected vsync count, got:\n%s", output)
	}
	// All intervals equal the hardware period
	if !strings.Contains(output, "interval min/avg/max 16.667ms/16.667ms/16.667ms") {
		t.Errorf("expected vsync intervals, got:\n%s", output)
	}
}

func TestStatsTotalEvents(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Category: log.CategoryFrame},
		{Timestamp: ts, Category: log.CategoryFrame},
		{Timestamp: ts, Category: log.CategoryFrame},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Total Events: 3") {
		t.Errorf("expected 3 total events in output, got:\n%s", output)
	}
}

func TestStatsTimeRange(t *testing.T) {
	start := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 3, 11, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: start, Category: log.CategoryFrame},
		{Timestamp: end, Category: log.CategoryFrame},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Duration:") {
		t.Error("expected Duration in output")
	}
	if !strings.Contains(output, "1h0m0s") {
		t.Errorf("expected 1h0m0s duration in output, got:\n%s", output)
	}
}

func TestStatsSessions(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, SessionID: "sess-aaaa-bbbb", Category: log.CategoryFrame},
		{Timestamp: ts.Add(time.Second), SessionID: "sess-aaaa-bbbb", Category: log.CategoryFrame},
		{Timestamp: ts.Add(2 * time.Second), SessionID: "sess-cccc-dddd", Category: log.CategoryFrame},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Sessions: 2") {
		t.Errorf("expected 2 sessions in output, got:\n%s", output)
	}
	if !strings.Contains(output, "[sess-aaa") {
		t.Error("expected sess-aaaa session details")
	}
}

func TestStatsErrorCount(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Category: log.CategoryFrame},
		{Timestamp: ts, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "error 1"}},
		{Timestamp: ts, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "error 2"}},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Errors: 2") {
		t.Errorf("expected 2 errors in output, got:\n%s", output)
	}
}
