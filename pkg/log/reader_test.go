package log

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func createTestTraceFile(t *testing.T, events []Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ktrace")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test trace: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, reader *Reader) []Event {
	t.Helper()
	var read []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}
	return read
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), SessionID: "s-1", Display: 0, Category: CategoryFrame},
		{Timestamp: time.Now(), SessionID: "s-2", Display: 1, Category: CategoryEvent},
		{Timestamp: time.Now(), SessionID: "s-3", Display: NoDisplay, Category: CategoryDiscovery},
	}

	path := createTestTraceFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}

	// Verify order
	if read[0].SessionID != "s-1" {
		t.Errorf("first event SessionID = %q, want %q", read[0].SessionID, "s-1")
	}
	if read[2].SessionID != "s-3" {
		t.Errorf("last event SessionID = %q, want %q", read[2].SessionID, "s-3")
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.ktrace")

	// Create empty file
	logger, _ := NewFileLogger(path)
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got err=%v, event=%+v", err, event)
	}
}

func TestReaderHandlesTruncatedFile(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), SessionID: "s-1", Display: 0, Category: CategoryFrame},
	}

	path := createTestTraceFile(t, events)

	// Chop the last bytes off the single record.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read trace file: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0644); err != nil {
		t.Fatalf("failed to truncate trace file: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err == nil {
		t.Error("expected error for truncated record, got nil")
	}
}

func TestReaderFiltersBySession(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), SessionID: "keep", Display: 0, Category: CategoryFrame},
		{Timestamp: time.Now(), SessionID: "skip", Display: 0, Category: CategoryFrame},
		{Timestamp: time.Now(), SessionID: "keep", Display: 1, Category: CategoryEvent},
	}

	path := createTestTraceFile(t, events)

	reader, err := NewFilteredReader(path, Filter{SessionID: "keep"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 2 {
		t.Fatalf("got %d events, want 2", len(read))
	}
	for i, e := range read {
		if e.SessionID != "keep" {
			t.Errorf("event %d SessionID = %q, want %q", i, e.SessionID, "keep")
		}
	}
}

func TestReaderFiltersByDisplay(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), SessionID: "s", Display: 0, Category: CategoryFrame},
		{Timestamp: time.Now(), SessionID: "s", Display: 1, Category: CategoryFrame},
		{Timestamp: time.Now(), SessionID: "s", Display: 0, Category: CategoryEvent},
		{Timestamp: time.Now(), SessionID: "s", Display: NoDisplay, Category: CategoryDiscovery},
	}

	path := createTestTraceFile(t, events)

	display := 0
	reader, err := NewFilteredReader(path, Filter{Display: &display})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 2 {
		t.Fatalf("got %d events, want 2", len(read))
	}
	for i, e := range read {
		if e.Display != 0 {
			t.Errorf("event %d Display = %d, want 0", i, e.Display)
		}
	}
}

func TestReaderFiltersByCategory(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), SessionID: "s", Display: 0, Category: CategoryFrame},
		{Timestamp: time.Now(), SessionID: "s", Display: 0, Category: CategoryError,
			Error: &ErrorEventData{Context: "commit", Message: "boom"}},
		{Timestamp: time.Now(), SessionID: "s", Display: 0, Category: CategoryFrame},
	}

	path := createTestTraceFile(t, events)

	cat := CategoryError
	reader, err := NewFilteredReader(path, Filter{Category: &cat})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 1 {
		t.Fatalf("got %d events, want 1", len(read))
	}
	if read[0].Error == nil || read[0].Error.Message != "boom" {
		t.Errorf("unexpected error payload: %+v", read[0].Error)
	}
}

func TestReaderFiltersByTimeRange(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, SessionID: "s", Display: 0, Category: CategoryFrame},
		{Timestamp: base.Add(time.Second), SessionID: "s", Display: 0, Category: CategoryFrame},
		{Timestamp: base.Add(2 * time.Second), SessionID: "s", Display: 0, Category: CategoryFrame},
		{Timestamp: base.Add(3 * time.Second), SessionID: "s", Display: 0, Category: CategoryFrame},
	}

	path := createTestTraceFile(t, events)

	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)
	reader, err := NewFilteredReader(path, Filter{TimeStart: &start, TimeEnd: &end})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	// Window is [start, end): events at +1s and +2s qualify.
	read := readAll(t, reader)
	if len(read) != 2 {
		t.Fatalf("got %d events, want 2", len(read))
	}
	if !read[0].Timestamp.Equal(start) {
		t.Errorf("first event Timestamp = %v, want %v", read[0].Timestamp, start)
	}
}

func TestReaderCombinedFilters(t *testing.T) {
	cat := CategoryEvent
	display := 1
	events := []Event{
		{Timestamp: time.Now(), SessionID: "s", Display: 1, Category: CategoryEvent,
			VSync: &VSyncEvent{Sequence: 9}},
		{Timestamp: time.Now(), SessionID: "s", Display: 1, Category: CategoryFrame},
		{Timestamp: time.Now(), SessionID: "s", Display: 0, Category: CategoryEvent},
	}

	path := createTestTraceFile(t, events)

	reader, err := NewFilteredReader(path, Filter{Display: &display, Category: &cat})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 1 {
		t.Fatalf("got %d events, want 1", len(read))
	}
	if read[0].VSync == nil || read[0].VSync.Sequence != 9 {
		t.Errorf("unexpected vsync payload: %+v", read[0].VSync)
	}
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.ktrace"))
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}
