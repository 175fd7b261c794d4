package event

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kmspipe/kmspipe-go/internal/kmstest"
	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/log"
	"github.com/kmspipe/kmspipe-go/pkg/worker"
)

type hotplugRecorder struct {
	ch chan struct{}
}

func newHotplugRecorder() *hotplugRecorder {
	return &hotplugRecorder{ch: make(chan struct{}, 8)}
}

func (h *hotplugRecorder) HandleHotplugEvent() {
	h.ch <- struct{}{}
}

type vsyncRecord struct {
	timestamp time.Time
	sequence  uint64
}

type vsyncRecorder struct {
	ch chan vsyncRecord
}

func newVSyncRecorder() *vsyncRecorder {
	return &vsyncRecorder{ch: make(chan vsyncRecord, 8)}
}

func (v *vsyncRecorder) HandleVSyncEvent(ts time.Time, seq uint64) {
	v.ch <- vsyncRecord{timestamp: ts, sequence: seq}
}

type recordingTrace struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingTrace) Log(ev log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingTrace) all() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}

func newTestListener(t *testing.T, dev kms.Device, trace log.Logger) *Listener {
	t.Helper()
	l := New(dev, Config{
		PollTimeout: 10 * time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Trace:       trace,
		Session:     "test-session",
	})
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(l.Stop)
	return l
}

func TestListenerDispatchesHotplug(t *testing.T) {
	dev, _ := kmstest.NewSingleDisplay()
	l := newTestListener(t, dev, nil)

	h := newHotplugRecorder()
	l.RegisterHotplugHandler(h)

	dev.PushHotplug()

	select {
	case <-h.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("hotplug handler not called")
	}
}

func TestListenerRoutesVSyncByDisplay(t *testing.T) {
	dev, _ := kmstest.NewDualDisplay()
	l := newTestListener(t, dev, nil)

	v0 := newVSyncRecorder()
	v1 := newVSyncRecorder()
	l.RegisterVSyncHandler(0, v0)
	l.RegisterVSyncHandler(1, v1)

	want := time.Unix(100, 2500)
	dev.PushEvent(kms.Event{Type: kms.EventVBlank, Sequence: 7, UserData: 1, Time: want})

	select {
	case rec := <-v1.ch:
		if rec.sequence != 7 {
			t.Errorf("sequence = %d, want 7", rec.sequence)
		}
		if !rec.timestamp.Equal(want) {
			t.Errorf("timestamp = %v, want %v", rec.timestamp, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("vsync handler for display 1 not called")
	}

	select {
	case rec := <-v0.ch:
		t.Fatalf("display 0 handler called with %+v", rec)
	default:
	}
}

func TestListenerSkipsUnroutableVBlank(t *testing.T) {
	dev, _ := kmstest.NewSingleDisplay()
	l := newTestListener(t, dev, nil)

	h := newHotplugRecorder()
	l.RegisterHotplugHandler(h)

	// The hotplug record queued behind the unroutable vblank proves the
	// listener dropped it and kept dispatching.
	dev.PushEvent(kms.Event{Type: kms.EventVBlank, UserData: 9})
	dev.PushHotplug()

	select {
	case <-h.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("listener stopped after unroutable vblank")
	}
}

func TestListenerUnregisterVSyncHandler(t *testing.T) {
	dev, _ := kmstest.NewSingleDisplay()
	l := newTestListener(t, dev, nil)

	v := newVSyncRecorder()
	h := newHotplugRecorder()
	l.RegisterVSyncHandler(0, v)
	l.RegisterHotplugHandler(h)
	l.UnregisterVSyncHandler(0)

	dev.PushEvent(kms.Event{Type: kms.EventVBlank, UserData: 0})
	dev.PushHotplug()

	select {
	case <-h.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("hotplug handler not called")
	}
	select {
	case <-v.ch:
		t.Fatal("unregistered vsync handler called")
	default:
	}
}

func TestListenerDeliversQueuedVBlank(t *testing.T) {
	dev, _ := kmstest.NewSingleDisplay()
	dev.AutoVBlank = true
	l := newTestListener(t, dev, nil)

	v := newVSyncRecorder()
	l.RegisterVSyncHandler(0, v)

	if err := dev.QueueVBlank(0, 0); err != nil {
		t.Fatalf("QueueVBlank failed: %v", err)
	}

	select {
	case rec := <-v.ch:
		if rec.sequence == 0 {
			t.Error("sequence = 0, want hardware counter")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued vblank not delivered")
	}
}

func TestListenerTracesVSync(t *testing.T) {
	dev, _ := kmstest.NewSingleDisplay()
	trace := &recordingTrace{}
	l := newTestListener(t, dev, trace)

	v := newVSyncRecorder()
	l.RegisterVSyncHandler(0, v)

	at := time.Unix(50, 123)
	dev.PushEvent(kms.Event{Type: kms.EventVBlank, Sequence: 3, UserData: 0, Time: at})

	select {
	case <-v.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("vsync handler not called")
	}

	events := trace.all()
	if len(events) != 1 {
		t.Fatalf("got %d trace events, want 1", len(events))
	}
	ev := events[0]
	if ev.Category != log.CategoryEvent {
		t.Errorf("Category = %v, want %v", ev.Category, log.CategoryEvent)
	}
	if ev.Display != 0 {
		t.Errorf("Display = %d, want 0", ev.Display)
	}
	if ev.SessionID != "test-session" {
		t.Errorf("SessionID = %q, want %q", ev.SessionID, "test-session")
	}
	if ev.VSync == nil {
		t.Fatal("VSync payload missing")
	}
	if ev.VSync.Sequence != 3 {
		t.Errorf("Sequence = %d, want 3", ev.VSync.Sequence)
	}
	if ev.VSync.Hardware != at.UnixNano() {
		t.Errorf("Hardware = %d, want %d", ev.VSync.Hardware, at.UnixNano())
	}
}

func TestListenerStopsWhenDeviceCloses(t *testing.T) {
	dev, _ := kmstest.NewSingleDisplay()
	l := New(dev, Config{
		PollTimeout: 10 * time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after device close")
	}
}

func TestListenerStartTwice(t *testing.T) {
	dev, _ := kmstest.NewSingleDisplay()
	l := newTestListener(t, dev, nil)

	if err := l.Start(); !errors.Is(err, worker.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want %v", err, worker.ErrAlreadyStarted)
	}
}
