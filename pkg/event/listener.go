// Package event runs the card event listener: one dedicated worker
// goroutine that blocks on the device's event descriptors and routes
// hotplug and vertical-blank records to registered handlers.
//
// Hotplug records carry no payload beyond "something changed", so the
// hotplug handler re-probes connectors itself. Vblank and flip-complete
// records are routed by the display index the requester stored in the
// event's user data.
package event

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/log"
	"github.com/kmspipe/kmspipe-go/pkg/worker"
)

// DefaultPollTimeout bounds each wait on the event descriptors so the
// listener notices exit requests between kernel events.
const DefaultPollTimeout = time.Second

// HotplugHandler receives connector change notifications on the
// listener goroutine. Probing what actually changed is the handler's
// job.
type HotplugHandler interface {
	HandleHotplugEvent()
}

// VSyncHandler receives vertical blank completions for one display.
type VSyncHandler interface {
	// HandleVSyncEvent runs on the listener goroutine with the
	// kernel-reported event time and hardware counter.
	HandleVSyncEvent(timestamp time.Time, sequence uint64)
}

// Config carries the collaborators of a Listener. The zero value is
// usable.
type Config struct {
	// PollTimeout bounds each wait on the event descriptors. Zero
	// selects DefaultPollTimeout; shorter values make Stop more
	// responsive at the cost of extra wakeups.
	PollTimeout time.Duration
	// Logger receives human-readable log records.
	Logger *slog.Logger
	// Trace receives machine-readable display events.
	Trace log.Logger
	// Session tags trace events with the owning session id.
	Session string
}

// Listener drains the device's event descriptors on a dedicated worker
// goroutine. Handlers run on that goroutine and must not block: a
// stalled handler stalls event delivery for every display.
type Listener struct {
	dev     kms.Device
	timeout time.Duration
	logger  *slog.Logger
	trace   log.Logger
	session string
	work    *worker.Worker
	errs    *rate.Limiter

	mu      sync.Mutex
	hotplug HotplugHandler
	vsync   map[int]VSyncHandler
}

// New returns a stopped listener over the device.
func New(dev kms.Device, cfg Config) *Listener {
	timeout := cfg.PollTimeout
	if timeout == 0 {
		timeout = DefaultPollTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trace := cfg.Trace
	if trace == nil {
		trace = log.NoopLogger{}
	}
	return &Listener{
		dev:     dev,
		timeout: timeout,
		logger:  logger,
		trace:   trace,
		session: cfg.Session,
		work:    worker.New("event-listener", logger),
		errs:    rate.NewLimiter(rate.Every(5*time.Second), 1),
		vsync:   make(map[int]VSyncHandler),
	}
}

// Start launches the listener goroutine.
func (l *Listener) Start() error {
	return l.work.Start(l.run)
}

// Stop terminates the listener and waits for the goroutine to finish.
// An in-flight handler call completes first.
func (l *Listener) Stop() {
	l.work.Stop()
}

// RegisterHotplugHandler installs the hotplug handler. A nil handler
// disables hotplug dispatch.
func (l *Listener) RegisterHotplugHandler(h HotplugHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hotplug = h
}

// RegisterVSyncHandler installs the vsync handler for one display,
// replacing any previous registration. A nil handler unregisters.
func (l *Listener) RegisterVSyncHandler(display int, h VSyncHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == nil {
		delete(l.vsync, display)
		return
	}
	l.vsync[display] = h
}

// UnregisterVSyncHandler removes the vsync handler for one display.
func (l *Listener) UnregisterVSyncHandler(display int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.vsync, display)
}

func (l *Listener) run() {
	ready, err := l.dev.WaitEvent(l.timeout)
	if err != nil {
		l.fail("event wait failed", err)
		return
	}
	if !ready {
		return
	}
	events, err := l.dev.ReadEvents()
	if err != nil {
		l.fail("event read failed", err)
		return
	}
	for _, ev := range events {
		l.dispatch(ev)
	}
}

// fail handles a descriptor error. A closed device ends the loop; other
// errors are logged under a rate limit and the wait retried.
func (l *Listener) fail(msg string, err error) {
	if errors.Is(err, kms.ErrClosed) {
		l.work.Exit()
		return
	}
	if l.errs.Allow() {
		l.logger.Warn(msg, "err", err)
	}
}

func (l *Listener) dispatch(ev kms.Event) {
	switch ev.Type {
	case kms.EventHotplug:
		l.mu.Lock()
		h := l.hotplug
		l.mu.Unlock()
		if h == nil {
			return
		}
		l.logger.Debug("hotplug event")
		h.HandleHotplugEvent()

	case kms.EventVBlank, kms.EventFlipComplete:
		display := int(ev.UserData)
		l.mu.Lock()
		h := l.vsync[display]
		l.mu.Unlock()
		if h == nil {
			return
		}
		l.trace.Log(log.Event{
			Timestamp: time.Now(),
			SessionID: l.session,
			Display:   display,
			Category:  log.CategoryEvent,
			VSync: &log.VSyncEvent{
				Sequence: uint64(ev.Sequence),
				Hardware: ev.Time.UnixNano(),
			},
		})
		h.HandleVSyncEvent(ev.Time, uint64(ev.Sequence))
	}
}
