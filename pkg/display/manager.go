// Package display assembles the whole pipeline behind one Manager: the
// resource registry, the frame commit builder, the card event listener,
// and a render worker per display, with the host-facing configuration
// and presentation surface on top.
//
// Configuration entry points are not safe to call concurrently with
// each other; hotplug reconfiguration runs on the listener goroutine
// and owns the resource registry's mutable fields, matching the
// registry's own locking rules. The frame queue and import cache behind
// QueueFrame carry their own locks and may be driven from any
// goroutine.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kmspipe/kmspipe-go/pkg/commit"
	"github.com/kmspipe/kmspipe-go/pkg/event"
	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/log"
	"github.com/kmspipe/kmspipe-go/pkg/present"
	"github.com/kmspipe/kmspipe-go/pkg/resource"
)

// PrimaryDisplay is the logical index of the built-in output, the first
// connector discovered. It keeps its imported buffers across probe
// glitches where hotpluggable outputs release theirs.
const PrimaryDisplay = 0

// Callbacks notifies the host of asynchronous display events. Both run
// on internal goroutines and must not block.
type Callbacks struct {
	// Hotplug fires at most once per observed connection transition,
	// whether or not internal reconfiguration succeeded.
	Hotplug func(display int, connected bool)
	// VSync fires once per delivered vertical blank while vsync is
	// enabled for the display.
	VSync func(display int, timestamp time.Time, sequence uint64)
}

// Config carries the manager's collaborators and tuning. The zero value
// is usable for configuration-only hosts; frame presentation needs an
// Importer.
type Config struct {
	// Logger receives human-readable log records.
	Logger *slog.Logger
	// Trace receives machine-readable display events.
	Trace log.Logger
	// Importer adapts producer buffers to kernel framebuffers. When
	// nil, queued frames fail their import and are skipped.
	Importer present.Importer
	// Callbacks is the initial callback table; SetCallbacks replaces it
	// later.
	Callbacks Callbacks
	// QueueDepth bounds each display's pending frames; values below one
	// select the frame path's default.
	QueueDepth int
	// QueueDepths overrides QueueDepth per logical display.
	QueueDepths map[int]int
	// CacheSize sets each display's import cache slots; values below
	// one select the frame path's default.
	CacheSize int
	// PollTimeout bounds the event listener's descriptor waits.
	PollTimeout time.Duration
	// VSyncOffscreen keeps vsync callbacks flowing for a display whose
	// output disconnects. Off, a disconnect disables the display's
	// vsync until the host re-enables it.
	VSyncOffscreen bool
}

// Manager owns one device's display pipeline from discovery to
// per-frame commits.
type Manager struct {
	dev      kms.Device
	res      *resource.Resources
	builder  *commit.Builder
	listener *event.Listener
	importer present.Importer
	logger   *slog.Logger
	trace    log.Logger
	session  string
	cfg      Config

	cbMu      sync.Mutex
	callbacks Callbacks

	mu      sync.Mutex
	states  map[int]*displayState
	started bool
}

// New returns a stopped manager over the device. The device stays owned
// by the caller; Stop does not close it.
func New(dev kms.Device, cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trace := cfg.Trace
	if trace == nil {
		trace = log.NoopLogger{}
	}
	importer := cfg.Importer
	if importer == nil {
		importer = noImporter{}
	}
	session := uuid.NewString()

	m := &Manager{
		dev:       dev,
		importer:  importer,
		logger:    logger,
		trace:     trace,
		session:   session,
		cfg:       cfg,
		callbacks: cfg.Callbacks,
		states:    make(map[int]*displayState),
	}
	m.res = resource.New(dev, resource.Config{Logger: logger, Trace: trace, Session: session})
	m.builder = commit.New(m.res, commit.Config{Logger: logger, Trace: trace, Session: session})
	m.listener = event.New(dev, event.Config{
		PollTimeout: cfg.PollTimeout,
		Logger:      logger,
		Trace:       trace,
		Session:     session,
	})
	return m
}

// Session returns the manager's session id, the tag on every trace
// event it emits.
func (m *Manager) Session() string { return m.session }

// Resources exposes the underlying registry for topology queries and
// the immediate mode-set path.
func (m *Manager) Resources() *resource.Resources { return m.res }

// Start discovers the topology, applies an initial mode to every
// connected display, and launches the event listener and the render
// workers. Discovery and initial configuration are all-or-nothing; a
// display without a free pipeline is skipped, not fatal.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	if err := m.res.Initialize(ctx); err != nil {
		return err
	}

	for _, conn := range m.res.Connectors() {
		d := conn.Display()
		if d == resource.UnboundDisplay {
			continue
		}
		crtc, err := m.res.CrtcForDisplay(d)
		if err != nil {
			m.logger.Warn("display has no pipeline, excluded from presentation",
				"display", d, "connector", conn.Name())
			continue
		}

		st := m.newDisplayState(d, crtc.Pipe())
		m.mu.Lock()
		m.states[d] = st
		m.mu.Unlock()

		if conn.State() == kms.Connected {
			if err := m.setInitialConfig(d); err != nil {
				return fmt.Errorf("display: initial config for display %d: %w", d, err)
			}
		}
		if err := st.renderer.Start(); err != nil {
			return err
		}
		m.listener.RegisterVSyncHandler(d, st.vsync)
	}

	m.listener.RegisterHotplugHandler(m)
	if err := m.listener.Start(); err != nil {
		return err
	}

	m.logger.Info("display manager started",
		"session", m.session, "displays", len(m.states))
	return nil
}

// setInitialConfig applies the display's first offered mode. A display
// offering no modes is left unconfigured.
func (m *Manager) setInitialConfig(display int) error {
	configs, err := m.DisplayConfigs(display)
	if err != nil || len(configs) == 0 {
		return nil
	}
	return m.SetActiveConfig(display, 0)
}

// Stop terminates the listener and the render workers, releases every
// cached import, and retires outstanding mode blobs. The device is left
// open.
func (m *Manager) Stop() {
	m.listener.Stop()

	m.mu.Lock()
	states := make([]*displayState, 0, len(m.states))
	for _, st := range m.states {
		states = append(states, st)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, st := range states {
		st := st
		g.Go(func() error {
			st.renderer.Stop()
			err := st.renderer.Flush()
			st.retireBlobs()
			if err != nil {
				return fmt.Errorf("display %d: %w", st.display, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Warn("release display buffers", "err", err)
	}
	m.logger.Info("display manager stopped", "session", m.session)
}

// SetCallbacks replaces the host callback table. Safe while running.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = cb
}

func (m *Manager) notifyHotplug(display int, connected bool) {
	m.cbMu.Lock()
	cb := m.callbacks.Hotplug
	m.cbMu.Unlock()
	if cb != nil {
		cb(display, connected)
	}
}

func (m *Manager) notifyVSync(display int, ts time.Time, seq uint64) {
	m.cbMu.Lock()
	cb := m.callbacks.VSync
	m.cbMu.Unlock()
	if cb != nil {
		cb(display, ts, seq)
	}
}

func (m *Manager) newDisplayState(display, pipe int) *displayState {
	st := &displayState{m: m, display: display, pipe: pipe}
	st.vsync = &vsyncSource{m: m, display: display, pipe: pipe}
	depth := m.cfg.QueueDepth
	if override, ok := m.cfg.QueueDepths[display]; ok {
		depth = override
	}
	st.renderer = present.NewRenderer(present.RendererConfig{
		Display:    display,
		QueueDepth: depth,
		CacheSize:  m.cfg.CacheSize,
		Importer:   m.importer,
		Sink:       st,
		Logger:     m.logger,
		Trace:      m.trace,
		Session:    m.session,
	})
	return st
}

func (m *Manager) state(display int) (*displayState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[display]
	if !ok {
		return nil, fmt.Errorf("%w: display %d has no pipeline", resource.ErrNoSuchDisplay, display)
	}
	return st, nil
}

func (m *Manager) emit(ev log.Event) {
	ev.Timestamp = time.Now()
	ev.SessionID = m.session
	m.trace.Log(ev)
}

// noImporter rejects every import so a manager built without an
// Importer fails frames cleanly instead of panicking.
type noImporter struct{}

func (noImporter) ImportBuffer(present.Buffer) (*present.Framebuffer, error) {
	return nil, errors.New("display: no buffer importer configured")
}

func (noImporter) ReleaseBuffer(*present.Framebuffer) error { return nil }
