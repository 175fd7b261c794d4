package present

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kmspipe/kmspipe-go/pkg/log"
	"github.com/kmspipe/kmspipe-go/pkg/worker"
)

// FrameSink issues the atomic commit for one imported frame. The
// display manager implements it with the commit builder plus its
// per-display modeset bookkeeping.
type FrameSink interface {
	Present(fb *Framebuffer) error
}

// RendererConfig carries the collaborators of a Renderer. Importer and
// Sink are required; the rest has usable defaults.
type RendererConfig struct {
	// Display is the logical display index, used for worker naming,
	// logging, and trace events.
	Display int
	// QueueDepth bounds pending frames; values below one select
	// DefaultQueueDepth.
	QueueDepth int
	// CacheSize sets the import cache's slot count; values below one
	// select DefaultCacheSize.
	CacheSize int
	// Importer adapts producer buffers to kernel framebuffers.
	Importer Importer
	// Sink receives each resolved framebuffer for commit.
	Sink FrameSink
	// Logger receives human-readable log records.
	Logger *slog.Logger
	// Trace receives machine-readable display events.
	Trace log.Logger
	// Session tags trace events with the owning session id.
	Session string
}

// Renderer is one display's frame worker. It drains the display's
// queue strictly in order and presents each buffer through the sink;
// an import or commit failure skips that frame and never stops the
// worker.
type Renderer struct {
	display  int
	queue    *Queue
	cache    *Cache
	timeline *Timeline
	sink     FrameSink
	logger   *slog.Logger
	trace    log.Logger
	session  string
	work     *worker.Worker
	warn     *rate.Limiter
}

// NewRenderer returns a stopped renderer.
func NewRenderer(cfg RendererConfig) *Renderer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trace := cfg.Trace
	if trace == nil {
		trace = log.NoopLogger{}
	}
	return &Renderer{
		display:  cfg.Display,
		queue:    NewQueue(cfg.QueueDepth),
		cache:    NewCache(cfg.Importer, cfg.CacheSize),
		timeline: NewTimeline(),
		sink:     cfg.Sink,
		logger:   logger.With("display", cfg.Display),
		trace:    trace,
		session:  cfg.Session,
		work:     worker.New(fmt.Sprintf("render-%d", cfg.Display), logger),
		warn:     rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Timeline returns the display's presentation timeline.
func (r *Renderer) Timeline() *Timeline { return r.timeline }

// Cache returns the display's import cache.
func (r *Renderer) Cache() *Cache { return r.cache }

// Pending returns the number of queued frames.
func (r *Renderer) Pending() int { return r.queue.Len() }

// Start launches the render worker goroutine.
func (r *Renderer) Start() error {
	return r.work.Start(r.run)
}

// Stop terminates the worker and waits for it to finish. Frames still
// queued are left unpresented.
func (r *Renderer) Stop() {
	r.work.Stop()
}

// QueueFrame enqueues a buffer for presentation and returns its
// timeline point. When the queue is full the oldest pending frame is
// dropped; its point resolves once a later frame presents.
func (r *Renderer) QueueFrame(buf Buffer) uint64 {
	point := r.timeline.Reserve()
	evicted, evictedPoint, dropped := r.queue.Push(buf, point)
	r.emitFrame(log.FrameEvent{
		Action:     log.FrameQueued,
		BufferKey:  buf.Key(),
		QueueDepth: r.queue.Len(),
		Point:      point,
	})
	if dropped {
		// A dropped frame will never present; release its point now so
		// nobody waits on it.
		r.timeline.Signal(evictedPoint)
		r.logger.Debug("frame dropped", "key", evicted.Key())
		r.emitFrame(log.FrameEvent{
			Action:     log.FrameDropped,
			BufferKey:  evicted.Key(),
			QueueDepth: r.queue.Len(),
			Point:      evictedPoint,
		})
	}
	r.work.Signal()
	return point
}

// DequeueFrame removes the oldest pending frame without blocking,
// for hosts that drive presentation themselves instead of through the
// worker. The frame's timeline point is returned with it.
func (r *Renderer) DequeueFrame() (Buffer, uint64, bool) {
	return r.queue.Pop()
}

// Flush drops pending frames, advances the timeline past them so
// waiters resolve, and releases every cached import.
func (r *Renderer) Flush() error {
	if last := r.queue.Flush(); last > 0 {
		r.timeline.Signal(last)
	}
	ids, err := r.cache.Flush()
	for _, id := range ids {
		r.emitFrame(log.FrameEvent{Action: log.FrameReleased, FBID: id})
	}
	return err
}

func (r *Renderer) run() {
	if r.queue.Len() == 0 {
		if r.work.WaitForSignalOrExit(-1) == worker.Exiting {
			return
		}
	}
	buf, point, ok := r.queue.Pop()
	if !ok {
		return
	}
	r.render(buf, point)
}

func (r *Renderer) render(buf Buffer, point uint64) {
	fb, hit, err := r.cache.Acquire(buf)
	if err != nil {
		if r.warn.Allow() {
			r.logger.Error("buffer import failed", "key", buf.Key(), "err", err)
		}
		r.emitError("import", err)
		return
	}
	if !hit && r.cache.Len() > r.cache.Cap() {
		r.logger.Warn("import cache over capacity",
			"live", r.cache.Len(), "slots", r.cache.Cap())
	}

	if err := r.sink.Present(fb); err != nil {
		if r.warn.Allow() {
			r.logger.Error("present failed", "fb", fb.FBID, "err", err)
		}
		r.emitError("present", err)
		return
	}

	r.timeline.Signal(point)
	r.emitFrame(log.FrameEvent{
		Action:     log.FramePresented,
		BufferKey:  buf.Key(),
		FBID:       fb.FBID,
		QueueDepth: r.queue.Len(),
		Point:      point,
	})
}

func (r *Renderer) emitFrame(fe log.FrameEvent) {
	r.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: r.session,
		Display:   r.display,
		Category:  log.CategoryFrame,
		Frame:     &fe,
	})
}

func (r *Renderer) emitError(context string, err error) {
	r.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: r.session,
		Display:   r.display,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Context: context, Message: err.Error()},
	})
}
