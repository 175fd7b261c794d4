// Package commit builds and submits the per-frame atomic transactions
// that put buffers on screen.
//
// The frame path writes the primary plane's framebuffer property every
// time; when a deferred mode change is pending it first writes the mode
// blob, the connector attach, and the full plane geometry, all in the
// same transaction. The mode-set-only path lives in the resource
// registry.
package commit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/log"
	"github.com/kmspipe/kmspipe-go/pkg/resource"
)

// Config carries the collaborators of a Builder. The zero value is
// usable.
type Config struct {
	// Logger receives human-readable log records.
	Logger *slog.Logger
	// Trace receives machine-readable display events.
	Trace log.Logger
	// Session tags trace events with the owning session id.
	Session string
}

// Builder assembles frame transactions over one resource registry. It is
// stateless: modeset bookkeeping (pending flags, blob ids) belongs to the
// caller.
type Builder struct {
	res     *resource.Resources
	dev     kms.Device
	logger  *slog.Logger
	trace   log.Logger
	session string
}

// New returns a Builder over the registry's device.
func New(res *resource.Resources, cfg Config) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trace := cfg.Trace
	if trace == nil {
		trace = log.NoopLogger{}
	}
	return &Builder{
		res:     res,
		dev:     res.Device(),
		logger:  logger,
		trace:   trace,
		session: cfg.Session,
	}
}

// Frame describes one buffer presentation on a display's primary plane.
// Rectangles are in pixels; the source rectangle selects the region of
// the buffer to scan out.
type Frame struct {
	Display int
	FBID    uint32

	DstX, DstY          int32
	DstWidth, DstHeight uint32

	SrcX, SrcY          uint32
	SrcWidth, SrcHeight uint32
}

// Modeset is a deferred mode change riding with a frame commit. BlobID
// is the fresh mode blob created when the change was requested.
type Modeset struct {
	BlobID uint32
	Mode   resource.Mode
}

// PresentFrame submits the frame as one atomic transaction. With a
// pending modeset the transaction additionally carries the mode blob,
// the connector attach, and the plane geometry, and is flagged to allow
// the mode change. Failure applies nothing; the caller's pending state
// is its own to keep.
func (b *Builder) PresentFrame(f Frame, pending *Modeset) error {
	conn, err := b.res.ConnectorForDisplay(f.Display)
	if err != nil {
		return err
	}
	crtc, err := b.res.CrtcForDisplay(f.Display)
	if err != nil {
		return err
	}
	plane, err := b.res.PrimaryPlaneForCrtc(crtc.ID())
	if err != nil {
		return err
	}

	req := kms.NewAtomicRequest()
	if pending != nil {
		req.Add(crtc.ID(), crtc.ModeProperty().ID(), uint64(pending.BlobID))
		req.Add(conn.ID(), conn.CrtcProperty().ID(), uint64(crtc.ID()))
		req.Add(plane.ID(), plane.CrtcProperty().ID(), uint64(crtc.ID()))
		req.Add(plane.ID(), plane.CrtcXProperty().ID(), uint64(int64(f.DstX)))
		req.Add(plane.ID(), plane.CrtcYProperty().ID(), uint64(int64(f.DstY)))
		req.Add(plane.ID(), plane.CrtcWProperty().ID(), uint64(f.DstWidth))
		req.Add(plane.ID(), plane.CrtcHProperty().ID(), uint64(f.DstHeight))
		// SRC_* are 16.16 fixed point.
		req.Add(plane.ID(), plane.SrcXProperty().ID(), uint64(f.SrcX)<<16)
		req.Add(plane.ID(), plane.SrcYProperty().ID(), uint64(f.SrcY)<<16)
		req.Add(plane.ID(), plane.SrcWProperty().ID(), uint64(f.SrcWidth)<<16)
		req.Add(plane.ID(), plane.SrcHProperty().ID(), uint64(f.SrcHeight)<<16)
	}
	req.Add(plane.ID(), plane.FBProperty().ID(), uint64(f.FBID))

	var flags kms.CommitFlags
	if pending != nil {
		flags |= kms.AllowModeset
	}

	start := time.Now()
	err = b.dev.Commit(req, flags)
	elapsed := time.Since(start)

	ev := log.Event{
		Timestamp: time.Now(),
		SessionID: b.session,
		Display:   f.Display,
		Category:  log.CategoryFrame,
		Commit: &log.CommitEvent{
			Properties: req.Len(),
			Flags:      uint32(flags),
			Modeset:    pending != nil,
			FBID:       f.FBID,
			Duration:   &elapsed,
		},
	}
	if err != nil {
		ev.Commit.Failed = true
		ev.Commit.Message = err.Error()
		b.trace.Log(ev)
		return fmt.Errorf("commit: frame on display %d: %w", f.Display, err)
	}
	b.trace.Log(ev)

	b.logger.Debug("frame committed",
		"display", f.Display, "fb", f.FBID,
		"modeset", pending != nil, "duration", elapsed)
	return nil
}
