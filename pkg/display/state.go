package display

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kmspipe/kmspipe-go/pkg/commit"
	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/present"
	"github.com/kmspipe/kmspipe-go/pkg/resource"
)

// FrameGeometry positions the primary plane's output within the active
// mode. Requesting a mode resets it to the full mode; hosts compositing
// into a sub-rectangle override it with SetFrameGeometry.
type FrameGeometry struct {
	DstX, DstY          int32
	DstWidth, DstHeight uint32
	SrcX, SrcY          uint32
	SrcWidth, SrcHeight uint32
}

func fullGeometry(mode resource.Mode) FrameGeometry {
	return FrameGeometry{
		DstWidth:  mode.Width(),
		DstHeight: mode.Height(),
		SrcWidth:  mode.Width(),
		SrcHeight: mode.Height(),
	}
}

// displayState is one display's frame-path bookkeeping: the deferred
// mode change and its blob lifecycle, the config list handed to the
// host, the plane geometry, and the display's workers.
type displayState struct {
	m       *Manager
	display int
	pipe    int

	renderer *present.Renderer
	vsync    *vsyncSource

	mu           sync.Mutex
	configIDs    []uint32
	geometry     FrameGeometry
	activeMode   resource.Mode
	needsModeset bool
	blobID       uint32
	oldBlobID    uint32
}

// Present issues one frame's atomic commit, carrying the deferred mode
// change when one is pending. After a successful modeset commit the
// superseded blob is retired, the pending flag cleared, and the display
// powered on. A failed commit changes nothing, the pending flag
// included.
func (s *displayState) Present(fb *present.Framebuffer) error {
	s.mu.Lock()
	f := commit.Frame{
		Display:   s.display,
		FBID:      fb.FBID,
		DstX:      s.geometry.DstX,
		DstY:      s.geometry.DstY,
		DstWidth:  s.geometry.DstWidth,
		DstHeight: s.geometry.DstHeight,
		SrcX:      s.geometry.SrcX,
		SrcY:      s.geometry.SrcY,
		SrcWidth:  s.geometry.SrcWidth,
		SrcHeight: s.geometry.SrcHeight,
	}
	var pending *commit.Modeset
	if s.needsModeset {
		pending = &commit.Modeset{BlobID: s.blobID, Mode: s.activeMode}
	}
	s.mu.Unlock()

	if err := s.m.builder.PresentFrame(f, pending); err != nil {
		return err
	}
	if pending != nil {
		s.finishModeset()
	}
	return nil
}

// finishModeset runs after the commit that applied a deferred mode
// change: the prior mode's blob is destroyed and the display powered
// on. A failed destroy is logged, not retried; blob ids are never
// reused, so the cost is a small leak.
func (s *displayState) finishModeset() {
	s.mu.Lock()
	old := s.oldBlobID
	s.oldBlobID = s.blobID
	s.blobID = 0
	s.needsModeset = false
	s.mu.Unlock()

	if err := s.m.res.DestroyPropertyBlob(old); err != nil {
		s.m.logger.Warn("destroy superseded mode blob",
			"display", s.display, "blob", old, "err", err)
	}
	if err := s.m.res.SetDpmsMode(s.display, kms.DPMSOn); err != nil {
		s.m.logger.Warn("power on after modeset", "display", s.display, "err", err)
	}
}

// abandonModeset drops an uncommitted mode change and destroys its
// blob, leaving the last applied mode in place.
func (s *displayState) abandonModeset() {
	s.mu.Lock()
	stale := uint32(0)
	if s.needsModeset {
		stale = s.blobID
		s.blobID = 0
		s.needsModeset = false
	}
	s.mu.Unlock()

	if stale != 0 {
		if err := s.m.res.DestroyPropertyBlob(stale); err != nil {
			s.m.logger.Warn("destroy abandoned mode blob",
				"display", s.display, "blob", stale, "err", err)
		}
	}
}

// retireBlobs destroys whatever blobs the display still owns, for
// shutdown. The kernel keeps its own reference to a blob an active
// crtc still scans out from.
func (s *displayState) retireBlobs() {
	s.mu.Lock()
	pending := uint32(0)
	if s.needsModeset {
		pending = s.blobID
	}
	old := s.oldBlobID
	s.blobID = 0
	s.oldBlobID = 0
	s.needsModeset = false
	s.mu.Unlock()

	for _, blob := range []uint32{pending, old} {
		if err := s.m.res.DestroyPropertyBlob(blob); err != nil {
			s.m.logger.Warn("destroy mode blob at shutdown",
				"display", s.display, "blob", blob, "err", err)
		}
	}
}

// vsyncSource fans delivered vertical blanks out to the host callback
// and re-arms the next vblank request while enabled. It runs on the
// listener goroutine.
type vsyncSource struct {
	m       *Manager
	display int
	pipe    int
	enabled atomic.Bool
}

func (v *vsyncSource) HandleVSyncEvent(ts time.Time, seq uint64) {
	if !v.enabled.Load() {
		return
	}
	v.m.notifyVSync(v.display, ts, seq)
	v.arm()
}

func (v *vsyncSource) arm() {
	if err := v.m.dev.QueueVBlank(v.pipe, uint64(v.display)); err != nil {
		v.m.logger.Warn("queue vblank", "display", v.display, "err", err)
	}
}
