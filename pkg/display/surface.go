package display

import (
	"fmt"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/log"
	"github.com/kmspipe/kmspipe-go/pkg/present"
	"github.com/kmspipe/kmspipe-go/pkg/resource"
)

// DisplayConfigs re-probes the display and returns its mode ids, the
// config handles ActiveConfig and SetActiveConfig work in. The list is
// empty for a display currently offering no modes.
func (m *Manager) DisplayConfigs(display int) ([]uint32, error) {
	conn, err := m.res.ConnectorForDisplay(display)
	if err != nil {
		return nil, err
	}
	st, err := m.state(display)
	if err != nil {
		return nil, err
	}
	if err := conn.UpdateModes(); err != nil {
		return nil, err
	}

	modes := conn.Modes()
	ids := make([]uint32, len(modes))
	for i, mode := range modes {
		ids[i] = mode.ID()
	}
	st.mu.Lock()
	st.configIDs = append([]uint32(nil), ids...)
	st.mu.Unlock()
	return ids, nil
}

// ActiveConfig returns the active mode's index within the config list
// from the last DisplayConfigs call.
func (m *Manager) ActiveConfig(display int) (int, error) {
	conn, err := m.res.ConnectorForDisplay(display)
	if err != nil {
		return 0, err
	}
	st, err := m.state(display)
	if err != nil {
		return 0, err
	}
	active := conn.ActiveMode()
	if !active.Valid() {
		return 0, fmt.Errorf("%w: display %d", ErrNotConfigured, display)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for i, id := range st.configIDs {
		if id == active.ID() {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: active mode %d not in config list", ErrBadConfig, active.ID())
}

// SetActiveConfig requests the mode at the given index of the last
// DisplayConfigs listing. The change rides with the next frame commit.
func (m *Manager) SetActiveConfig(display, index int) error {
	conn, err := m.res.ConnectorForDisplay(display)
	if err != nil {
		return err
	}
	st, err := m.state(display)
	if err != nil {
		return err
	}
	if conn.State() != kms.Connected {
		return fmt.Errorf("%w: display %d", ErrNotConnected, display)
	}

	st.mu.Lock()
	ids := append([]uint32(nil), st.configIDs...)
	st.mu.Unlock()
	if index < 0 || index >= len(ids) {
		return fmt.Errorf("%w: index %d of %d configs", ErrBadConfig, index, len(ids))
	}
	mode, ok := conn.ModeByID(ids[index])
	if !ok {
		return fmt.Errorf("%w: config %d no longer offered", ErrBadConfig, ids[index])
	}
	return m.SetActiveMode(display, mode)
}

// SetActiveMode requests a mode change for the display. The change is
// deferred: the blob is created now, and the modeset rides with the
// next presented frame's atomic commit. A previously requested change
// that never committed is superseded and its blob destroyed.
func (m *Manager) SetActiveMode(display int, mode resource.Mode) error {
	conn, err := m.res.ConnectorForDisplay(display)
	if err != nil {
		return err
	}
	st, err := m.state(display)
	if err != nil {
		return err
	}

	blobID, err := m.res.CreatePropertyBlob(mode.Info().Marshal())
	if err != nil {
		return err
	}

	st.mu.Lock()
	stale := uint32(0)
	if st.needsModeset {
		stale = st.blobID
	}
	st.blobID = blobID
	st.activeMode = mode
	st.needsModeset = true
	st.geometry = fullGeometry(mode)
	st.mu.Unlock()

	if stale != 0 {
		if err := m.res.DestroyPropertyBlob(stale); err != nil {
			m.logger.Warn("destroy superseded mode blob",
				"display", display, "blob", stale, "err", err)
		}
	}

	conn.SetActiveMode(mode)
	m.logger.Info("mode change requested", "display", display, "mode", mode.String())
	if crtc, err := m.res.CrtcForDisplay(display); err == nil {
		m.emit(log.Event{
			Display:  display,
			Category: log.CategoryConfig,
			ModeSet: &log.ModeSetEvent{
				Crtc:     crtc.ID(),
				BlobID:   blobID,
				Mode:     mode.String(),
				Deferred: true,
			},
		})
	}
	return nil
}

// SetActiveModeNow applies the mode in an immediate allow-modeset
// commit instead of deferring to the next frame, and retires superseded
// blobs. For hosts that configure displays without presenting frames.
func (m *Manager) SetActiveModeNow(display int, mode resource.Mode) error {
	st, err := m.state(display)
	if err != nil {
		return err
	}
	blobID, err := m.res.SetDisplayActiveMode(display, mode)
	if err != nil {
		return err
	}

	st.mu.Lock()
	stale := uint32(0)
	if st.needsModeset {
		stale = st.blobID
		st.needsModeset = false
	}
	old := st.oldBlobID
	st.oldBlobID = blobID
	st.blobID = 0
	st.activeMode = mode
	st.geometry = fullGeometry(mode)
	st.mu.Unlock()

	for _, blob := range []uint32{stale, old} {
		if err := m.res.DestroyPropertyBlob(blob); err != nil {
			m.logger.Warn("destroy superseded mode blob",
				"display", display, "blob", blob, "err", err)
		}
	}
	return nil
}

// SetPowerMode sets the display's DPMS power state.
func (m *Manager) SetPowerMode(display int, mode kms.DPMSMode) error {
	return m.res.SetDpmsMode(display, mode)
}

// VSyncControl enables or disables vsync callback delivery for the
// display. Enabling arms the first vblank request; each delivery then
// re-arms the next while enabled.
func (m *Manager) VSyncControl(display int, enabled bool) error {
	st, err := m.state(display)
	if err != nil {
		return err
	}
	if !enabled {
		st.vsync.enabled.Store(false)
		return nil
	}
	if st.vsync.enabled.Swap(true) {
		return nil
	}
	st.vsync.arm()
	return nil
}

// QueueFrame hands a buffer to the display's render worker and returns
// the frame's timeline point.
func (m *Manager) QueueFrame(display int, buf present.Buffer) (uint64, error) {
	st, err := m.state(display)
	if err != nil {
		return 0, err
	}
	return st.renderer.QueueFrame(buf), nil
}

// DequeueFrame removes the display's oldest pending frame without
// blocking, for hosts that drive presentation themselves. The bool
// reports whether a frame was pending.
func (m *Manager) DequeueFrame(display int) (present.Buffer, uint64, bool, error) {
	st, err := m.state(display)
	if err != nil {
		return nil, 0, false, err
	}
	buf, point, ok := st.renderer.DequeueFrame()
	return buf, point, ok, nil
}

// Timeline returns the display's presentation timeline for frame
// completion waits.
func (m *Manager) Timeline(display int) (*present.Timeline, error) {
	st, err := m.state(display)
	if err != nil {
		return nil, err
	}
	return st.renderer.Timeline(), nil
}

// SetFrameGeometry overrides the plane geometry the next pending
// modeset will stage. It has no effect on a display already past its
// modeset until a new mode is requested.
func (m *Manager) SetFrameGeometry(display int, g FrameGeometry) error {
	st, err := m.state(display)
	if err != nil {
		return err
	}
	st.mu.Lock()
	st.geometry = g
	st.mu.Unlock()
	return nil
}
