package display

import (
	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/log"
	"github.com/kmspipe/kmspipe-go/pkg/resource"
)

// HandleHotplugEvent re-probes every connector and reconciles displays
// whose connection state changed. It runs on the event listener
// goroutine, which is the only mutator of per-display mode state
// outside the config operations.
func (m *Manager) HandleHotplugEvent() {
	for _, conn := range m.res.Connectors() {
		display := conn.Display()
		if display == resource.UnboundDisplay {
			continue
		}
		old := conn.State()
		if err := conn.UpdateModes(); err != nil {
			m.logger.Error("hotplug re-probe failed",
				"display", display, "connector", conn.ID(), "err", err)
			continue
		}
		cur := conn.State()
		if cur == old {
			continue
		}
		connected := cur == kms.Connected

		m.logger.Info("hotplug", "display", display,
			"connector", conn.Name(), "connected", connected,
			"modes", len(conn.Modes()))
		m.emit(log.Event{
			Display:  display,
			Category: log.CategoryEvent,
			Hotplug: &log.HotplugEvent{
				Connector: conn.ID(),
				Connected: connected,
				Modes:     len(conn.Modes()),
			},
		})

		if connected {
			m.configureConnected(display, conn)
		} else {
			m.releaseDisconnected(display)
		}
		m.notifyHotplug(display, connected)
	}
}

// configureConnected picks the preferred mode of a freshly connected
// display, falling back to the first offered mode, and requests it as
// a deferred change so the modeset rides the next frame.
func (m *Manager) configureConnected(display int, conn *resource.Connector) {
	modes := conn.Modes()
	if len(modes) == 0 {
		m.logger.Warn("connected display offers no modes", "display", display)
		return
	}
	mode := modes[0]
	for _, c := range modes {
		if c.Preferred() {
			mode = c
			break
		}
	}
	if err := m.SetActiveMode(display, mode); err != nil {
		m.logger.Error("hotplug mode select failed",
			"display", display, "mode", mode.String(), "err", err)
	}
}

// releaseDisconnected powers the display down and abandons any pending
// modeset. Non-primary displays also drop their cached framebuffer
// imports; the primary keeps them so a probe glitch does not force a
// re-import of every live buffer.
func (m *Manager) releaseDisconnected(display int) {
	if err := m.res.SetDpmsMode(display, kms.DPMSOff); err != nil {
		m.logger.Error("hotplug power off failed", "display", display, "err", err)
	}
	st, err := m.state(display)
	if err != nil {
		return
	}
	st.abandonModeset()
	if !m.cfg.VSyncOffscreen {
		st.vsync.enabled.Store(false)
	}
	if display != PrimaryDisplay {
		if err := st.renderer.Flush(); err != nil {
			m.logger.Warn("flush disconnected display", "display", display, "err", err)
		}
	}
}
