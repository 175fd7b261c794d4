package kmstest

import (
	"fmt"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

// Mode builds a plausible timing for the given geometry and refresh rate.
func Mode(width, height uint16, refresh uint32, modeType uint32) kms.ModeInfo {
	htotal := width + 160
	vtotal := height + 45
	return kms.ModeInfo{
		Clock:      refresh * uint32(htotal) * uint32(vtotal) / 1000,
		HDisplay:   width,
		HSyncStart: width + 48,
		HSyncEnd:   width + 80,
		HTotal:     htotal,
		VDisplay:   height,
		VSyncStart: height + 3,
		VSyncEnd:   height + 8,
		VTotal:     vtotal,
		VRefresh:   refresh,
		Type:       modeType,
		Name:       fmt.Sprintf("%dx%d", width, height),
	}
}

// SingleDisplay is the id set of a NewSingleDisplay device.
type SingleDisplay struct {
	Crtc      uint32
	Encoder   uint32
	Connector uint32
	Primary   uint32
	Cursor    uint32
}

// NewSingleDisplay builds a one-pipe device: one crtc, one encoder wired
// to it, one connected connector carrying a preferred 1920x1080 and a
// 1280x720 mode, one primary plane, one cursor plane.
func NewSingleDisplay() (*Device, SingleDisplay) {
	d := NewDevice()
	var ids SingleDisplay
	ids.Crtc = d.AddCrtc()
	ids.Encoder = d.AddEncoder(ids.Crtc, 0b1)
	ids.Connector = d.AddConnector(kms.ConnectorHDMIA, kms.Connected, []kms.ModeInfo{
		Mode(1920, 1080, 60, kms.ModeTypePreferred|kms.ModeTypeDriver),
		Mode(1280, 720, 60, kms.ModeTypeDriver),
	}, ids.Encoder, ids.Encoder)
	ids.Primary = d.AddPlane(kms.PlanePrimary, 0b1)
	ids.Cursor = d.AddPlane(kms.PlaneCursor, 0b1)
	return d, ids
}

// DualDisplay is the id set of a NewDualDisplay device.
type DualDisplay struct {
	Crtcs      [2]uint32
	Encoders   [2]uint32
	Connectors [2]uint32
	Primaries  [2]uint32
}

// NewDualDisplay builds a two-pipe device. Encoder 0 is wired to crtc 0
// and can only drive it; encoder 1 is idle and can drive either crtc.
// Each pipe has its own primary plane; connector 0 is eDP, connector 1
// HDMI.
func NewDualDisplay() (*Device, DualDisplay) {
	d := NewDevice()
	var ids DualDisplay
	ids.Crtcs[0] = d.AddCrtc()
	ids.Crtcs[1] = d.AddCrtc()
	ids.Encoders[0] = d.AddEncoder(ids.Crtcs[0], 0b01)
	ids.Encoders[1] = d.AddEncoder(0, 0b11)
	ids.Connectors[0] = d.AddConnector(kms.ConnectorEDP, kms.Connected, []kms.ModeInfo{
		Mode(2256, 1504, 60, kms.ModeTypePreferred|kms.ModeTypeDriver),
	}, ids.Encoders[0], ids.Encoders[0], ids.Encoders[1])
	ids.Connectors[1] = d.AddConnector(kms.ConnectorHDMIA, kms.Connected, []kms.ModeInfo{
		Mode(1920, 1080, 60, kms.ModeTypePreferred|kms.ModeTypeDriver),
		Mode(1920, 1080, 50, kms.ModeTypeDriver),
	}, 0, ids.Encoders[0], ids.Encoders[1])
	ids.Primaries[0] = d.AddPlane(kms.PlanePrimary, 0b01)
	ids.Primaries[1] = d.AddPlane(kms.PlanePrimary, 0b10)
	return d, ids
}
