package resource

import (
	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

// Mode is one display timing with a process-local id. Ids start at 1,
// grow monotonically, and are never reused; a timing that survives a
// mode-list refresh keeps its id. Modes are immutable and copied by
// value.
type Mode struct {
	id   uint32
	info kms.ModeInfo
}

func newMode(id uint32, info kms.ModeInfo) Mode {
	return Mode{id: id, info: info}
}

// ID returns the process-local mode id, 0 for the zero Mode.
func (m Mode) ID() uint32 { return m.id }

// Valid reports whether this is a real mode rather than the zero value.
func (m Mode) Valid() bool { return m.id != 0 }

// Info returns the kernel timing descriptor.
func (m Mode) Info() kms.ModeInfo { return m.info }

// Width returns the horizontal resolution in pixels.
func (m Mode) Width() uint32 { return uint32(m.info.HDisplay) }

// Height returns the vertical resolution in pixels.
func (m Mode) Height() uint32 { return uint32(m.info.VDisplay) }

// Refresh returns the vertical refresh rate in Hz.
func (m Mode) Refresh() float64 { return m.info.Refresh() }

// Preferred reports whether the kernel flagged the timing as preferred.
func (m Mode) Preferred() bool { return m.info.Preferred() }

func (m Mode) String() string { return m.info.String() }
