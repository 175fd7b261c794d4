package kms

import (
	"encoding/binary"
	"fmt"
)

// Mode type bits, matching DRM_MODE_TYPE_*.
const (
	ModeTypeBuiltin   uint32 = 1 << 0
	ModeTypeClockC    uint32 = 1<<1 | ModeTypeBuiltin
	ModeTypeCrtcC     uint32 = 1<<2 | ModeTypeBuiltin
	ModeTypePreferred uint32 = 1 << 3
	ModeTypeDefault   uint32 = 1 << 4
	ModeTypeUserdef   uint32 = 1 << 5
	ModeTypeDriver    uint32 = 1 << 6
)

// Mode flag bits, matching DRM_MODE_FLAG_*.
const (
	ModeFlagPHSync     uint32 = 1 << 0
	ModeFlagNHSync     uint32 = 1 << 1
	ModeFlagPVSync     uint32 = 1 << 2
	ModeFlagNVSync     uint32 = 1 << 3
	ModeFlagInterlace  uint32 = 1 << 4
	ModeFlagDoubleScan uint32 = 1 << 5
)

// modeInfoSize is the wire size of the kernel's mode descriptor, the
// payload of a mode property blob.
const modeInfoSize = 68

// ModeInfo is one display timing as reported by the kernel. The zero
// value is not a valid timing.
type ModeInfo struct {
	Clock uint32

	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16

	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16

	VRefresh uint32
	Flags    uint32
	Type     uint32
	Name     string
}

// Preferred reports whether the kernel flagged this timing as the
// connector's preferred mode.
func (m ModeInfo) Preferred() bool {
	return m.Type&ModeTypePreferred != 0
}

// Refresh returns the vertical refresh rate in Hz, computed from the
// pixel clock when the kernel did not fill VRefresh.
func (m ModeInfo) Refresh() float64 {
	if m.VRefresh != 0 {
		return float64(m.VRefresh)
	}
	if m.HTotal == 0 || m.VTotal == 0 {
		return 0
	}
	refresh := float64(m.Clock) * 1000 / (float64(m.HTotal) * float64(m.VTotal))
	if m.Flags&ModeFlagInterlace != 0 {
		refresh *= 2
	}
	if m.Flags&ModeFlagDoubleScan != 0 {
		refresh /= 2
	}
	if m.VScan > 1 {
		refresh /= float64(m.VScan)
	}
	return refresh
}

// SameTimings reports whether two descriptors carry identical timings.
// Name and type bits are excluded: the kernel may move the preferred bit
// between otherwise unchanged timings on re-enumeration.
func (m ModeInfo) SameTimings(o ModeInfo) bool {
	return m.Clock == o.Clock &&
		m.HDisplay == o.HDisplay && m.HSyncStart == o.HSyncStart &&
		m.HSyncEnd == o.HSyncEnd && m.HTotal == o.HTotal && m.HSkew == o.HSkew &&
		m.VDisplay == o.VDisplay && m.VSyncStart == o.VSyncStart &&
		m.VSyncEnd == o.VSyncEnd && m.VTotal == o.VTotal && m.VScan == o.VScan &&
		m.Flags == o.Flags
}

func (m ModeInfo) String() string {
	return fmt.Sprintf("%dx%d@%.0f", m.HDisplay, m.VDisplay, m.Refresh())
}

// Marshal encodes the mode in the kernel's blob layout. The result is
// what CreateBlob expects for a crtc mode property.
func (m ModeInfo) Marshal() []byte {
	buf := make([]byte, modeInfoSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], m.Clock)
	le.PutUint16(buf[4:], m.HDisplay)
	le.PutUint16(buf[6:], m.HSyncStart)
	le.PutUint16(buf[8:], m.HSyncEnd)
	le.PutUint16(buf[10:], m.HTotal)
	le.PutUint16(buf[12:], m.HSkew)
	le.PutUint16(buf[14:], m.VDisplay)
	le.PutUint16(buf[16:], m.VSyncStart)
	le.PutUint16(buf[18:], m.VSyncEnd)
	le.PutUint16(buf[20:], m.VTotal)
	le.PutUint16(buf[22:], m.VScan)
	le.PutUint32(buf[24:], m.VRefresh)
	le.PutUint32(buf[28:], m.Flags)
	le.PutUint32(buf[32:], m.Type)
	name := m.Name
	if len(name) > 31 {
		name = name[:31]
	}
	copy(buf[36:], name)
	return buf
}

// UnmarshalModeInfo decodes a kernel mode descriptor, the inverse of
// ModeInfo.Marshal.
func UnmarshalModeInfo(buf []byte) (ModeInfo, error) {
	if len(buf) < modeInfoSize {
		return ModeInfo{}, fmt.Errorf("kms: mode blob is %d bytes, want %d", len(buf), modeInfoSize)
	}
	le := binary.LittleEndian
	m := ModeInfo{
		Clock:      le.Uint32(buf[0:]),
		HDisplay:   le.Uint16(buf[4:]),
		HSyncStart: le.Uint16(buf[6:]),
		HSyncEnd:   le.Uint16(buf[8:]),
		HTotal:     le.Uint16(buf[10:]),
		HSkew:      le.Uint16(buf[12:]),
		VDisplay:   le.Uint16(buf[14:]),
		VSyncStart: le.Uint16(buf[16:]),
		VSyncEnd:   le.Uint16(buf[18:]),
		VTotal:     le.Uint16(buf[20:]),
		VScan:      le.Uint16(buf[22:]),
		VRefresh:   le.Uint32(buf[24:]),
		Flags:      le.Uint32(buf[28:]),
		Type:       le.Uint32(buf[32:]),
	}
	name := buf[36:modeInfoSize]
	for i, b := range name {
		if b == 0 {
			name = name[:i]
			break
		}
	}
	m.Name = string(name)
	return m, nil
}

// PixelFormat is a fourcc scan-out format code.
type PixelFormat uint32

// FourCC builds a format code from its four characters.
func FourCC(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// Formats used by the reference tools. Importers translate their own.
var (
	FormatXRGB8888 = FourCC('X', 'R', '2', '4')
	FormatARGB8888 = FourCC('A', 'R', '2', '4')
	FormatABGR8888 = FourCC('A', 'B', '2', '4')
	FormatXBGR8888 = FourCC('X', 'B', '2', '4')
	FormatBGR888   = FourCC('B', 'G', '2', '4')
	FormatBGR565   = FourCC('B', 'G', '1', '6')
	FormatYVU420   = FourCC('Y', 'V', '1', '2')
)

func (f PixelFormat) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}
