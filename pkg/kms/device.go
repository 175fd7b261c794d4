package kms

import (
	"fmt"
	"time"
)

// ObjectType identifies the kind of a mode-setting object. Values match the
// kernel's DRM_MODE_OBJECT_* constants.
type ObjectType uint32

const (
	ObjectAny       ObjectType = 0
	ObjectCrtc      ObjectType = 0xcccccccc
	ObjectConnector ObjectType = 0xc0c0c0c0
	ObjectEncoder   ObjectType = 0xe0e0e0e0
	ObjectMode      ObjectType = 0xdededede
	ObjectProperty  ObjectType = 0xb0b0b0b0
	ObjectFB        ObjectType = 0xfbfbfbfb
	ObjectBlob      ObjectType = 0xbbbbbbbb
	ObjectPlane     ObjectType = 0xeeeeeeee
)

// ConnectionState reports whether a connector has a display attached.
// Values match the kernel's drmModeConnection encoding.
type ConnectionState uint32

const (
	Connected         ConnectionState = 1
	Disconnected      ConnectionState = 2
	UnknownConnection ConnectionState = 3
)

func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case UnknownConnection:
		return "unknown"
	default:
		return "invalid"
	}
}

// PropertyFlags classify a property's value encoding. Values match the
// kernel's DRM_MODE_PROP_* bits.
type PropertyFlags uint32

const (
	PropPending   PropertyFlags = 1 << 0
	PropRange     PropertyFlags = 1 << 1
	PropImmutable PropertyFlags = 1 << 2
	PropEnum      PropertyFlags = 1 << 3
	PropBlob      PropertyFlags = 1 << 4
	PropBitmask   PropertyFlags = 1 << 5
)

func (f PropertyFlags) IsBlob() bool      { return f&PropBlob != 0 }
func (f PropertyFlags) IsRange() bool     { return f&PropRange != 0 }
func (f PropertyFlags) IsEnum() bool      { return f&PropEnum != 0 }
func (f PropertyFlags) IsImmutable() bool { return f&PropImmutable != 0 }

// PlaneKind is the value of a plane's "type" property.
type PlaneKind uint64

const (
	PlaneOverlay PlaneKind = 0
	PlanePrimary PlaneKind = 1
	PlaneCursor  PlaneKind = 2
)

func (k PlaneKind) String() string {
	switch k {
	case PlaneOverlay:
		return "overlay"
	case PlanePrimary:
		return "primary"
	case PlaneCursor:
		return "cursor"
	default:
		return "invalid"
	}
}

// ConnectorKind is the physical connector type reported by the kernel.
type ConnectorKind uint32

const (
	ConnectorUnknown     ConnectorKind = 0
	ConnectorVGA         ConnectorKind = 1
	ConnectorDVII        ConnectorKind = 2
	ConnectorDVID        ConnectorKind = 3
	ConnectorDVIA        ConnectorKind = 4
	ConnectorComposite   ConnectorKind = 5
	ConnectorSVideo      ConnectorKind = 6
	ConnectorLVDS        ConnectorKind = 7
	ConnectorComponent   ConnectorKind = 8
	ConnectorNinePinDIN  ConnectorKind = 9
	ConnectorDisplayPort ConnectorKind = 10
	ConnectorHDMIA       ConnectorKind = 11
	ConnectorHDMIB       ConnectorKind = 12
	ConnectorTV          ConnectorKind = 13
	ConnectorEDP         ConnectorKind = 14
	ConnectorVirtual     ConnectorKind = 15
	ConnectorDSI         ConnectorKind = 16
	ConnectorDPI         ConnectorKind = 17
)

var connectorKindNames = map[ConnectorKind]string{
	ConnectorUnknown:     "Unknown",
	ConnectorVGA:         "VGA",
	ConnectorDVII:        "DVI-I",
	ConnectorDVID:        "DVI-D",
	ConnectorDVIA:        "DVI-A",
	ConnectorComposite:   "Composite",
	ConnectorSVideo:      "S-Video",
	ConnectorLVDS:        "LVDS",
	ConnectorComponent:   "Component",
	ConnectorNinePinDIN:  "DIN",
	ConnectorDisplayPort: "DP",
	ConnectorHDMIA:       "HDMI-A",
	ConnectorHDMIB:       "HDMI-B",
	ConnectorTV:          "TV",
	ConnectorEDP:         "eDP",
	ConnectorVirtual:     "Virtual",
	ConnectorDSI:         "DSI",
	ConnectorDPI:         "DPI",
}

func (k ConnectorKind) String() string {
	if n, ok := connectorKindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// DPMSMode is a connector power level, written through the connector's
// "DPMS" property.
type DPMSMode uint64

const (
	DPMSOn      DPMSMode = 0
	DPMSStandby DPMSMode = 1
	DPMSSuspend DPMSMode = 2
	DPMSOff     DPMSMode = 3
)

func (m DPMSMode) String() string {
	switch m {
	case DPMSOn:
		return "on"
	case DPMSStandby:
		return "standby"
	case DPMSSuspend:
		return "suspend"
	case DPMSOff:
		return "off"
	default:
		return "invalid"
	}
}

// DriverInfo identifies the kernel driver behind a card node.
type DriverInfo struct {
	Name       string
	Date       string
	Desc       string
	Major      int32
	Minor      int32
	Patchlevel int32
}

// Version returns the driver version as "major.minor.patchlevel".
func (d DriverInfo) Version() string {
	return fmt.Sprintf("%d.%d.%d", d.Major, d.Minor, d.Patchlevel)
}

// ResourceList is the card-level listing of mode-setting object ids.
type ResourceList struct {
	FBs        []uint32
	Crtcs      []uint32
	Connectors []uint32
	Encoders   []uint32

	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

// ConnectorInfo describes one connector as reported by the kernel.
type ConnectorInfo struct {
	ID             uint32
	CurrentEncoder uint32
	Kind           ConnectorKind
	KindIndex      uint32
	Connection     ConnectionState
	WidthMM        uint32
	HeightMM       uint32
	Subpixel       uint32

	Modes            []ModeInfo
	PossibleEncoders []uint32
}

// EncoderInfo describes one encoder. PossibleCrtcs is a bitmask indexed by
// crtc pipe (bit N set means the crtc at listing position N is legal).
type EncoderInfo struct {
	ID             uint32
	Kind           uint32
	CurrentCrtc    uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

// CrtcInfo describes one crtc and its current scan-out state.
type CrtcInfo struct {
	ID        uint32
	BufferID  uint32
	X, Y      uint32
	Width     uint32
	Height    uint32
	GammaSize uint32
	ModeValid bool
	Mode      ModeInfo
}

// PlaneInfo describes one hardware plane. PossibleCrtcs is a pipe bitmask
// like EncoderInfo's.
type PlaneInfo struct {
	ID            uint32
	CurrentCrtc   uint32
	CurrentFB     uint32
	PossibleCrtcs uint32
	Formats       []PixelFormat
}

// PropertyInfo describes a property definition shared across objects.
type PropertyInfo struct {
	ID     uint32
	Name   string
	Flags  PropertyFlags
	Values []uint64
	Enums  []PropertyEnum
}

// PropertyEnum is one named value of an enum property.
type PropertyEnum struct {
	Value uint64
	Name  string
}

// ObjectProperties is the property instance list of one object: parallel
// slices of property id and current value.
type ObjectProperties struct {
	IDs    []uint32
	Values []uint64
}

// DumbBuffer is a kernel-allocated linear scan-out buffer.
type DumbBuffer struct {
	Handle uint32
	Pitch  uint32
	Size   uint64
	Width  uint32
	Height uint32
	BPP    uint32
}

// Device is the kernel display subsystem as consumed by this module.
//
// Enumeration calls return snapshots; the kernel may change state between
// calls (hotplug). Mutating calls are synchronous and all-or-nothing.
type Device interface {
	// Resource enumeration.
	Resources() (*ResourceList, error)
	PlaneResources() ([]uint32, error)
	Connector(id uint32) (*ConnectorInfo, error)
	Encoder(id uint32) (*EncoderInfo, error)
	Crtc(id uint32) (*CrtcInfo, error)
	Plane(id uint32) (*PlaneInfo, error)

	// Properties and blobs.
	ObjectProperties(objID uint32, objType ObjectType) (*ObjectProperties, error)
	Property(id uint32) (*PropertyInfo, error)
	SetConnectorProperty(connectorID, propertyID uint32, value uint64) error
	CreateBlob(data []byte) (uint32, error)
	DestroyBlob(id uint32) error

	// Atomic commits.
	Commit(req *AtomicRequest, flags CommitFlags) error

	// Framebuffer and buffer management, used by importers.
	AddFramebuffer(fb *FramebufferInfo) (uint32, error)
	RemoveFramebuffer(id uint32) error
	PrimeFDToHandle(fd int) (uint32, error)
	CloseHandle(handle uint32) error
	CreateDumbBuffer(width, height, bpp uint32) (*DumbBuffer, error)
	MapDumbBuffer(b *DumbBuffer) ([]byte, error)
	DestroyDumbBuffer(handle uint32) error

	// Event delivery. WaitEvent blocks until the event descriptor becomes
	// readable or the timeout elapses; ReadEvents drains whatever records
	// are queued without blocking. QueueVBlank requests one vblank event
	// for the crtc at the given pipe index.
	WaitEvent(timeout time.Duration) (bool, error)
	ReadEvents() ([]Event, error)
	QueueVBlank(pipe int, userData uint64) error

	Close() error
}

// FramebufferInfo is the argument to AddFramebuffer, mirroring the
// kernel's fb_cmd2 layout: one handle/pitch/offset triple per plane of
// the pixel format.
type FramebufferInfo struct {
	Width   uint32
	Height  uint32
	Format  PixelFormat
	Handles [4]uint32
	Pitches [4]uint32
	Offsets [4]uint32
}

// EventType discriminates records read from the event descriptor.
type EventType uint8

const (
	// EventHotplug reports a connector change; re-enumerate to learn what
	// changed.
	EventHotplug EventType = iota + 1
	// EventVBlank reports a vertical blank on one crtc, after QueueVBlank.
	EventVBlank
	// EventFlipComplete reports a page flip requested with PageFlipEvent.
	EventFlipComplete
)

func (t EventType) String() string {
	switch t {
	case EventHotplug:
		return "hotplug"
	case EventVBlank:
		return "vblank"
	case EventFlipComplete:
		return "flip-complete"
	default:
		return "invalid"
	}
}

// Event is one record from the event descriptor. CrtcID and Sequence are
// meaningful for vblank and flip-complete records only.
type Event struct {
	Type     EventType
	CrtcID   uint32
	Sequence uint32
	UserData uint64
	Time     time.Time
}

// CommitFlags modify atomic commit behavior. Values match the kernel's
// DRM_MODE_ATOMIC_* / DRM_MODE_PAGE_FLIP_* bits.
type CommitFlags uint32

const (
	PageFlipEvent CommitFlags = 0x0001
	TestOnly      CommitFlags = 0x0100
	Nonblock      CommitFlags = 0x0200
	AllowModeset  CommitFlags = 0x0400
)
