//go:build linux

package kms

import "unsafe"

// ioctl request numbers for the DRM character device (type 'd'). Built
// with the usual _IOC encoding: dir<<30 | size<<16 | type<<8 | nr.
const (
	iocWrite uintptr = 1
	iocRead  uintptr = 2
	drmType  uintptr = 'd'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | drmType<<8 | nr
}

func ioW(nr, size uintptr) uintptr  { return ioc(iocWrite, nr, size) }
func ioWR(nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, nr, size) }

var (
	ioctlVersion      = ioWR(0x00, unsafe.Sizeof(drmVersion{}))
	ioctlGetCap       = ioWR(0x0c, unsafe.Sizeof(drmGetCap{}))
	ioctlSetClientCap = ioW(0x0d, unsafe.Sizeof(drmSetClientCap{}))
	ioctlGemClose     = ioW(0x09, unsafe.Sizeof(drmGemClose{}))
	ioctlWaitVBlank   = ioWR(0x3a, unsafe.Sizeof(drmWaitVBlank{}))
	ioctlPrimeFDToHandle = ioWR(0x2e, unsafe.Sizeof(drmPrimeHandle{}))

	ioctlModeGetResources  = ioWR(0xa0, unsafe.Sizeof(drmModeCardRes{}))
	ioctlModeGetCrtc       = ioWR(0xa1, unsafe.Sizeof(drmModeCrtc{}))
	ioctlModeGetEncoder    = ioWR(0xa6, unsafe.Sizeof(drmModeGetEncoder{}))
	ioctlModeGetConnector  = ioWR(0xa7, unsafe.Sizeof(drmModeGetConnector{}))
	ioctlModeGetProperty   = ioWR(0xaa, unsafe.Sizeof(drmModeGetProperty{}))
	ioctlModeSetProperty   = ioWR(0xab, unsafe.Sizeof(drmModeConnectorSetProperty{}))
	ioctlModeGetPropBlob   = ioWR(0xac, unsafe.Sizeof(drmModeGetBlob{}))
	ioctlModeRmFB          = ioWR(0xaf, unsafe.Sizeof(uint32(0)))
	ioctlModeCreateDumb    = ioWR(0xb2, unsafe.Sizeof(drmModeCreateDumb{}))
	ioctlModeMapDumb       = ioWR(0xb3, unsafe.Sizeof(drmModeMapDumb{}))
	ioctlModeDestroyDumb   = ioWR(0xb4, unsafe.Sizeof(drmModeDestroyDumb{}))
	ioctlModeGetPlaneRes   = ioWR(0xb5, unsafe.Sizeof(drmModeGetPlaneRes{}))
	ioctlModeGetPlane      = ioWR(0xb6, unsafe.Sizeof(drmModeGetPlane{}))
	ioctlModeAddFB2        = ioWR(0xb8, unsafe.Sizeof(drmModeFBCmd2{}))
	ioctlModeObjGetProps   = ioWR(0xb9, unsafe.Sizeof(drmModeObjGetProperties{}))
	ioctlModeAtomic        = ioWR(0xbc, unsafe.Sizeof(drmModeAtomic{}))
	ioctlModeCreateBlob    = ioWR(0xbd, unsafe.Sizeof(drmModeCreateBlob{}))
	ioctlModeDestroyBlob   = ioWR(0xbe, unsafe.Sizeof(drmModeDestroyBlob{}))
)

// Capabilities.
const (
	capDumbBuffer       uint64 = 0x1
	capCrtcInVBlankEvent uint64 = 0x34

	clientCapUniversalPlanes uint64 = 2
	clientCapAtomic          uint64 = 3
)

// Vblank request bits.
const (
	vblankRelative      uint32 = 0x1
	vblankEvent         uint32 = 0x4000000
	vblankHighCrtcShift        = 1
	vblankHighCrtcMask  uint32 = 0x3e
	vblankSecondary     uint32 = 0x40000000
)

// Event record types on the card descriptor.
const (
	drmEventVBlank       uint32 = 0x01
	drmEventFlipComplete uint32 = 0x02
	drmEventCrtcSequence uint32 = 0x03

	drmEventHeaderSize = 8
	drmEventVBlankSize = 32
)

type drmVersion struct {
	major      int32
	minor      int32
	patchlevel int32
	_          uint32
	nameLen    uint64
	name       uint64
	dateLen    uint64
	date       uint64
	descLen    uint64
	desc       uint64
}

type drmGetCap struct {
	capability uint64
	value      uint64
}

type drmSetClientCap struct {
	capability uint64
	value      uint64
}

type drmGemClose struct {
	handle uint32
	pad    uint32
}

type drmPrimeHandle struct {
	handle uint32
	flags  uint32
	fd     int32
}

// drmWaitVBlank is the request/reply union. For requests, word0 carries
// the user signal; for replies word0/word1 carry the timestamp.
type drmWaitVBlank struct {
	typ      uint32
	sequence uint32
	word0    uint64
	word1    uint64
}

type drmModeInfo struct {
	clock                                         uint32
	hdisplay, hsyncStart, hsyncEnd, htotal, hskew uint16
	vdisplay, vsyncStart, vsyncEnd, vtotal, vscan uint16
	vrefresh                                      uint32
	flags                                         uint32
	typ                                           uint32
	name                                          [32]byte
}

func (m *drmModeInfo) export() ModeInfo {
	name := m.name[:]
	for i, b := range name {
		if b == 0 {
			name = name[:i]
			break
		}
	}
	return ModeInfo{
		Clock:      m.clock,
		HDisplay:   m.hdisplay,
		HSyncStart: m.hsyncStart,
		HSyncEnd:   m.hsyncEnd,
		HTotal:     m.htotal,
		HSkew:      m.hskew,
		VDisplay:   m.vdisplay,
		VSyncStart: m.vsyncStart,
		VSyncEnd:   m.vsyncEnd,
		VTotal:     m.vtotal,
		VScan:      m.vscan,
		VRefresh:   m.vrefresh,
		Flags:      m.flags,
		Type:       m.typ,
		Name:       string(name),
	}
}

type drmModeCardRes struct {
	fbIDPtr         uint64
	crtcIDPtr       uint64
	connectorIDPtr  uint64
	encoderIDPtr    uint64
	countFBs        uint32
	countCrtcs      uint32
	countConnectors uint32
	countEncoders   uint32
	minWidth        uint32
	maxWidth        uint32
	minHeight       uint32
	maxHeight       uint32
}

type drmModeCrtc struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x                uint32
	y                uint32
	gammaSize        uint32
	modeValid        uint32
	mode             drmModeInfo
}

type drmModeGetEncoder struct {
	encoderID      uint32
	encoderType    uint32
	crtcID         uint32
	possibleCrtcs  uint32
	possibleClones uint32
}

type drmModeGetConnector struct {
	encodersPtr     uint64
	modesPtr        uint64
	propsPtr        uint64
	propValuesPtr   uint64
	countModes      uint32
	countProps      uint32
	countEncoders   uint32
	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32
	connection      uint32
	mmWidth         uint32
	mmHeight        uint32
	subpixel        uint32
	pad             uint32
}

type drmModeGetPlaneRes struct {
	planeIDPtr  uint64
	countPlanes uint32
	_           uint32
}

type drmModeGetPlane struct {
	planeID          uint32
	crtcID           uint32
	fbID             uint32
	possibleCrtcs    uint32
	gammaSize        uint32
	countFormatTypes uint32
	formatTypePtr    uint64
}

type drmModeObjGetProperties struct {
	propsPtr      uint64
	propValuesPtr uint64
	countProps    uint32
	objID         uint32
	objType       uint32
	_             uint32
}

type drmModeGetProperty struct {
	valuesPtr      uint64
	enumBlobPtr    uint64
	propID         uint32
	flags          uint32
	name           [32]byte
	countValues    uint32
	countEnumBlobs uint32
}

type drmModePropertyEnum struct {
	value uint64
	name  [32]byte
}

type drmModeConnectorSetProperty struct {
	value       uint64
	propID      uint32
	connectorID uint32
}

type drmModeGetBlob struct {
	blobID uint32
	length uint32
	data   uint64
}

type drmModeCreateBlob struct {
	data   uint64
	length uint32
	blobID uint32
}

type drmModeDestroyBlob struct {
	blobID uint32
}

type drmModeAtomic struct {
	flags         uint32
	countObjs     uint32
	objsPtr       uint64
	countPropsPtr uint64
	propsPtr      uint64
	propValuesPtr uint64
	reserved      uint64
	userData      uint64
}

type drmModeFBCmd2 struct {
	fbID        uint32
	width       uint32
	height      uint32
	pixelFormat uint32
	flags       uint32
	handles     [4]uint32
	pitches     [4]uint32
	offsets     [4]uint32
	modifier    [4]uint64
}

type drmModeCreateDumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type drmModeMapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type drmModeDestroyDumb struct {
	handle uint32
}
