//go:build linux

package kms

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Card is a Device backed by a DRM character device node. It owns the
// card file descriptor and a kobject-uevent socket for hotplug records;
// both feed WaitEvent/ReadEvents.
type Card struct {
	fd     int
	uevent int
	path   string
	closed atomic.Bool

	crtcInVBlank bool
}

var _ Device = (*Card)(nil)

// Open opens the card node at path and prepares it for atomic
// mode-setting. Universal planes and atomic client capabilities are
// enabled; a device without atomic support is rejected with ErrNoAtomic.
func Open(path string) (*Card, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("kms: open %s: %w", path, err)
	}
	return NewCard(fd, path)
}

// NewCard wraps an already open card descriptor, for callers that obtain
// the fd elsewhere (session managers such as logind). The Card takes
// ownership of fd.
func NewCard(fd int, path string) (*Card, error) {
	c := &Card{fd: fd, uevent: -1, path: path}
	if err := c.setClientCap(clientCapUniversalPlanes, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kms: enable universal planes on %s: %w", path, err)
	}
	if err := c.setClientCap(clientCapAtomic, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s: %w", ErrNoAtomic, path, err)
	}
	if v, err := c.getCap(capCrtcInVBlankEvent); err == nil && v != 0 {
		c.crtcInVBlank = true
	}
	ufd, err := openUeventSocket()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kms: hotplug socket: %w", err)
	}
	c.uevent = ufd
	return c, nil
}

// Path returns the device node this card was opened from.
func (c *Card) Path() string { return c.path }

// DriverVersion reports which kernel driver backs the card. Same two-call
// dance as the enumerators, sizing the string buffers first.
func (c *Card) DriverVersion() (*DriverInfo, error) {
	var ver drmVersion
	if err := c.ioctl(ioctlVersion, unsafe.Pointer(&ver)); err != nil {
		return nil, c.wrap("get version", err)
	}
	name := make([]byte, ver.nameLen)
	date := make([]byte, ver.dateLen)
	desc := make([]byte, ver.descLen)
	ver.name = sliceAddr(name)
	ver.date = sliceAddr(date)
	ver.desc = sliceAddr(desc)
	if err := c.ioctl(ioctlVersion, unsafe.Pointer(&ver)); err != nil {
		return nil, c.wrap("get version", err)
	}
	runtime.KeepAlive(name)
	runtime.KeepAlive(date)
	runtime.KeepAlive(desc)
	return &DriverInfo{
		Name:       string(name),
		Date:       string(date),
		Desc:       string(desc),
		Major:      ver.major,
		Minor:      ver.minor,
		Patchlevel: ver.patchlevel,
	}, nil
}

func (c *Card) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := unix.Close(c.fd)
	if c.uevent >= 0 {
		unix.Close(c.uevent)
	}
	if err != nil {
		return fmt.Errorf("kms: close %s: %w", c.path, err)
	}
	return nil
}

func (c *Card) ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), req, uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		return errno
	}
}

func (c *Card) wrap(op string, err error) error {
	return fmt.Errorf("kms: %s: %w", op, err)
}

func (c *Card) getCap(capability uint64) (uint64, error) {
	arg := drmGetCap{capability: capability}
	if err := c.ioctl(ioctlGetCap, unsafe.Pointer(&arg)); err != nil {
		return 0, c.wrap("get cap", err)
	}
	return arg.value, nil
}

func (c *Card) setClientCap(capability, value uint64) error {
	arg := drmSetClientCap{capability: capability, value: value}
	return c.ioctl(ioctlSetClientCap, unsafe.Pointer(&arg))
}

func sliceAddr[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

// Resources enumerates the card's mode-setting objects. The usual DRM
// two-call dance: ask for counts, allocate, fill; retried when a hotplug
// grows a count between the calls.
func (c *Card) Resources() (*ResourceList, error) {
	for {
		var res drmModeCardRes
		if err := c.ioctl(ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
			return nil, c.wrap("get resources", err)
		}
		fbs := make([]uint32, res.countFBs)
		crtcs := make([]uint32, res.countCrtcs)
		connectors := make([]uint32, res.countConnectors)
		encoders := make([]uint32, res.countEncoders)
		want := res
		res.fbIDPtr = sliceAddr(fbs)
		res.crtcIDPtr = sliceAddr(crtcs)
		res.connectorIDPtr = sliceAddr(connectors)
		res.encoderIDPtr = sliceAddr(encoders)
		if err := c.ioctl(ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
			return nil, c.wrap("get resources", err)
		}
		runtime.KeepAlive(fbs)
		if res.countFBs > want.countFBs || res.countCrtcs > want.countCrtcs ||
			res.countConnectors > want.countConnectors || res.countEncoders > want.countEncoders {
			continue
		}
		return &ResourceList{
			FBs:        fbs[:res.countFBs],
			Crtcs:      crtcs[:res.countCrtcs],
			Connectors: connectors[:res.countConnectors],
			Encoders:   encoders[:res.countEncoders],
			MinWidth:   res.minWidth,
			MaxWidth:   res.maxWidth,
			MinHeight:  res.minHeight,
			MaxHeight:  res.maxHeight,
		}, nil
	}
}

func (c *Card) PlaneResources() ([]uint32, error) {
	for {
		var res drmModeGetPlaneRes
		if err := c.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&res)); err != nil {
			return nil, c.wrap("get plane resources", err)
		}
		planes := make([]uint32, res.countPlanes)
		want := res.countPlanes
		res.planeIDPtr = sliceAddr(planes)
		if err := c.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&res)); err != nil {
			return nil, c.wrap("get plane resources", err)
		}
		runtime.KeepAlive(planes)
		if res.countPlanes > want {
			continue
		}
		return planes[:res.countPlanes], nil
	}
}

// Connector fetches one connector. A zero mode count on the first call
// makes the kernel re-probe the sink, so hotplug re-reads always see
// fresh state.
func (c *Card) Connector(id uint32) (*ConnectorInfo, error) {
	for {
		conn := drmModeGetConnector{connectorID: id}
		if err := c.ioctl(ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
			return nil, c.wrap(fmt.Sprintf("get connector %d", id), err)
		}
		modes := make([]drmModeInfo, conn.countModes)
		encoders := make([]uint32, conn.countEncoders)
		wantModes, wantEncoders := conn.countModes, conn.countEncoders
		conn = drmModeGetConnector{
			connectorID:   id,
			countModes:    conn.countModes,
			countEncoders: conn.countEncoders,
			modesPtr:      sliceAddr(modes),
			encodersPtr:   sliceAddr(encoders),
		}
		if err := c.ioctl(ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
			return nil, c.wrap(fmt.Sprintf("get connector %d", id), err)
		}
		runtime.KeepAlive(modes)
		runtime.KeepAlive(encoders)
		if conn.countModes > wantModes || conn.countEncoders > wantEncoders {
			continue
		}
		out := &ConnectorInfo{
			ID:               conn.connectorID,
			CurrentEncoder:   conn.encoderID,
			Kind:             ConnectorKind(conn.connectorType),
			KindIndex:        conn.connectorTypeID,
			Connection:       ConnectionState(conn.connection),
			WidthMM:          conn.mmWidth,
			HeightMM:         conn.mmHeight,
			Subpixel:         conn.subpixel,
			PossibleEncoders: encoders[:conn.countEncoders],
		}
		out.Modes = make([]ModeInfo, conn.countModes)
		for i := range out.Modes {
			out.Modes[i] = modes[i].export()
		}
		return out, nil
	}
}

func (c *Card) Encoder(id uint32) (*EncoderInfo, error) {
	enc := drmModeGetEncoder{encoderID: id}
	if err := c.ioctl(ioctlModeGetEncoder, unsafe.Pointer(&enc)); err != nil {
		return nil, c.wrap(fmt.Sprintf("get encoder %d", id), err)
	}
	return &EncoderInfo{
		ID:             enc.encoderID,
		Kind:           enc.encoderType,
		CurrentCrtc:    enc.crtcID,
		PossibleCrtcs:  enc.possibleCrtcs,
		PossibleClones: enc.possibleClones,
	}, nil
}

func (c *Card) Crtc(id uint32) (*CrtcInfo, error) {
	crtc := drmModeCrtc{crtcID: id}
	if err := c.ioctl(ioctlModeGetCrtc, unsafe.Pointer(&crtc)); err != nil {
		return nil, c.wrap(fmt.Sprintf("get crtc %d", id), err)
	}
	out := &CrtcInfo{
		ID:        crtc.crtcID,
		BufferID:  crtc.fbID,
		X:         crtc.x,
		Y:         crtc.y,
		GammaSize: crtc.gammaSize,
		ModeValid: crtc.modeValid != 0,
	}
	if out.ModeValid {
		out.Mode = crtc.mode.export()
		out.Width = uint32(crtc.mode.hdisplay)
		out.Height = uint32(crtc.mode.vdisplay)
	}
	return out, nil
}

func (c *Card) Plane(id uint32) (*PlaneInfo, error) {
	for {
		plane := drmModeGetPlane{planeID: id}
		if err := c.ioctl(ioctlModeGetPlane, unsafe.Pointer(&plane)); err != nil {
			return nil, c.wrap(fmt.Sprintf("get plane %d", id), err)
		}
		formats := make([]uint32, plane.countFormatTypes)
		want := plane.countFormatTypes
		plane = drmModeGetPlane{
			planeID:          id,
			countFormatTypes: plane.countFormatTypes,
			formatTypePtr:    sliceAddr(formats),
		}
		if err := c.ioctl(ioctlModeGetPlane, unsafe.Pointer(&plane)); err != nil {
			return nil, c.wrap(fmt.Sprintf("get plane %d", id), err)
		}
		runtime.KeepAlive(formats)
		if plane.countFormatTypes > want {
			continue
		}
		out := &PlaneInfo{
			ID:            plane.planeID,
			CurrentCrtc:   plane.crtcID,
			CurrentFB:     plane.fbID,
			PossibleCrtcs: plane.possibleCrtcs,
		}
		out.Formats = make([]PixelFormat, plane.countFormatTypes)
		for i, f := range formats[:plane.countFormatTypes] {
			out.Formats[i] = PixelFormat(f)
		}
		return out, nil
	}
}

func (c *Card) ObjectProperties(objID uint32, objType ObjectType) (*ObjectProperties, error) {
	for {
		props := drmModeObjGetProperties{objID: objID, objType: uint32(objType)}
		if err := c.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&props)); err != nil {
			return nil, c.wrap(fmt.Sprintf("get properties of object %d", objID), err)
		}
		ids := make([]uint32, props.countProps)
		values := make([]uint64, props.countProps)
		want := props.countProps
		props.propsPtr = sliceAddr(ids)
		props.propValuesPtr = sliceAddr(values)
		if err := c.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&props)); err != nil {
			return nil, c.wrap(fmt.Sprintf("get properties of object %d", objID), err)
		}
		runtime.KeepAlive(ids)
		runtime.KeepAlive(values)
		if props.countProps > want {
			continue
		}
		return &ObjectProperties{
			IDs:    ids[:props.countProps],
			Values: values[:props.countProps],
		}, nil
	}
}

func (c *Card) Property(id uint32) (*PropertyInfo, error) {
	for {
		prop := drmModeGetProperty{propID: id}
		if err := c.ioctl(ioctlModeGetProperty, unsafe.Pointer(&prop)); err != nil {
			return nil, c.wrap(fmt.Sprintf("get property %d", id), err)
		}
		values := make([]uint64, prop.countValues)
		enums := make([]drmModePropertyEnum, prop.countEnumBlobs)
		wantValues, wantEnums := prop.countValues, prop.countEnumBlobs
		flags := PropertyFlags(prop.flags)
		fill := drmModeGetProperty{
			propID:         id,
			countValues:    prop.countValues,
			valuesPtr:      sliceAddr(values),
			countEnumBlobs: prop.countEnumBlobs,
		}
		if flags.IsEnum() || flags&PropBitmask != 0 {
			fill.enumBlobPtr = sliceAddr(enums)
		}
		if err := c.ioctl(ioctlModeGetProperty, unsafe.Pointer(&fill)); err != nil {
			return nil, c.wrap(fmt.Sprintf("get property %d", id), err)
		}
		runtime.KeepAlive(values)
		runtime.KeepAlive(enums)
		if fill.countValues > wantValues || fill.countEnumBlobs > wantEnums {
			continue
		}
		name := prop.name[:]
		for i, b := range name {
			if b == 0 {
				name = name[:i]
				break
			}
		}
		out := &PropertyInfo{
			ID:     prop.propID,
			Name:   string(name),
			Flags:  flags,
			Values: values[:fill.countValues],
		}
		if fill.enumBlobPtr != 0 {
			out.Enums = make([]PropertyEnum, fill.countEnumBlobs)
			for i, e := range enums[:fill.countEnumBlobs] {
				en := e.name[:]
				for j, b := range en {
					if b == 0 {
						en = en[:j]
						break
					}
				}
				out.Enums[i] = PropertyEnum{Value: e.value, Name: string(en)}
			}
		}
		return out, nil
	}
}

func (c *Card) SetConnectorProperty(connectorID, propertyID uint32, value uint64) error {
	arg := drmModeConnectorSetProperty{
		value:       value,
		propID:      propertyID,
		connectorID: connectorID,
	}
	if err := c.ioctl(ioctlModeSetProperty, unsafe.Pointer(&arg)); err != nil {
		return c.wrap(fmt.Sprintf("set property %d on connector %d", propertyID, connectorID), err)
	}
	return nil
}

func (c *Card) CreateBlob(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, c.wrap("create blob", unix.EINVAL)
	}
	arg := drmModeCreateBlob{
		data:   sliceAddr(data),
		length: uint32(len(data)),
	}
	if err := c.ioctl(ioctlModeCreateBlob, unsafe.Pointer(&arg)); err != nil {
		return 0, c.wrap("create blob", err)
	}
	runtime.KeepAlive(data)
	return arg.blobID, nil
}

func (c *Card) DestroyBlob(id uint32) error {
	arg := drmModeDestroyBlob{blobID: id}
	if err := c.ioctl(ioctlModeDestroyBlob, unsafe.Pointer(&arg)); err != nil {
		return c.wrap(fmt.Sprintf("destroy blob %d", id), err)
	}
	return nil
}

func (c *Card) Commit(req *AtomicRequest, flags CommitFlags) error {
	objs, counts, props, values := req.encode()
	arg := drmModeAtomic{
		flags:         uint32(flags),
		countObjs:     uint32(len(objs)),
		objsPtr:       sliceAddr(objs),
		countPropsPtr: sliceAddr(counts),
		propsPtr:      sliceAddr(props),
		propValuesPtr: sliceAddr(values),
	}
	if err := c.ioctl(ioctlModeAtomic, unsafe.Pointer(&arg)); err != nil {
		return c.wrap("atomic commit", err)
	}
	runtime.KeepAlive(objs)
	runtime.KeepAlive(counts)
	runtime.KeepAlive(props)
	runtime.KeepAlive(values)
	return nil
}

func (c *Card) AddFramebuffer(fb *FramebufferInfo) (uint32, error) {
	arg := drmModeFBCmd2{
		width:       fb.Width,
		height:      fb.Height,
		pixelFormat: uint32(fb.Format),
		handles:     fb.Handles,
		pitches:     fb.Pitches,
		offsets:     fb.Offsets,
	}
	if err := c.ioctl(ioctlModeAddFB2, unsafe.Pointer(&arg)); err != nil {
		return 0, c.wrap("add framebuffer", err)
	}
	return arg.fbID, nil
}

func (c *Card) RemoveFramebuffer(id uint32) error {
	if err := c.ioctl(ioctlModeRmFB, unsafe.Pointer(&id)); err != nil {
		return c.wrap(fmt.Sprintf("remove framebuffer %d", id), err)
	}
	return nil
}

func (c *Card) PrimeFDToHandle(fd int) (uint32, error) {
	arg := drmPrimeHandle{fd: int32(fd)}
	if err := c.ioctl(ioctlPrimeFDToHandle, unsafe.Pointer(&arg)); err != nil {
		return 0, c.wrap("prime fd to handle", err)
	}
	return arg.handle, nil
}

func (c *Card) CloseHandle(handle uint32) error {
	arg := drmGemClose{handle: handle}
	if err := c.ioctl(ioctlGemClose, unsafe.Pointer(&arg)); err != nil {
		return c.wrap(fmt.Sprintf("close handle %d", handle), err)
	}
	return nil
}

func (c *Card) CreateDumbBuffer(width, height, bpp uint32) (*DumbBuffer, error) {
	arg := drmModeCreateDumb{height: height, width: width, bpp: bpp}
	if err := c.ioctl(ioctlModeCreateDumb, unsafe.Pointer(&arg)); err != nil {
		return nil, c.wrap("create dumb buffer", err)
	}
	return &DumbBuffer{
		Handle: arg.handle,
		Pitch:  arg.pitch,
		Size:   arg.size,
		Width:  width,
		Height: height,
		BPP:    bpp,
	}, nil
}

func (c *Card) MapDumbBuffer(b *DumbBuffer) ([]byte, error) {
	arg := drmModeMapDumb{handle: b.Handle}
	if err := c.ioctl(ioctlModeMapDumb, unsafe.Pointer(&arg)); err != nil {
		return nil, c.wrap("map dumb buffer", err)
	}
	data, err := unix.Mmap(c.fd, int64(arg.offset), int(b.Size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, c.wrap("mmap dumb buffer", err)
	}
	return data, nil
}

func (c *Card) DestroyDumbBuffer(handle uint32) error {
	arg := drmModeDestroyDumb{handle: handle}
	if err := c.ioctl(ioctlModeDestroyDumb, unsafe.Pointer(&arg)); err != nil {
		return c.wrap(fmt.Sprintf("destroy dumb buffer %d", handle), err)
	}
	return nil
}

// QueueVBlank asks for one vblank event on the crtc at the given pipe
// index. The event arrives on the card descriptor and is surfaced by
// ReadEvents.
func (c *Card) QueueVBlank(pipe int, userData uint64) error {
	typ := vblankRelative | vblankEvent
	if pipe > 1 {
		typ |= (uint32(pipe) << vblankHighCrtcShift) & vblankHighCrtcMask
	} else if pipe == 1 {
		typ |= vblankSecondary
	}
	arg := drmWaitVBlank{typ: typ, sequence: 1, word0: userData}
	if err := c.ioctl(ioctlWaitVBlank, unsafe.Pointer(&arg)); err != nil {
		return c.wrap(fmt.Sprintf("queue vblank on pipe %d", pipe), err)
	}
	return nil
}

// WaitEvent blocks until the card or hotplug descriptor is readable, or
// the timeout elapses. A negative timeout waits forever.
func (c *Card) WaitEvent(timeout time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	fds := []unix.PollFd{
		{Fd: int32(c.fd), Events: unix.POLLIN},
		{Fd: int32(c.uevent), Events: unix.POLLIN},
	}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, c.wrap("poll events", err)
	}
	return n > 0, nil
}

// ReadEvents drains all queued records from both descriptors without
// blocking.
func (c *Card) ReadEvents() ([]Event, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	fds := []unix.PollFd{
		{Fd: int32(c.fd), Events: unix.POLLIN},
		{Fd: int32(c.uevent), Events: unix.POLLIN},
	}
	if _, err := unix.Poll(fds, 0); err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, c.wrap("poll events", err)
	}
	var events []Event
	if fds[0].Revents&unix.POLLIN != 0 {
		evs, err := c.readCardEvents()
		if err != nil {
			return events, err
		}
		events = append(events, evs...)
	}
	if fds[1].Revents&unix.POLLIN != 0 {
		evs, err := readUeventRecords(c.uevent)
		if err != nil {
			return events, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

func (c *Card) readCardEvents() ([]Event, error) {
	buf := make([]byte, 1024)
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, c.wrap("read events", err)
	}
	ne := binary.NativeEndian
	var events []Event
	for off := 0; off+drmEventHeaderSize <= n; {
		typ := ne.Uint32(buf[off:])
		length := int(ne.Uint32(buf[off+4:]))
		if length < drmEventHeaderSize || off+length > n {
			break
		}
		switch typ {
		case drmEventVBlank, drmEventFlipComplete:
			if length >= drmEventVBlankSize {
				userData := ne.Uint64(buf[off+8:])
				sec := ne.Uint32(buf[off+16:])
				usec := ne.Uint32(buf[off+20:])
				seq := ne.Uint32(buf[off+24:])
				crtc := uint32(0)
				if c.crtcInVBlank {
					crtc = ne.Uint32(buf[off+28:])
				}
				et := EventVBlank
				if typ == drmEventFlipComplete {
					et = EventFlipComplete
				}
				events = append(events, Event{
					Type:     et,
					CrtcID:   crtc,
					Sequence: seq,
					UserData: userData,
					Time:     time.Unix(int64(sec), int64(usec)*1000),
				})
			}
		}
		off += length
	}
	return events, nil
}
