// Package kmstest provides a scriptable in-memory kms.Device for testing.
package kmstest

import (
	"fmt"
	"sync"
	"time"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

// Hooks customize fake behavior per call. A nil hook means default
// behavior; a hook returning a non-nil error fails the call before any
// state changes.
type Hooks struct {
	// OnCommit inspects or rejects an atomic commit.
	OnCommit func(props []kms.PropertyValue, flags kms.CommitFlags) error

	// OnCreateBlob inspects or rejects a blob upload.
	OnCreateBlob func(data []byte) error

	// OnSetConnectorProperty inspects or rejects a legacy property write.
	OnSetConnectorProperty func(connectorID, propertyID uint32, value uint64) error

	// OnAddFramebuffer inspects or rejects a framebuffer registration.
	OnAddFramebuffer func(fb *kms.FramebufferInfo) error
}

// CommitRecord is one atomic commit as seen by the fake kernel.
type CommitRecord struct {
	Props []kms.PropertyValue
	Flags kms.CommitFlags
}

// PropertyWrite is one recorded SetConnectorProperty call.
type PropertyWrite struct {
	ConnectorID uint32
	PropertyID  uint32
	Value       uint64
}

// VBlankRequest is one recorded QueueVBlank call.
type VBlankRequest struct {
	Pipe     int
	UserData uint64
}

// Device is an in-memory kms.Device. Topology is assembled with the Add*
// methods before use; state mutators and recorded calls let tests script
// hotplug storms and assert on kernel traffic.
//
// Behavior toggles (AutoVBlank, VBlankDelay, Hooks) must be set before
// the device is shared between goroutines.
type Device struct {
	// AutoVBlank makes QueueVBlank deliver a matching vblank event
	// instead of only recording the request.
	AutoVBlank bool

	// VBlankDelay spaces auto-delivered vblank events. Zero delivers
	// immediately.
	VBlankDelay time.Duration

	// Hooks customize call behavior.
	Hooks Hooks

	mu     sync.Mutex
	nextID uint32

	crtcs          map[uint32]*kms.CrtcInfo
	crtcOrder      []uint32
	encoders       map[uint32]*kms.EncoderInfo
	encoderOrder   []uint32
	connectors     map[uint32]*kms.ConnectorInfo
	connectorOrder []uint32
	planes         map[uint32]*kms.PlaneInfo
	planeOrder     []uint32

	propDefs   map[uint32]*kms.PropertyInfo
	propByName map[string]uint32
	objProps   map[uint32]*objPropList

	blobs          map[uint32][]byte
	blobsCreated   int
	blobsDestroyed int

	framebuffers map[uint32]*kms.FramebufferInfo
	fbsRemoved   int
	handles      map[int]uint32
	handleRefs   map[uint32]int
	dumbs        map[uint32]*kms.DumbBuffer

	commits        []CommitRecord
	propertyWrites []PropertyWrite
	vblankRequests []VBlankRequest
	vblankSeq      uint32

	events  []kms.Event
	wake    chan struct{}
	closeCh chan struct{}
	closed  bool
}

type objPropList struct {
	ids    []uint32
	values []uint64
}

// NewDevice returns an empty fake device. Build a topology with AddCrtc,
// AddEncoder, AddConnector, and AddPlane before handing it to a registry.
func NewDevice() *Device {
	return &Device{
		nextID:       20,
		crtcs:        make(map[uint32]*kms.CrtcInfo),
		encoders:     make(map[uint32]*kms.EncoderInfo),
		connectors:   make(map[uint32]*kms.ConnectorInfo),
		planes:       make(map[uint32]*kms.PlaneInfo),
		propDefs:     make(map[uint32]*kms.PropertyInfo),
		propByName:   make(map[string]uint32),
		objProps:     make(map[uint32]*objPropList),
		blobs:        make(map[uint32][]byte),
		framebuffers: make(map[uint32]*kms.FramebufferInfo),
		handles:      make(map[int]uint32),
		handleRefs:   make(map[uint32]int),
		dumbs:        make(map[uint32]*kms.DumbBuffer),
		wake:         make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
	}
}

func (d *Device) alloc() uint32 {
	id := d.nextID
	d.nextID++
	return id
}

// propDef returns the shared definition id for the named property,
// creating it on first use. Property definitions are global; instances
// carry per-object values.
func (d *Device) propDef(name string, flags kms.PropertyFlags, enums []kms.PropertyEnum) uint32 {
	if id, ok := d.propByName[name]; ok {
		return id
	}
	id := d.alloc()
	d.propByName[name] = id
	d.propDefs[id] = &kms.PropertyInfo{
		ID:    id,
		Name:  name,
		Flags: flags,
		Enums: enums,
	}
	return id
}

func (d *Device) attachProp(objID uint32, name string, flags kms.PropertyFlags, enums []kms.PropertyEnum, value uint64) {
	propID := d.propDef(name, flags, enums)
	list := d.objProps[objID]
	if list == nil {
		list = &objPropList{}
		d.objProps[objID] = list
	}
	list.ids = append(list.ids, propID)
	list.values = append(list.values, value)
}

var dpmsEnums = []kms.PropertyEnum{
	{Value: uint64(kms.DPMSOn), Name: "On"},
	{Value: uint64(kms.DPMSStandby), Name: "Standby"},
	{Value: uint64(kms.DPMSSuspend), Name: "Suspend"},
	{Value: uint64(kms.DPMSOff), Name: "Off"},
}

var planeTypeEnums = []kms.PropertyEnum{
	{Value: uint64(kms.PlaneOverlay), Name: "Overlay"},
	{Value: uint64(kms.PlanePrimary), Name: "Primary"},
	{Value: uint64(kms.PlaneCursor), Name: "Cursor"},
}

// AddCrtc adds a crtc with MODE_ID and ACTIVE properties and returns its
// id. Listing order fixes the crtc's pipe index.
func (d *Device) AddCrtc() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.alloc()
	d.crtcs[id] = &kms.CrtcInfo{ID: id}
	d.crtcOrder = append(d.crtcOrder, id)
	d.attachProp(id, "MODE_ID", kms.PropBlob, nil, 0)
	d.attachProp(id, "ACTIVE", kms.PropRange, nil, 0)
	return id
}

// AddEncoder adds an encoder and returns its id. currentCrtc is 0 for an
// idle encoder; possibleCrtcs is a pipe bitmask over crtc listing order.
func (d *Device) AddEncoder(currentCrtc uint32, possibleCrtcs uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.alloc()
	d.encoders[id] = &kms.EncoderInfo{
		ID:            id,
		CurrentCrtc:   currentCrtc,
		PossibleCrtcs: possibleCrtcs,
	}
	d.encoderOrder = append(d.encoderOrder, id)
	return id
}

// AddConnector adds a connector with DPMS and CRTC_ID properties and
// returns its id. currentEncoder is 0 for an unbound connector.
func (d *Device) AddConnector(kind kms.ConnectorKind, state kms.ConnectionState, modes []kms.ModeInfo, currentEncoder uint32, possibleEncoders ...uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.alloc()
	kindIndex := uint32(1)
	for _, cid := range d.connectorOrder {
		if d.connectors[cid].Kind == kind {
			kindIndex++
		}
	}
	d.connectors[id] = &kms.ConnectorInfo{
		ID:               id,
		CurrentEncoder:   currentEncoder,
		Kind:             kind,
		KindIndex:        kindIndex,
		Connection:       state,
		WidthMM:          344,
		HeightMM:         194,
		Modes:            append([]kms.ModeInfo(nil), modes...),
		PossibleEncoders: append([]uint32(nil), possibleEncoders...),
	}
	d.connectorOrder = append(d.connectorOrder, id)
	d.attachProp(id, "DPMS", kms.PropEnum, dpmsEnums, uint64(kms.DPMSOn))
	d.attachProp(id, "CRTC_ID", kms.PropRange, nil, 0)
	return id
}

// AddPlane adds a plane with the standard attach and scaling properties
// and returns its id.
func (d *Device) AddPlane(kind kms.PlaneKind, possibleCrtcs uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.alloc()
	d.planes[id] = &kms.PlaneInfo{
		ID:            id,
		PossibleCrtcs: possibleCrtcs,
		Formats:       []kms.PixelFormat{kms.FormatXRGB8888, kms.FormatARGB8888},
	}
	d.planeOrder = append(d.planeOrder, id)
	d.attachProp(id, "type", kms.PropEnum|kms.PropImmutable, planeTypeEnums, uint64(kind))
	for _, name := range []string{"CRTC_ID", "FB_ID", "CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H", "SRC_X", "SRC_Y", "SRC_W", "SRC_H"} {
		d.attachProp(id, name, kms.PropRange, nil, 0)
	}
	return id
}

// SetConnectorState changes the connection state, as a hotplug would.
func (d *Device) SetConnectorState(id uint32, state kms.ConnectionState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.connectors[id]; ok {
		c.Connection = state
	}
}

// SetConnectorModes replaces the connector's mode list, as a hotplug or
// EDID re-read would.
func (d *Device) SetConnectorModes(id uint32, modes []kms.ModeInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.connectors[id]; ok {
		c.Modes = append([]kms.ModeInfo(nil), modes...)
	}
}

// PushEvent queues an event for ReadEvents and wakes a pending WaitEvent.
func (d *Device) PushEvent(ev kms.Event) {
	d.mu.Lock()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	d.events = append(d.events, ev)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// PushHotplug queues a hotplug event.
func (d *Device) PushHotplug() {
	d.PushEvent(kms.Event{Type: kms.EventHotplug})
}

// PropertyID returns the shared definition id of the named property, or 0.
func (d *Device) PropertyID(name string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.propByName[name]
}

// PropertyValue returns the fake kernel's current value of the named
// property on the object.
func (d *Device) PropertyValue(objID uint32, name string) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.propValueLocked(objID, name)
}

func (d *Device) propValueLocked(objID uint32, name string) (uint64, bool) {
	propID, ok := d.propByName[name]
	if !ok {
		return 0, false
	}
	list := d.objProps[objID]
	if list == nil {
		return 0, false
	}
	for i, id := range list.ids {
		if id == propID {
			return list.values[i], true
		}
	}
	return 0, false
}

func (d *Device) setPropValueLocked(objID, propID uint32, value uint64) bool {
	list := d.objProps[objID]
	if list == nil {
		return false
	}
	for i, id := range list.ids {
		if id == propID {
			list.values[i] = value
			return true
		}
	}
	return false
}

// BlobCount returns (created, destroyed, live) blob counters.
func (d *Device) BlobCount() (created, destroyed, live int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blobsCreated, d.blobsDestroyed, len(d.blobs)
}

// BlobData returns the payload of a live blob.
func (d *Device) BlobData(id uint32) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.blobs[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Commits returns all recorded atomic commits.
func (d *Device) Commits() []CommitRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]CommitRecord, len(d.commits))
	copy(out, d.commits)
	return out
}

// LastCommit returns the most recent commit and whether one exists.
func (d *Device) LastCommit() (CommitRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.commits) == 0 {
		return CommitRecord{}, false
	}
	return d.commits[len(d.commits)-1], true
}

// PropertyWrites returns all recorded SetConnectorProperty calls.
func (d *Device) PropertyWrites() []PropertyWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PropertyWrite, len(d.propertyWrites))
	copy(out, d.propertyWrites)
	return out
}

// VBlankRequests returns all recorded QueueVBlank calls.
func (d *Device) VBlankRequests() []VBlankRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]VBlankRequest, len(d.vblankRequests))
	copy(out, d.vblankRequests)
	return out
}

// FramebufferCount returns (live, removed) framebuffer counters.
func (d *Device) FramebufferCount() (live, removed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.framebuffers), d.fbsRemoved
}

// HandleRefs returns the reference count the fake holds for a GEM handle.
func (d *Device) HandleRefs(handle uint32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handleRefs[handle]
}

// Resources implements kms.Device.
func (d *Device) Resources() (*kms.ResourceList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, kms.ErrClosed
	}
	return &kms.ResourceList{
		Crtcs:      append([]uint32(nil), d.crtcOrder...),
		Connectors: append([]uint32(nil), d.connectorOrder...),
		Encoders:   append([]uint32(nil), d.encoderOrder...),
		MinWidth:   0,
		MaxWidth:   8192,
		MinHeight:  0,
		MaxHeight:  8192,
	}, nil
}

// PlaneResources implements kms.Device.
func (d *Device) PlaneResources() ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, kms.ErrClosed
	}
	return append([]uint32(nil), d.planeOrder...), nil
}

// Connector implements kms.Device.
func (d *Device) Connector(id uint32) (*kms.ConnectorInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.connectors[id]
	if !ok {
		return nil, fmt.Errorf("kmstest: no connector %d", id)
	}
	out := *c
	out.Modes = append([]kms.ModeInfo(nil), c.Modes...)
	out.PossibleEncoders = append([]uint32(nil), c.PossibleEncoders...)
	return &out, nil
}

// Encoder implements kms.Device.
func (d *Device) Encoder(id uint32) (*kms.EncoderInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.encoders[id]
	if !ok {
		return nil, fmt.Errorf("kmstest: no encoder %d", id)
	}
	out := *e
	return &out, nil
}

// Crtc implements kms.Device.
func (d *Device) Crtc(id uint32) (*kms.CrtcInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.crtcs[id]
	if !ok {
		return nil, fmt.Errorf("kmstest: no crtc %d", id)
	}
	out := *c
	return &out, nil
}

// Plane implements kms.Device.
func (d *Device) Plane(id uint32) (*kms.PlaneInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.planes[id]
	if !ok {
		return nil, fmt.Errorf("kmstest: no plane %d", id)
	}
	out := *p
	out.Formats = append([]kms.PixelFormat(nil), p.Formats...)
	return &out, nil
}

// ObjectProperties implements kms.Device.
func (d *Device) ObjectProperties(objID uint32, objType kms.ObjectType) (*kms.ObjectProperties, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.objProps[objID]
	if list == nil {
		return nil, fmt.Errorf("kmstest: object %d has no properties", objID)
	}
	return &kms.ObjectProperties{
		IDs:    append([]uint32(nil), list.ids...),
		Values: append([]uint64(nil), list.values...),
	}, nil
}

// Property implements kms.Device.
func (d *Device) Property(id uint32) (*kms.PropertyInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.propDefs[id]
	if !ok {
		return nil, fmt.Errorf("kmstest: no property %d", id)
	}
	out := *def
	out.Values = append([]uint64(nil), def.Values...)
	out.Enums = append([]kms.PropertyEnum(nil), def.Enums...)
	return &out, nil
}

// SetConnectorProperty implements kms.Device.
func (d *Device) SetConnectorProperty(connectorID, propertyID uint32, value uint64) error {
	if hook := d.Hooks.OnSetConnectorProperty; hook != nil {
		if err := hook(connectorID, propertyID, value); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.connectors[connectorID]; !ok {
		return fmt.Errorf("kmstest: no connector %d", connectorID)
	}
	if !d.setPropValueLocked(connectorID, propertyID, value) {
		return fmt.Errorf("kmstest: connector %d has no property %d", connectorID, propertyID)
	}
	d.propertyWrites = append(d.propertyWrites, PropertyWrite{
		ConnectorID: connectorID,
		PropertyID:  propertyID,
		Value:       value,
	})
	return nil
}

// CreateBlob implements kms.Device.
func (d *Device) CreateBlob(data []byte) (uint32, error) {
	if hook := d.Hooks.OnCreateBlob; hook != nil {
		if err := hook(data); err != nil {
			return 0, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(data) == 0 {
		return 0, fmt.Errorf("kmstest: empty blob")
	}
	id := d.alloc()
	d.blobs[id] = append([]byte(nil), data...)
	d.blobsCreated++
	return id, nil
}

// DestroyBlob implements kms.Device.
func (d *Device) DestroyBlob(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.blobs[id]; !ok {
		return fmt.Errorf("kmstest: no blob %d", id)
	}
	delete(d.blobs, id)
	d.blobsDestroyed++
	return nil
}

// Commit implements kms.Device. Successful commits apply their property
// values to the fake's store so later reads observe them.
func (d *Device) Commit(req *kms.AtomicRequest, flags kms.CommitFlags) error {
	props := req.Props()
	if hook := d.Hooks.OnCommit; hook != nil {
		if err := hook(props, flags); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return kms.ErrClosed
	}
	for _, pv := range props {
		if !d.setPropValueLocked(pv.ObjectID, pv.PropertyID, pv.Value) {
			return fmt.Errorf("kmstest: object %d has no property %d", pv.ObjectID, pv.PropertyID)
		}
	}
	d.commits = append(d.commits, CommitRecord{Props: props, Flags: flags})
	return nil
}

// AddFramebuffer implements kms.Device.
func (d *Device) AddFramebuffer(fb *kms.FramebufferInfo) (uint32, error) {
	if hook := d.Hooks.OnAddFramebuffer; hook != nil {
		if err := hook(fb); err != nil {
			return 0, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if fb.Width == 0 || fb.Height == 0 {
		return 0, fmt.Errorf("kmstest: zero-sized framebuffer")
	}
	id := d.alloc()
	cp := *fb
	d.framebuffers[id] = &cp
	return id, nil
}

// RemoveFramebuffer implements kms.Device.
func (d *Device) RemoveFramebuffer(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.framebuffers[id]; !ok {
		return fmt.Errorf("kmstest: no framebuffer %d", id)
	}
	delete(d.framebuffers, id)
	d.fbsRemoved++
	return nil
}

// PrimeFDToHandle implements kms.Device. The same fd maps to the same
// handle, mirroring GEM's dedup of imported buffers.
func (d *Device) PrimeFDToHandle(fd int) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fd < 0 {
		return 0, fmt.Errorf("kmstest: bad fd %d", fd)
	}
	if h, ok := d.handles[fd]; ok {
		d.handleRefs[h]++
		return h, nil
	}
	h := d.alloc()
	d.handles[fd] = h
	d.handleRefs[h] = 1
	return h, nil
}

// CloseHandle implements kms.Device.
func (d *Device) CloseHandle(handle uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	refs, ok := d.handleRefs[handle]
	if !ok || refs == 0 {
		return fmt.Errorf("kmstest: no handle %d", handle)
	}
	d.handleRefs[handle] = refs - 1
	if refs == 1 {
		for fd, h := range d.handles {
			if h == handle {
				delete(d.handles, fd)
			}
		}
	}
	return nil
}

// CreateDumbBuffer implements kms.Device.
func (d *Device) CreateDumbBuffer(width, height, bpp uint32) (*kms.DumbBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if width == 0 || height == 0 || bpp == 0 {
		return nil, fmt.Errorf("kmstest: bad dumb buffer geometry %dx%d@%d", width, height, bpp)
	}
	handle := d.alloc()
	pitch := width * bpp / 8
	buf := &kms.DumbBuffer{
		Handle: handle,
		Pitch:  pitch,
		Size:   uint64(pitch) * uint64(height),
		Width:  width,
		Height: height,
		BPP:    bpp,
	}
	d.dumbs[handle] = buf
	return buf, nil
}

// MapDumbBuffer implements kms.Device.
func (d *Device) MapDumbBuffer(b *kms.DumbBuffer) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dumbs[b.Handle]; !ok {
		return nil, fmt.Errorf("kmstest: no dumb buffer %d", b.Handle)
	}
	return make([]byte, b.Size), nil
}

// DestroyDumbBuffer implements kms.Device.
func (d *Device) DestroyDumbBuffer(handle uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dumbs[handle]; !ok {
		return fmt.Errorf("kmstest: no dumb buffer %d", handle)
	}
	delete(d.dumbs, handle)
	return nil
}

// WaitEvent implements kms.Device.
func (d *Device) WaitEvent(timeout time.Duration) (bool, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false, kms.ErrClosed
	}
	if len(d.events) > 0 {
		d.mu.Unlock()
		return true, nil
	}
	d.mu.Unlock()

	if timeout == 0 {
		return false, nil
	}
	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case <-d.wake:
		return true, nil
	case <-expire:
		return false, nil
	case <-d.closeCh:
		return false, kms.ErrClosed
	}
}

// ReadEvents implements kms.Device.
func (d *Device) ReadEvents() ([]kms.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, kms.ErrClosed
	}
	out := d.events
	d.events = nil
	return out, nil
}

// QueueVBlank implements kms.Device. With AutoVBlank set, a vblank event
// for the crtc at the pipe index is delivered after VBlankDelay.
func (d *Device) QueueVBlank(pipe int, userData uint64) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return kms.ErrClosed
	}
	if pipe < 0 || pipe >= len(d.crtcOrder) {
		d.mu.Unlock()
		return fmt.Errorf("kmstest: no crtc at pipe %d", pipe)
	}
	d.vblankRequests = append(d.vblankRequests, VBlankRequest{Pipe: pipe, UserData: userData})
	auto := d.AutoVBlank
	delay := d.VBlankDelay
	crtcID := d.crtcOrder[pipe]
	d.vblankSeq++
	seq := d.vblankSeq
	d.mu.Unlock()

	if !auto {
		return nil
	}
	deliver := func() {
		d.PushEvent(kms.Event{
			Type:     kms.EventVBlank,
			CrtcID:   crtcID,
			Sequence: seq,
			UserData: userData,
		})
	}
	if delay <= 0 {
		deliver()
	} else {
		time.AfterFunc(delay, deliver)
	}
	return nil
}

// Close implements kms.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return kms.ErrClosed
	}
	d.closed = true
	close(d.closeCh)
	return nil
}

// Compile-time interface satisfaction check.
var _ kms.Device = (*Device)(nil)
