package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/log"
)

// Config carries the collaborators of a Resources registry. The zero
// value is usable: logging falls back to slog.Default and tracing to the
// no-op logger.
type Config struct {
	// Logger receives human-readable log records.
	Logger *slog.Logger
	// Trace receives machine-readable display events.
	Trace log.Logger
	// Session tags trace events with the owning session id.
	Session string
}

// Resources is the registry of mode-setting nodes discovered on one
// device, and the binding resolver over them.
//
// The registry is not safe for concurrent mutation: Initialize builds it
// once, and binding or mode-list updates afterwards belong to the event
// listener goroutine.
type Resources struct {
	dev     kms.Device
	logger  *slog.Logger
	trace   log.Logger
	session string

	crtcs      []*Crtc
	encoders   []*Encoder
	connectors []*Connector
	planes     []*Plane

	modeID uint32
}

// New returns an empty registry over the device. Call Initialize before
// any query.
func New(dev kms.Device, cfg Config) *Resources {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trace := cfg.Trace
	if trace == nil {
		trace = log.NoopLogger{}
	}
	return &Resources{
		dev:     dev,
		logger:  logger,
		trace:   trace,
		session: cfg.Session,
	}
}

// Device returns the underlying kernel device.
func (r *Resources) Device() kms.Device { return r.dev }

func (r *Resources) nextModeID() uint32 {
	r.modeID++
	return r.modeID
}

func (r *Resources) emit(ev log.Event) {
	ev.Timestamp = time.Now()
	ev.SessionID = r.session
	r.trace.Log(ev)
}

// Initialize enumerates crtcs, encoders, connectors, and planes, assigns
// logical display indices in connector discovery order, and binds every
// connector to a pipeline. A connector with no free pipeline is left
// unbound and excluded from presentation; any other failure aborts
// initialization.
func (r *Resources) Initialize(ctx context.Context) error {
	list, err := r.dev.Resources()
	if err != nil {
		return fmt.Errorf("resource: enumerate: %w", err)
	}

	for i, id := range list.Crtcs {
		info, err := r.dev.Crtc(id)
		if err != nil {
			return fmt.Errorf("resource: get crtc %d: %w", id, err)
		}
		c := newCrtc(r, info, i)
		if err := c.init(); err != nil {
			return fmt.Errorf("resource: %w", err)
		}
		r.crtcs = append(r.crtcs, c)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, id := range list.Encoders {
		info, err := r.dev.Encoder(id)
		if err != nil {
			return fmt.Errorf("resource: get encoder %d: %w", id, err)
		}
		r.encoders = append(r.encoders, newEncoder(info, r.crtcs))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, id := range list.Connectors {
		info, err := r.dev.Connector(id)
		if err != nil {
			return fmt.Errorf("resource: get connector %d: %w", id, err)
		}
		c := newConnector(r, info)
		if err := c.init(); err != nil {
			return fmt.Errorf("resource: %w", err)
		}
		c.setDisplay(len(r.connectors))
		r.connectors = append(r.connectors, c)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	planeIDs, err := r.dev.PlaneResources()
	if err != nil {
		return fmt.Errorf("resource: enumerate planes: %w", err)
	}
	for _, id := range planeIDs {
		info, err := r.dev.Plane(id)
		if err != nil {
			return fmt.Errorf("resource: get plane %d: %w", id, err)
		}
		p := newPlane(r, info, r.crtcs)
		if err := p.init(); err != nil {
			return fmt.Errorf("resource: %w", err)
		}
		r.planes = append(r.planes, p)
	}

	r.emit(log.Event{
		Display:  log.NoDisplay,
		Category: log.CategoryDiscovery,
		Discovery: &log.DiscoveryEvent{
			Crtcs:      len(r.crtcs),
			Encoders:   len(r.encoders),
			Connectors: len(r.connectors),
			Planes:     len(r.planes),
		},
	})

	for _, conn := range r.connectors {
		if err := r.CreateDisplayPipe(conn); err != nil {
			if errors.Is(err, ErrNoPipeline) {
				r.logger.Warn("no pipeline available, display excluded from presentation",
					"display", conn.Display(), "connector", conn.Name())
				r.emit(log.Event{
					Display:  conn.Display(),
					Category: log.CategoryDiscovery,
					Pipe: &log.PipeEvent{
						Connector: conn.ID(),
						Bound:     false,
						Reason:    err.Error(),
					},
				})
				continue
			}
			return err
		}
	}

	r.logger.Info("resource graph initialized",
		"crtcs", len(r.crtcs),
		"encoders", len(r.encoders),
		"connectors", len(r.connectors),
		"planes", len(r.planes))
	return nil
}

// CreateDisplayPipe binds the connector's display to a crtc: the bound
// encoder's current crtc first, then each legal encoder's current crtc
// and legal crtcs in listing order. First fit wins; the search is
// deterministic for a fixed discovery order.
func (r *Resources) CreateDisplayPipe(conn *Connector) error {
	display := conn.Display()

	if enc := r.encoderByID(conn.EncoderID()); enc != nil {
		err := r.tryEncoderForDisplay(display, enc)
		if err == nil {
			r.tracePipeBound(conn, enc)
			return nil
		}
		if !errors.Is(err, errCrtcBusy) {
			return err
		}
	}

	for _, encID := range conn.PossibleEncoders() {
		enc := r.encoderByID(encID)
		if enc == nil {
			continue
		}
		err := r.tryEncoderForDisplay(display, enc)
		if err == nil {
			conn.setEncoder(enc.ID())
			r.tracePipeBound(conn, enc)
			return nil
		}
		if !errors.Is(err, errCrtcBusy) {
			return err
		}
	}
	return fmt.Errorf("%w: display %d", ErrNoPipeline, display)
}

// tryEncoderForDisplay claims a crtc for the display through the given
// encoder: its current crtc if bindable, otherwise the first bindable
// crtc in its legal list. errCrtcBusy means try the next encoder.
func (r *Resources) tryEncoderForDisplay(display int, enc *Encoder) error {
	if cur := r.crtcByID(enc.CrtcID()); cur != nil && cur.canBind(display) {
		cur.setDisplay(display)
		return nil
	}
	for _, crtcID := range enc.PossibleCrtcs() {
		if crtcID == enc.CrtcID() {
			continue
		}
		crtc := r.crtcByID(crtcID)
		if crtc == nil || !crtc.canBind(display) {
			continue
		}
		enc.setCrtc(crtc.ID())
		crtc.setDisplay(display)
		return nil
	}
	return fmt.Errorf("%w: encoder %d, display %d", errCrtcBusy, enc.ID(), display)
}

func (r *Resources) tracePipeBound(conn *Connector, enc *Encoder) {
	r.logger.Debug("display pipe bound",
		"display", conn.Display(), "connector", conn.Name(),
		"encoder", enc.ID(), "crtc", enc.CrtcID())
	r.emit(log.Event{
		Display:  conn.Display(),
		Category: log.CategoryDiscovery,
		Pipe: &log.PipeEvent{
			Connector: conn.ID(),
			Encoder:   enc.ID(),
			Crtc:      enc.CrtcID(),
			Bound:     true,
		},
	})
}

// ConnectorForDisplay returns the connector serving the logical display.
func (r *Resources) ConnectorForDisplay(display int) (*Connector, error) {
	for _, c := range r.connectors {
		if c.Display() == display {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: display %d has no connector", ErrNoSuchDisplay, display)
}

// CrtcForDisplay returns the crtc bound to the logical display.
func (r *Resources) CrtcForDisplay(display int) (*Crtc, error) {
	for _, c := range r.crtcs {
		if c.Display() == display {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: display %d has no crtc", ErrNoSuchDisplay, display)
}

// PlaneByID returns the plane with the given kernel id.
func (r *Resources) PlaneByID(id uint32) (*Plane, error) {
	for _, p := range r.planes {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: plane %d", ErrPlaneNotFound, id)
}

// PrimaryPlaneForCrtc returns the primary plane attachable to the crtc.
// The scan does not stop at the first hit: the last matching primary
// plane wins, a quirk kept for parity with existing device trees.
func (r *Resources) PrimaryPlaneForCrtc(crtcID uint32) (*Plane, error) {
	var found *Plane
	for _, p := range r.planes {
		if p.Kind() == kms.PlanePrimary && p.CanAttach(crtcID) {
			found = p
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: crtc %d", ErrNoPrimaryPlane, crtcID)
	}
	return found, nil
}

// Connectors returns all connectors in discovery order.
func (r *Resources) Connectors() []*Connector {
	out := make([]*Connector, len(r.connectors))
	copy(out, r.connectors)
	return out
}

// Crtcs returns all crtcs in discovery order.
func (r *Resources) Crtcs() []*Crtc {
	out := make([]*Crtc, len(r.crtcs))
	copy(out, r.crtcs)
	return out
}

// Encoders returns all encoders in discovery order.
func (r *Resources) Encoders() []*Encoder {
	out := make([]*Encoder, len(r.encoders))
	copy(out, r.encoders)
	return out
}

// Planes returns all planes in discovery order.
func (r *Resources) Planes() []*Plane {
	out := make([]*Plane, len(r.planes))
	copy(out, r.planes)
	return out
}

func (r *Resources) encoderByID(id uint32) *Encoder {
	for _, e := range r.encoders {
		if e.ID() == id {
			return e
		}
	}
	return nil
}

func (r *Resources) crtcByID(id uint32) *Crtc {
	for _, c := range r.crtcs {
		if c.ID() == id {
			return c
		}
	}
	return nil
}

// FetchProperty scans the object's property list for the named property
// and returns it with its current value.
func (r *Resources) FetchProperty(objID uint32, objType kms.ObjectType, name string) (Property, error) {
	props, err := r.dev.ObjectProperties(objID, objType)
	if err != nil {
		return Property{}, fmt.Errorf("resource: properties of object %d: %w", objID, err)
	}
	for i, id := range props.IDs {
		info, err := r.dev.Property(id)
		if err != nil {
			continue
		}
		if info.Name == name {
			return Property{
				id:    info.ID,
				name:  info.Name,
				value: props.Values[i],
				flags: info.Flags,
			}, nil
		}
	}
	return Property{}, fmt.Errorf("%w: %q on object %d", ErrPropertyNotFound, name, objID)
}

// CreatePropertyBlob uploads data as a kernel property blob and returns
// its id.
func (r *Resources) CreatePropertyBlob(data []byte) (uint32, error) {
	id, err := r.dev.CreateBlob(data)
	if err != nil {
		return 0, fmt.Errorf("resource: create blob: %w", err)
	}
	return id, nil
}

// DestroyPropertyBlob destroys a blob. Id 0 means "no blob" and succeeds
// without touching the kernel.
func (r *Resources) DestroyPropertyBlob(id uint32) error {
	if id == 0 {
		return nil
	}
	if err := r.dev.DestroyBlob(id); err != nil {
		return fmt.Errorf("resource: destroy blob %d: %w", id, err)
	}
	return nil
}

// SetDisplayActiveMode applies the mode to the display's pipeline in one
// allow-modeset commit and returns the new mode blob's id. The caller
// destroys the superseded blob once nothing references it. On commit
// failure the freshly created blob is destroyed before returning.
func (r *Resources) SetDisplayActiveMode(display int, mode Mode) (uint32, error) {
	conn, err := r.ConnectorForDisplay(display)
	if err != nil {
		return 0, err
	}
	crtc, err := r.CrtcForDisplay(display)
	if err != nil {
		return 0, err
	}

	blobID, err := r.CreatePropertyBlob(mode.Info().Marshal())
	if err != nil {
		return 0, err
	}

	req := kms.NewAtomicRequest()
	req.Add(crtc.ID(), crtc.ModeProperty().ID(), uint64(blobID))
	req.Add(conn.ID(), conn.CrtcProperty().ID(), uint64(crtc.ID()))

	if err := r.dev.Commit(req, kms.AllowModeset); err != nil {
		if derr := r.DestroyPropertyBlob(blobID); derr != nil {
			r.logger.Error("destroy mode blob after failed commit",
				"blob", blobID, "error", derr)
		}
		r.emit(log.Event{
			Display:  display,
			Category: log.CategoryConfig,
			Commit: &log.CommitEvent{
				Properties: req.Len(),
				Flags:      uint32(kms.AllowModeset),
				Modeset:    true,
				Failed:     true,
				Message:    err.Error(),
			},
		})
		return 0, fmt.Errorf("resource: mode-set commit for display %d: %w", display, err)
	}

	conn.SetActiveMode(mode)
	r.logger.Info("mode set", "display", display, "mode", mode.String())
	r.emit(log.Event{
		Display:  display,
		Category: log.CategoryConfig,
		ModeSet: &log.ModeSetEvent{
			Crtc:   crtc.ID(),
			BlobID: blobID,
			Mode:   mode.String(),
		},
	})
	return blobID, nil
}

// SetDpmsMode sets the display's connector power state.
func (r *Resources) SetDpmsMode(display int, mode kms.DPMSMode) error {
	conn, err := r.ConnectorForDisplay(display)
	if err != nil {
		return err
	}
	if err := r.dev.SetConnectorProperty(conn.ID(), conn.DPMSProperty().ID(), uint64(mode)); err != nil {
		return fmt.Errorf("resource: set dpms %s on display %d: %w", mode, display, err)
	}
	r.logger.Debug("dpms set", "display", display, "mode", mode.String())
	r.emit(log.Event{
		Display:  display,
		Category: log.CategoryConfig,
		Power: &log.PowerEvent{
			Connector: conn.ID(),
			Mode:      mode,
		},
	})
	return nil
}
