package resource

import (
	"fmt"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

// Connector is one physical display connection point. Its connection
// state and mode list are refreshed by UpdateModes during hotplug
// handling; identity, legal encoders, and the logical display index are
// fixed at discovery.
type Connector struct {
	res *Resources
	id  uint32

	display   int
	state     kms.ConnectionState
	kind      kms.ConnectorKind
	kindIndex uint32
	widthMM   uint32
	heightMM  uint32

	modes      []Mode
	activeMode Mode

	encoderID        uint32
	possibleEncoders []uint32

	dpmsProp Property
	crtcProp Property
}

func newConnector(res *Resources, info *kms.ConnectorInfo) *Connector {
	c := &Connector{
		res:              res,
		id:               info.ID,
		display:          UnboundDisplay,
		state:            info.Connection,
		kind:             info.Kind,
		kindIndex:        info.KindIndex,
		widthMM:          info.WidthMM,
		heightMM:         info.HeightMM,
		encoderID:        info.CurrentEncoder,
		possibleEncoders: info.PossibleEncoders,
	}
	c.modes = make([]Mode, len(info.Modes))
	for i, mi := range info.Modes {
		c.modes[i] = newMode(res.nextModeID(), mi)
	}
	return c
}

func (c *Connector) init() error {
	var err error
	c.dpmsProp, err = c.res.FetchProperty(c.id, kms.ObjectConnector, "DPMS")
	if err != nil {
		return fmt.Errorf("connector %d: fetch DPMS: %w", c.id, err)
	}
	c.crtcProp, err = c.res.FetchProperty(c.id, kms.ObjectConnector, "CRTC_ID")
	if err != nil {
		return fmt.Errorf("connector %d: fetch CRTC_ID: %w", c.id, err)
	}
	return nil
}

// ID returns the kernel object id.
func (c *Connector) ID() uint32 { return c.id }

// Display returns the logical display index assigned at discovery.
func (c *Connector) Display() int { return c.display }

// State returns the connection state from the most recent probe.
func (c *Connector) State() kms.ConnectionState { return c.state }

// Kind returns the physical connector type.
func (c *Connector) Kind() kms.ConnectorKind { return c.kind }

// Name returns the conventional connector name, e.g. "HDMI-A-1".
func (c *Connector) Name() string {
	return fmt.Sprintf("%s-%d", c.kind, c.kindIndex)
}

// SizeMM returns the sink's physical size in millimetres; zero when the
// sink does not report one.
func (c *Connector) SizeMM() (width, height uint32) {
	return c.widthMM, c.heightMM
}

// Modes returns the supported modes in kernel listing order.
func (c *Connector) Modes() []Mode {
	out := make([]Mode, len(c.modes))
	copy(out, c.modes)
	return out
}

// ModeByID returns the supported mode carrying the given process-local
// id.
func (c *Connector) ModeByID(id uint32) (Mode, bool) {
	for _, m := range c.modes {
		if m.ID() == id {
			return m, true
		}
	}
	return Mode{}, false
}

// ActiveMode returns the currently applied mode; the zero Mode when the
// display has never been configured.
func (c *Connector) ActiveMode() Mode { return c.activeMode }

// SetActiveMode records the mode a successful commit applied.
func (c *Connector) SetActiveMode(m Mode) { c.activeMode = m }

// EncoderID returns the bound encoder id, 0 when unbound.
func (c *Connector) EncoderID() uint32 { return c.encoderID }

// PossibleEncoders returns the encoder ids this connector may use, in
// listing order.
func (c *Connector) PossibleEncoders() []uint32 {
	out := make([]uint32, len(c.possibleEncoders))
	copy(out, c.possibleEncoders)
	return out
}

// DPMSProperty returns the connector's DPMS power property.
func (c *Connector) DPMSProperty() Property { return c.dpmsProp }

// CrtcProperty returns the connector's CRTC_ID property.
func (c *Connector) CrtcProperty() Property { return c.crtcProp }

func (c *Connector) setDisplay(display int) { c.display = display }

func (c *Connector) setEncoder(encoderID uint32) { c.encoderID = encoderID }

// UpdateModes re-probes the connector: connection state, physical size,
// and the mode list. A timing identical to one already known keeps its
// mode id with refreshed flags; new timings get fresh ids.
func (c *Connector) UpdateModes() error {
	info, err := c.res.dev.Connector(c.id)
	if err != nil {
		return fmt.Errorf("resource: update modes of connector %d: %w", c.id, err)
	}
	c.state = info.Connection
	c.widthMM = info.WidthMM
	c.heightMM = info.HeightMM

	newModes := make([]Mode, 0, len(info.Modes))
	for _, mi := range info.Modes {
		id := uint32(0)
		for _, known := range c.modes {
			if known.Info().SameTimings(mi) {
				id = known.ID()
				break
			}
		}
		if id == 0 {
			id = c.res.nextModeID()
		}
		newModes = append(newModes, newMode(id, mi))
	}
	c.modes = newModes
	return nil
}
