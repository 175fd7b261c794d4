package resource

import (
	"fmt"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

// UnboundDisplay is the served-display value of a crtc no connector has
// claimed.
const UnboundDisplay = -1

// Crtc is one scan-out controller. Pipe is its position in the card's
// crtc listing, the bit index used by possible-crtc masks. Display is the
// logical display it serves, UnboundDisplay until the resolver claims it.
type Crtc struct {
	res  *Resources
	id   uint32
	pipe int

	display int

	modeProp   Property
	activeProp Property
}

func newCrtc(res *Resources, info *kms.CrtcInfo, pipe int) *Crtc {
	return &Crtc{
		res:     res,
		id:      info.ID,
		pipe:    pipe,
		display: UnboundDisplay,
	}
}

func (c *Crtc) init() error {
	var err error
	c.modeProp, err = c.res.FetchProperty(c.id, kms.ObjectCrtc, "MODE_ID")
	if err != nil {
		return fmt.Errorf("crtc %d: fetch MODE_ID: %w", c.id, err)
	}
	c.activeProp, err = c.res.FetchProperty(c.id, kms.ObjectCrtc, "ACTIVE")
	if err != nil {
		return fmt.Errorf("crtc %d: fetch ACTIVE: %w", c.id, err)
	}
	return nil
}

// ID returns the kernel object id.
func (c *Crtc) ID() uint32 { return c.id }

// Pipe returns the crtc's bit position in possible-crtc masks.
func (c *Crtc) Pipe() int { return c.pipe }

// Display returns the logical display this crtc serves, or
// UnboundDisplay.
func (c *Crtc) Display() int { return c.display }

// ModeProperty returns the crtc's mode blob property.
func (c *Crtc) ModeProperty() Property { return c.modeProp }

// ActiveProperty returns the crtc's ACTIVE property.
func (c *Crtc) ActiveProperty() Property { return c.activeProp }

// canBind reports whether the crtc may serve the display: it is either
// free or already serving that same display.
func (c *Crtc) canBind(display int) bool {
	return c.display == UnboundDisplay || c.display == display
}

func (c *Crtc) setDisplay(display int) {
	c.display = display
}
