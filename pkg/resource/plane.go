package resource

import (
	"fmt"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

// Plane is one hardware scan-out layer and the properties needed to
// attach and position it.
type Plane struct {
	res  *Resources
	id   uint32
	kind kms.PlaneKind

	possibleCrtcs []uint32

	crtcProp Property
	fbProp   Property

	crtcXProp Property
	crtcYProp Property
	crtcWProp Property
	crtcHProp Property

	srcXProp Property
	srcYProp Property
	srcWProp Property
	srcHProp Property
}

func newPlane(res *Resources, info *kms.PlaneInfo, crtcs []*Crtc) *Plane {
	p := &Plane{
		res: res,
		id:  info.ID,
	}
	for _, c := range crtcs {
		if info.PossibleCrtcs&(1<<uint(c.Pipe())) != 0 {
			p.possibleCrtcs = append(p.possibleCrtcs, c.ID())
		}
	}
	return p
}

func (p *Plane) init() error {
	fetch := func(dst *Property, name string) error {
		prop, err := p.res.FetchProperty(p.id, kms.ObjectPlane, name)
		if err != nil {
			return fmt.Errorf("plane %d: fetch %s: %w", p.id, name, err)
		}
		*dst = prop
		return nil
	}

	var typeProp Property
	if err := fetch(&typeProp, "type"); err != nil {
		return err
	}
	p.kind = kms.PlaneKind(typeProp.Value())

	for _, pr := range []struct {
		dst  *Property
		name string
	}{
		{&p.crtcProp, "CRTC_ID"},
		{&p.fbProp, "FB_ID"},
		{&p.crtcXProp, "CRTC_X"},
		{&p.crtcYProp, "CRTC_Y"},
		{&p.crtcWProp, "CRTC_W"},
		{&p.crtcHProp, "CRTC_H"},
		{&p.srcXProp, "SRC_X"},
		{&p.srcYProp, "SRC_Y"},
		{&p.srcWProp, "SRC_W"},
		{&p.srcHProp, "SRC_H"},
	} {
		if err := fetch(pr.dst, pr.name); err != nil {
			return err
		}
	}
	return nil
}

// ID returns the kernel object id.
func (p *Plane) ID() uint32 { return p.id }

// Kind returns the plane type: primary, overlay, or cursor.
func (p *Plane) Kind() kms.PlaneKind { return p.kind }

// PossibleCrtcs returns the ids of the crtcs this plane may attach to.
func (p *Plane) PossibleCrtcs() []uint32 {
	out := make([]uint32, len(p.possibleCrtcs))
	copy(out, p.possibleCrtcs)
	return out
}

// CanAttach reports whether the plane may attach to the crtc.
func (p *Plane) CanAttach(crtcID uint32) bool {
	for _, id := range p.possibleCrtcs {
		if id == crtcID {
			return true
		}
	}
	return false
}

// CrtcProperty returns the plane's CRTC_ID attach property.
func (p *Plane) CrtcProperty() Property { return p.crtcProp }

// FBProperty returns the plane's FB_ID property.
func (p *Plane) FBProperty() Property { return p.fbProp }

// CrtcXProperty returns the destination x property.
func (p *Plane) CrtcXProperty() Property { return p.crtcXProp }

// CrtcYProperty returns the destination y property.
func (p *Plane) CrtcYProperty() Property { return p.crtcYProp }

// CrtcWProperty returns the destination width property.
func (p *Plane) CrtcWProperty() Property { return p.crtcWProp }

// CrtcHProperty returns the destination height property.
func (p *Plane) CrtcHProperty() Property { return p.crtcHProp }

// SrcXProperty returns the source x property.
func (p *Plane) SrcXProperty() Property { return p.srcXProp }

// SrcYProperty returns the source y property.
func (p *Plane) SrcYProperty() Property { return p.srcYProp }

// SrcWProperty returns the source width property.
func (p *Plane) SrcWProperty() Property { return p.srcWProp }

// SrcHProperty returns the source height property.
func (p *Plane) SrcHProperty() Property { return p.srcHProp }
