package resource

import (
	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

// Encoder is one signal encoder. Its legal-crtc list is fixed at
// discovery; the current crtc binding moves as the resolver assigns
// pipelines.
type Encoder struct {
	id            uint32
	crtcID        uint32
	possibleCrtcs []uint32
}

// newEncoder resolves the possible-crtcs pipe bitmask against the crtc
// listing order.
func newEncoder(info *kms.EncoderInfo, crtcs []*Crtc) *Encoder {
	e := &Encoder{
		id:     info.ID,
		crtcID: info.CurrentCrtc,
	}
	for _, c := range crtcs {
		if info.PossibleCrtcs&(1<<uint(c.Pipe())) != 0 {
			e.possibleCrtcs = append(e.possibleCrtcs, c.ID())
		}
	}
	return e
}

// ID returns the kernel object id.
func (e *Encoder) ID() uint32 { return e.id }

// CrtcID returns the currently bound crtc, 0 when none.
func (e *Encoder) CrtcID() uint32 { return e.crtcID }

// PossibleCrtcs returns the ids of the crtcs this encoder may drive, in
// listing order.
func (e *Encoder) PossibleCrtcs() []uint32 {
	out := make([]uint32, len(e.possibleCrtcs))
	copy(out, e.possibleCrtcs)
	return out
}

// CanDrive reports whether the crtc is in the encoder's legal set.
func (e *Encoder) CanDrive(crtcID uint32) bool {
	for _, id := range e.possibleCrtcs {
		if id == crtcID {
			return true
		}
	}
	return false
}

func (e *Encoder) setCrtc(crtcID uint32) {
	e.crtcID = crtcID
}
