package log

import (
	"time"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

// NoDisplay marks events that concern the card rather than one logical
// display.
const NoDisplay = -1

// Event represents a display trace event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the manager session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Display is the logical display index, NoDisplay for card-level
	// events.
	Display int `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Type-specific payload (one of these will be set).
	Discovery *DiscoveryEvent `cbor:"5,keyasint,omitempty"`  // Topology enumeration
	Pipe      *PipeEvent      `cbor:"6,keyasint,omitempty"`  // Binding resolution
	ModeSet   *ModeSetEvent   `cbor:"7,keyasint,omitempty"`  // Mode activation
	Commit    *CommitEvent    `cbor:"8,keyasint,omitempty"`  // Atomic commits
	Hotplug   *HotplugEvent   `cbor:"9,keyasint,omitempty"`  // Connector transitions
	VSync     *VSyncEvent     `cbor:"10,keyasint,omitempty"` // Vertical blanks
	Frame     *FrameEvent     `cbor:"11,keyasint,omitempty"` // Frame lifecycle
	Power     *PowerEvent     `cbor:"12,keyasint,omitempty"` // DPMS changes
	Error     *ErrorEventData `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryDiscovery covers topology enumeration and pipeline binding.
	CategoryDiscovery Category = 0
	// CategoryConfig covers mode-set and power-mode changes.
	CategoryConfig Category = 1
	// CategoryFrame covers the per-display frame lifecycle.
	CategoryFrame Category = 2
	// CategoryEvent covers hotplug and vsync records from the kernel.
	CategoryEvent Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryDiscovery:
		return "DISCOVERY"
	case CategoryConfig:
		return "CONFIG"
	case CategoryFrame:
		return "FRAME"
	case CategoryEvent:
		return "EVENT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DiscoveryEvent captures the result of one topology enumeration.
type DiscoveryEvent struct {
	// Crtcs is the number of scan-out controllers found.
	Crtcs int `cbor:"1,keyasint"`

	// Encoders is the number of encoders found.
	Encoders int `cbor:"2,keyasint"`

	// Connectors is the number of connectors found.
	Connectors int `cbor:"3,keyasint"`

	// Planes is the number of planes found.
	Planes int `cbor:"4,keyasint"`
}

// PipeEvent captures one binding resolution for a display.
type PipeEvent struct {
	// Connector is the connector's kernel object id.
	Connector uint32 `cbor:"1,keyasint"`

	// Encoder is the bound encoder id (0 when binding failed).
	Encoder uint32 `cbor:"2,keyasint,omitempty"`

	// Crtc is the bound crtc id (0 when binding failed).
	Crtc uint32 `cbor:"3,keyasint,omitempty"`

	// Bound reports whether a pipeline was assigned.
	Bound bool `cbor:"4,keyasint"`

	// Reason describes a failed binding.
	Reason string `cbor:"5,keyasint,omitempty"`
}

// ModeSetEvent captures a mode activation for a display.
type ModeSetEvent struct {
	// Crtc is the pipeline controller carrying the mode.
	Crtc uint32 `cbor:"1,keyasint"`

	// BlobID is the kernel blob holding the mode descriptor.
	BlobID uint32 `cbor:"2,keyasint"`

	// Mode is the human-readable timing, e.g. "1920x1080@60".
	Mode string `cbor:"3,keyasint"`

	// Deferred means the blob was created now but the commit rides with
	// the next frame.
	Deferred bool `cbor:"4,keyasint,omitempty"`
}

// CommitEvent captures one atomic commit attempt.
type CommitEvent struct {
	// Properties is the number of property writes in the transaction.
	Properties int `cbor:"1,keyasint"`

	// Flags are the raw commit flags.
	Flags uint32 `cbor:"2,keyasint,omitempty"`

	// Modeset reports whether the transaction carried a mode change.
	Modeset bool `cbor:"3,keyasint,omitempty"`

	// FBID is the framebuffer written to the primary plane (frame path).
	FBID uint32 `cbor:"4,keyasint,omitempty"`

	// Duration is the kernel call time. Stored as nanoseconds.
	Duration *time.Duration `cbor:"5,keyasint,omitempty"`

	// Failed reports whether the kernel rejected the commit.
	Failed bool `cbor:"6,keyasint,omitempty"`

	// Message is the error text on failure.
	Message string `cbor:"7,keyasint,omitempty"`
}

// HotplugEvent captures one observed connector transition.
type HotplugEvent struct {
	// Connector is the connector's kernel object id.
	Connector uint32 `cbor:"1,keyasint"`

	// Connected is the new connection state.
	Connected bool `cbor:"2,keyasint"`

	// Modes is the size of the refreshed mode list.
	Modes int `cbor:"3,keyasint,omitempty"`
}

// VSyncEvent captures one vertical blank delivered to a display.
type VSyncEvent struct {
	// Sequence is the display-local vsync counter.
	Sequence uint64 `cbor:"1,keyasint"`

	// Hardware is the kernel-reported event time in nanoseconds, which
	// can differ from the envelope timestamp by the dispatch latency.
	Hardware int64 `cbor:"2,keyasint,omitempty"`
}

// FrameAction is a step of the frame lifecycle.
type FrameAction uint8

const (
	// FrameQueued means a buffer entered the display's queue.
	FrameQueued FrameAction = 0
	// FrameDropped means backpressure evicted the oldest queued buffer.
	FrameDropped FrameAction = 1
	// FramePresented means a frame commit reached the screen.
	FramePresented FrameAction = 2
	// FrameReleased means a cached framebuffer was released.
	FrameReleased FrameAction = 3
)

// String returns the frame action name.
func (a FrameAction) String() string {
	switch a {
	case FrameQueued:
		return "QUEUED"
	case FrameDropped:
		return "DROPPED"
	case FramePresented:
		return "PRESENTED"
	case FrameReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one step of a frame's lifecycle on a display.
type FrameEvent struct {
	// Action is the lifecycle step.
	Action FrameAction `cbor:"1,keyasint"`

	// BufferKey identifies the client buffer involved.
	BufferKey uint64 `cbor:"2,keyasint,omitempty"`

	// FBID is the kernel framebuffer id, once imported.
	FBID uint32 `cbor:"3,keyasint,omitempty"`

	// QueueDepth is the queue depth after the action.
	QueueDepth int `cbor:"4,keyasint,omitempty"`

	// Point is the timeline fence point assigned to the frame.
	Point uint64 `cbor:"5,keyasint,omitempty"`
}

// PowerEvent captures a DPMS change on a display.
type PowerEvent struct {
	// Connector is the connector's kernel object id.
	Connector uint32 `cbor:"1,keyasint"`

	// Mode is the new power level.
	Mode kms.DPMSMode `cbor:"2,keyasint"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Context describes what operation was being performed.
	Context string `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`
}
