package resource

import "errors"

var (
	// ErrNoSuchDisplay means no connector carries the requested logical
	// display index.
	ErrNoSuchDisplay = errors.New("resource: no such display")
	// ErrPropertyNotFound means an object's property list has no entry
	// with the requested name.
	ErrPropertyNotFound = errors.New("resource: property not found")
	// ErrPlaneNotFound means no plane with the requested id exists.
	ErrPlaneNotFound = errors.New("resource: plane not found")
	// ErrNoPrimaryPlane means no primary plane may attach to the crtc.
	ErrNoPrimaryPlane = errors.New("resource: no primary plane for crtc")
	// ErrNoPipeline means the binding resolver found no free crtc across
	// any of a connector's legal encoders.
	ErrNoPipeline = errors.New("resource: no pipeline available")
	// ErrNoActiveMode means the display has no active mode to report.
	ErrNoActiveMode = errors.New("resource: no active mode")

	// errCrtcBusy is the resolver-internal "try the next encoder"
	// outcome; never returned to callers.
	errCrtcBusy = errors.New("resource: crtc busy")
)
