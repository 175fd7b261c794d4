package display

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a running manager.
	ErrAlreadyStarted = errors.New("display: manager already started")
	// ErrNotConnected means the operation needs a connected display.
	ErrNotConnected = errors.New("display: display not connected")
	// ErrNotConfigured means the display has never had a mode applied
	// or requested.
	ErrNotConfigured = errors.New("display: display not configured")
	// ErrBadConfig means the config handle or index does not name a
	// mode the display currently offers.
	ErrBadConfig = errors.New("display: no such config")
)
