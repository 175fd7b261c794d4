package kms

import "errors"

var (
	// ErrClosed is returned by calls on a closed device.
	ErrClosed = errors.New("kms: device closed")
	// ErrNoAtomic means the device does not support atomic commits, which
	// this module requires.
	ErrNoAtomic = errors.New("kms: atomic modesetting not supported")
	// ErrUnsupported is returned by device constructors on platforms
	// without kernel mode-setting.
	ErrUnsupported = errors.New("kms: not supported on this platform")
)
