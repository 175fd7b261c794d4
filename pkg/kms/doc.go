// Package kms is the boundary to the kernel mode-setting API.
//
// The Device interface covers the calls the rest of the module needs:
// resource and property enumeration, blob create/destroy, atomic commits,
// framebuffer and dumb-buffer management, and the event descriptor that
// yields hotplug and vblank records. Card is the real implementation for
// Linux DRM character devices; tests substitute a scripted fake.
//
// All Device calls are synchronous and fallible. Errors from the real
// device wrap the kernel errno, so callers can match with errors.Is
// against unix errno values as well as against the package sentinels.
package kms
