// Package resource models the card's mode-setting objects and owns their
// bindings.
//
// Resources discovers connectors, encoders, crtcs, and planes from a
// kms.Device, assigns each connector a logical display index in discovery
// order, and binds every connector to a free crtc through a greedy
// first-fit resolver. It also wraps property lookup, mode blob lifecycle,
// immediate mode-set commits, and DPMS power control.
//
// The node set is built once by Initialize. Binding fields are written
// only by that pass; the mode lists and connection states are refreshed
// on the event listener goroutine during hotplug handling. The graph
// carries no locks, so callers must not mutate bindings concurrently.
package resource
