// Package present implements the per-display frame path: a bounded
// frame queue with drop-oldest backpressure, a cache of imported
// framebuffers, a timeline fence ordering frame completion, and the
// render worker that drains the queue into atomic commits.
package present

// Buffer is an opaque scan-out buffer handle owned by the producer.
type Buffer interface {
	// Key identifies the underlying allocation. Handles over the same
	// allocation must return the same key; the cache compares nothing
	// else.
	Key() uint64
}

// Framebuffer is one buffer's kernel import: the framebuffer id plus
// the per-plane layout the importer produced. Source keeps the handle
// the import came from.
type Framebuffer struct {
	FBID    uint32
	Width   uint32
	Height  uint32
	Format  uint32
	Handles [4]uint32
	Pitches [4]uint32
	Offsets [4]uint32
	Source  Buffer
}

// Importer adapts producer buffers to kernel framebuffers. The frame
// path does no format translation itself; both calls may enter the
// kernel and are fallible.
type Importer interface {
	ImportBuffer(buf Buffer) (*Framebuffer, error)
	ReleaseBuffer(fb *Framebuffer) error
}
