package present

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCacheSize is the number of import slots per display, sized to
// a producer's usual buffer rotation.
const DefaultCacheSize = 3

// Cache holds one display's imported framebuffers, found by a linear
// scan over buffer keys. There is no eviction: slots free up only when
// Flush releases everything on disconnect. Imports past the slot count
// land on an overflow list so Flush still releases each exactly once.
//
// One render worker imports per display; Acquire assumes no concurrent
// imports of the same buffer.
type Cache struct {
	importer Importer

	mu       sync.Mutex
	slots    []*Framebuffer
	overflow []*Framebuffer
}

// NewCache returns an empty cache over the importer. Size values below
// one select DefaultCacheSize.
func NewCache(importer Importer, size int) *Cache {
	if size < 1 {
		size = DefaultCacheSize
	}
	return &Cache{importer: importer, slots: make([]*Framebuffer, size)}
}

// Cap returns the slot count.
func (c *Cache) Cap() int { return len(c.slots) }

// Len returns the number of live imports, overflow included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.overflow)
	for _, fb := range c.slots {
		if fb != nil {
			n++
		}
	}
	return n
}

func (c *Cache) lookupLocked(key uint64) *Framebuffer {
	for _, fb := range c.slots {
		if fb != nil && fb.Source.Key() == key {
			return fb
		}
	}
	for _, fb := range c.overflow {
		if fb.Source.Key() == key {
			return fb
		}
	}
	return nil
}

// Acquire returns the display's import of the buffer, importing it on
// first sight. The framebuffer stays owned by the cache; hit reports
// whether an existing import was reused. The lock is not held across
// the import call, so a concurrent Flush can run between miss and
// insert.
func (c *Cache) Acquire(buf Buffer) (fb *Framebuffer, hit bool, err error) {
	key := buf.Key()
	c.mu.Lock()
	if fb := c.lookupLocked(key); fb != nil {
		c.mu.Unlock()
		return fb, true, nil
	}
	c.mu.Unlock()

	fb, err = c.importer.ImportBuffer(buf)
	if err != nil {
		return nil, false, fmt.Errorf("present: import buffer %#x: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.slots {
		if s == nil {
			c.slots[i] = fb
			return fb, false, nil
		}
	}
	c.overflow = append(c.overflow, fb)
	return fb, false, nil
}

// Flush releases every import and empties the cache. It returns the
// framebuffer ids it attempted to release and any release failures,
// joined; a failed release is reported but not retried.
func (c *Cache) Flush() ([]uint32, error) {
	c.mu.Lock()
	live := make([]*Framebuffer, 0, len(c.slots)+len(c.overflow))
	for i, fb := range c.slots {
		if fb != nil {
			live = append(live, fb)
			c.slots[i] = nil
		}
	}
	live = append(live, c.overflow...)
	c.overflow = nil
	c.mu.Unlock()

	ids := make([]uint32, 0, len(live))
	var errs []error
	for _, fb := range live {
		ids = append(ids, fb.FBID)
		if err := c.importer.ReleaseBuffer(fb); err != nil {
			errs = append(errs, fmt.Errorf("present: release fb %d: %w", fb.FBID, err))
		}
	}
	return ids, errors.Join(errs...)
}
