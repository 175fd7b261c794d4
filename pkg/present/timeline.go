package present

import (
	"context"
	"sync"
)

// Timeline orders frame completion for one display in the manner of a
// kernel sync timeline: points are reserved monotonically, and
// signaling a point releases every waiter at or below it. A dropped or
// failed frame's point therefore resolves as soon as any later frame
// presents.
type Timeline struct {
	mu    sync.Mutex
	next  uint64
	value uint64
	ch    chan struct{}
}

// NewTimeline returns a timeline at point zero.
func NewTimeline() *Timeline {
	return &Timeline{ch: make(chan struct{})}
}

// Reserve allocates the next point. Points start at one and never
// repeat.
func (t *Timeline) Reserve() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	return t.next
}

// Value returns the highest signaled point.
func (t *Timeline) Value() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Signal advances the timeline to point, waking every waiter at or
// below it. Signaling at or below the current value is a no-op.
func (t *Timeline) Signal(point uint64) {
	t.mu.Lock()
	if point <= t.value {
		t.mu.Unlock()
		return
	}
	t.value = point
	ch := t.ch
	t.ch = make(chan struct{})
	t.mu.Unlock()
	close(ch)
}

// Wait blocks until the timeline reaches point or the context ends.
func (t *Timeline) Wait(ctx context.Context, point uint64) error {
	for {
		t.mu.Lock()
		if t.value >= point {
			t.mu.Unlock()
			return nil
		}
		ch := t.ch
		t.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
