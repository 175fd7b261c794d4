package present

import "sync"

// DefaultQueueDepth bounds a display's pending frames. Two covers the
// usual one-presenting-one-pending rhythm without letting a slow
// display accumulate stale frames.
const DefaultQueueDepth = 2

type queuedFrame struct {
	buf   Buffer
	point uint64
}

// Queue is the bounded frame queue for one display. Push evicts the
// oldest entry once the depth bound is exceeded: a display lagging a
// shared vsync source should present the latest frame late rather than
// every frame later.
type Queue struct {
	mu    sync.Mutex
	depth int
	items []queuedFrame
}

// NewQueue returns an empty queue. Depth values below one select
// DefaultQueueDepth.
func NewQueue(depth int) *Queue {
	if depth < 1 {
		depth = DefaultQueueDepth
	}
	return &Queue{depth: depth}
}

// Depth returns the configured bound on pending frames.
func (q *Queue) Depth() int { return q.depth }

// Len returns the number of pending frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Push appends a frame with its timeline point. When the queue already
// holds Depth frames the oldest is evicted and returned with dropped
// true; its point resolves once a later frame presents.
func (q *Queue) Push(buf Buffer, point uint64) (evicted Buffer, evictedPoint uint64, dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, queuedFrame{buf: buf, point: point})
	if len(q.items) <= q.depth {
		return nil, 0, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head.buf, head.point, true
}

// Pop removes and returns the oldest frame without blocking.
func (q *Queue) Pop() (Buffer, uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, 0, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head.buf, head.point, true
}

// Flush drops every pending frame and returns the highest timeline
// point that was pending, zero if none.
func (q *Queue) Flush() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	var last uint64
	for _, f := range q.items {
		if f.point > last {
			last = f.point
		}
	}
	q.items = nil
	return last
}
