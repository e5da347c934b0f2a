package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// =============================================================================
// FIFOQueue: slice-backed FIFO with periodic compaction
// =============================================================================

// FIFOQueue is a mutex-protected FIFO. A limit of 0 makes it unbounded,
// in which case TryPush never fails.
type FIFOQueue[E any] struct {
	mu    sync.Mutex
	items []E
	limit int
}

// NewFIFOQueue creates a queue holding at most limit items (0 = unbounded).
func NewFIFOQueue[E any](limit int) *FIFOQueue[E] {
	if limit < 0 {
		limit = 0
	}
	return &FIFOQueue[E]{
		items: make([]E, 0, defaultQueueCap),
		limit: limit,
	}
}

// Limit returns the configured bound, 0 when unbounded.
func (q *FIFOQueue[E]) Limit() int {
	return q.limit
}

// TryPush appends e unless the queue is at its limit.
func (q *FIFOQueue[E]) TryPush(e E) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.items) >= q.limit {
		return false
	}
	q.items = append(q.items, e)
	return true
}

func (q *FIFOQueue[E]) Pop() (E, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero E
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = zero
	q.items = q.items[1:]
	q.maybeCompactLocked()

	return item, true
}

// RemoveFirst deletes the oldest item for which match returns true.
func (q *FIFOQueue[E]) RemoveFirst(match func(E) bool) (E, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero E
	for i, item := range q.items {
		if !match(item) {
			continue
		}
		copy(q.items[i:], q.items[i+1:])
		q.items[len(q.items)-1] = zero
		q.items = q.items[:len(q.items)-1]
		q.maybeCompactLocked()
		return item, true
	}
	return zero, false
}

// Drain removes and returns every queued item in FIFO order.
func (q *FIFOQueue[E]) Drain() []E {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.items
	q.items = make([]E, 0, defaultQueueCap)
	return drained
}

// Clear removes all items and releases their references.
func (q *FIFOQueue[E]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]E, 0, defaultQueueCap)
}

func (q *FIFOQueue[E]) MaybeCompact() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maybeCompactLocked()
}

func (q *FIFOQueue[E]) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]E, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]E, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

func (q *FIFOQueue[E]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *FIFOQueue[E]) IsEmpty() bool {
	return q.Len() == 0
}

// capacity is exposed to tests that check compaction.
func (q *FIFOQueue[E]) capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cap(q.items)
}
