// Package buffer provides a thread-safe FIFO that sits between a stream
// reader and a batching writer.
package buffer

import "sync"

// Buffer is a ring buffer that doubles its capacity once it reaches 70% full,
// up to an optional limit. At the limit the oldest item is dropped to make
// room, so a stalled consumer never blocks the reader.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int // read position
	count  int
	limit  int // 0 means unbounded
	closed bool

	received int64
	sent     int64
	dropped  int64
	resizes  int
}

// Stats contains buffer statistics.
type Stats struct {
	Count    int
	Capacity int
	Received int64
	Sent     int64
	Dropped  int64
	Resizes  int
}

// New creates a buffer with the given initial capacity. A positive limit caps
// growth.
func New[T any](initial, limit int) *Buffer[T] {
	if initial < 1 {
		initial = 1
	}
	if limit > 0 && initial > limit {
		initial = limit
	}
	b := &Buffer[T]{
		buf:   make([]T, initial),
		limit: limit,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends an item. Returns false if the buffer is closed.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := max(len(b.buf)*70/100, 1)
	if b.count+1 >= threshold {
		b.grow()
	}
	if b.count == len(b.buf) {
		b.pop()
		b.sent--
		b.dropped++
	}

	b.buf[(b.head+b.count)%len(b.buf)] = item
	b.count++
	b.received++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available or the buffer is closed and
// drained.
func (b *Buffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// TryReceive returns an item without blocking.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// Drain removes up to n items, or all of them when n <= 0.
func (b *Buffer[T]) Drain(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close stops accepting items. Receivers get the remaining items first.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Count:    b.count,
		Capacity: len(b.buf),
		Received: b.received,
		Sent:     b.sent,
		Dropped:  b.dropped,
		Resizes:  b.resizes,
	}
}

// pop removes the head item. Must be called with lock held and count > 0.
func (b *Buffer[T]) pop() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	b.sent++
	return item
}

// grow doubles capacity, bounded by the limit. Must be called with lock held.
func (b *Buffer[T]) grow() {
	size := len(b.buf) * 2
	if b.limit > 0 && size > b.limit {
		size = b.limit
	}
	if size <= len(b.buf) {
		return
	}

	next := make([]T, size)
	n := copy(next, b.buf[b.head:min(b.head+b.count, len(b.buf))])
	copy(next[n:], b.buf[:b.count-n])

	b.buf = next
	b.head = 0
	b.resizes++
}
