// Package bufpool implements the fixed-size buffer pool that backs the
// incoming parser and content writer. Buffers are handed out from and
// returned to a singly-linked LIFO free list, giving O(1) get/recycle.
package bufpool

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrOutOfMemory is returned when a buffer cannot be allocated.
var ErrOutOfMemory = errors.New("bufpool: out of memory")

// DefaultBaseline is the default buffer capacity new buffers are rounded
// up to, matching the spec's 64 KiB default.
const DefaultBaseline = 64 * 1024

// Buffer is a pooled byte region. The capacity and free-list link live on
// the struct itself rather than in a header located before the data
// pointer -- Go gives no safe way to walk "before" a slice's base, so the
// sentinel the original C design colocates in memory is colocated here in
// the wrapper instead. recycle is still O(1): no pool lookup is needed to
// find the header, because the header *is* the handle the caller holds.
type Buffer struct {
	data     []byte
	capacity int
	pool     *Pool
	next     *Buffer // free-list link, valid only while sitting in pool.free
	recycled bool
}

// Bytes returns the buffer's backing slice, length 0, capacity Cap().
func (b *Buffer) Bytes() []byte { return b.data }

// Append grows the buffer's logical content by p, reallocating its own
// backing array (not pulling a new one from the pool) if p does not
// fit within Cap().
func (b *Buffer) Append(p []byte) { b.data = append(b.data, p...) }

// Cap returns the buffer's total capacity.
func (b *Buffer) Cap() int { return b.capacity }

// Recycle returns the buffer to its originating pool. Double-recycle is a
// caller bug; it is guarded against rather than left to corrupt the free
// list.
func (b *Buffer) Recycle() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.recycle(b)
}

// Pool is a LIFO free list of buffers of a common baseline capacity.
type Pool struct {
	mu       sync.Mutex
	baseline int
	free     *Buffer
	allocs   uint64
	hits     uint64
}

// New creates a buffer pool whose buffers are rounded up to at least
// baseline bytes. A baseline <= 0 uses DefaultBaseline.
func New(baseline int) *Pool {
	if baseline <= 0 {
		baseline = DefaultBaseline
	}
	return &Pool{baseline: baseline}
}

// Get returns a buffer with capacity at least size, popping the free
// list's head or allocating a new one rounded up to the pool's baseline.
func (p *Pool) Get(size int) (*Buffer, error) {
	if size < p.baseline {
		size = p.baseline
	}

	p.mu.Lock()
	if b := p.free; b != nil && b.capacity >= size {
		p.free = b.next
		b.next = nil
		p.mu.Unlock()
		atomic.AddUint64(&p.hits, 1)
		b.data = b.data[:0]
		b.recycled = false
		return b, nil
	}
	p.mu.Unlock()

	data := make([]byte, 0, size)
	if cap(data) < size {
		return nil, ErrOutOfMemory
	}
	atomic.AddUint64(&p.allocs, 1)
	return &Buffer{data: data, capacity: size, pool: p}, nil
}

// recycle pushes b onto the tail... in practice the head, since this is a
// LIFO stack: most-recently-freed buffers are handed back out first,
// which keeps the working set hot in cache.
func (p *Pool) recycle(b *Buffer) {
	if b.pool != p {
		return
	}
	p.mu.Lock()
	if b.recycled {
		p.mu.Unlock()
		return
	}
	b.recycled = true
	b.next = p.free
	p.free = b
	p.mu.Unlock()
}

// Clear drops every buffer currently sitting in the free list.
func (p *Pool) Clear() {
	p.mu.Lock()
	p.free = nil
	p.mu.Unlock()
}

// Stats reports lifetime allocation and free-list-hit counts, for
// diagnostics.
func (p *Pool) Stats() (allocs, hits uint64) {
	return atomic.LoadUint64(&p.allocs), atomic.LoadUint64(&p.hits)
}

// Baseline returns the pool's minimum buffer capacity.
func (p *Pool) Baseline() int { return p.baseline }
