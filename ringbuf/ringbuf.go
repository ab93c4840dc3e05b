// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ringbuf provides the bounded single-producer single-consumer
// FIFO that backs every link in the runtime.
//
// The buffer is a Lamport ring with cached index optimization: the
// producer caches the consumer's head index and the consumer caches the
// producer's tail index, reducing cross-core cache line traffic to the
// cases where the cached view is stale.
//
// All operations are non-blocking. Push returns [ErrWouldBlock] when the
// buffer is full; Pop returns it when the buffer is empty. ErrWouldBlock
// is a control flow signal, not a failure — overflow is the runtime's
// backpressure mechanism and producers never block on it.
//
// Exactly one buffer exists per link and is never shared across links.
// One goroutine pushes, one goroutine pops; violating this constraint
// causes undefined behavior including data corruption.
package ringbuf

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates the operation cannot proceed immediately.
//
// For Push: the buffer is full (backpressure).
// For Pop/DrainToLatest/Peek: the buffer is empty.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// Buffer is a single-producer single-consumer bounded FIFO.
//
// Based on Lamport's ring buffer with cached index optimization.
// Memory: O(capacity) with minimal per-slot overhead.
type Buffer[T any] struct {
	_          pad
	head       atomix.Uint64 // Consumer reads from here
	_          pad
	cachedTail uint64 // Consumer's cached view of tail
	_          pad
	tail       atomix.Uint64 // Producer writes here
	_          pad
	cachedHead uint64 // Producer's cached view of head
	_          pad
	buffer     []T
	mask       uint64
}

// New creates a new SPSC buffer.
// Capacity rounds up to the next power of 2. Panics if capacity < 2.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 2 {
		panic("ringbuf: capacity must be >= 2")
	}

	n := uint64(roundToPow2(capacity))
	return &Buffer[T]{
		buffer: make([]T, n),
		mask:   n - 1,
	}
}

// Push adds an element to the buffer (producer only).
// The element is copied into the buffer; on failure nothing is consumed
// and the caller still owns the value.
// Returns ErrWouldBlock if the buffer is full.
func (b *Buffer[T]) Push(elem *T) error {
	tail := b.tail.LoadRelaxed()
	if tail-b.cachedHead > b.mask {
		b.cachedHead = b.head.LoadAcquire()
		if tail-b.cachedHead > b.mask {
			return ErrWouldBlock
		}
	}

	b.buffer[tail&b.mask] = *elem
	b.tail.StoreRelease(tail + 1)
	return nil
}

// Pop removes and returns the oldest element (consumer only).
// Returns (zero-value, ErrWouldBlock) if the buffer is empty.
func (b *Buffer[T]) Pop() (T, error) {
	head := b.head.LoadRelaxed()
	if head >= b.cachedTail {
		b.cachedTail = b.tail.LoadAcquire()
		if head >= b.cachedTail {
			var zero T
			return zero, ErrWouldBlock
		}
	}

	elem := b.buffer[head&b.mask]
	var zero T
	b.buffer[head&b.mask] = zero
	b.head.StoreRelease(head + 1)
	return elem, nil
}

// Peek returns the oldest element without consuming it (consumer only).
// Returns (zero-value, ErrWouldBlock) if the buffer is empty.
func (b *Buffer[T]) Peek() (T, error) {
	head := b.head.LoadRelaxed()
	if head >= b.cachedTail {
		b.cachedTail = b.tail.LoadAcquire()
		if head >= b.cachedTail {
			var zero T
			return zero, ErrWouldBlock
		}
	}

	return b.buffer[head&b.mask], nil
}

// DrainToLatest pops every available element and returns the newest
// (consumer only). Older elements are discarded. This implements the
// Latest consumption strategy where late readers skip to the most
// recent item.
// Returns (zero-value, ErrWouldBlock) if the buffer is empty.
func (b *Buffer[T]) DrainToLatest() (T, error) {
	head := b.head.LoadRelaxed()
	tail := b.tail.LoadAcquire()
	if head >= tail {
		var zero T
		return zero, ErrWouldBlock
	}

	// Keep only the newest element; clear the slots in between so
	// referenced objects become collectable.
	elem := b.buffer[(tail-1)&b.mask]
	var zero T
	for i := head; i < tail; i++ {
		b.buffer[i&b.mask] = zero
	}
	b.head.StoreRelease(tail)
	return elem, nil
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return int(b.mask + 1)
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
