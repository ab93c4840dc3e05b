// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package link

import (
	"github.com/tatolab/streamlib-sub002/ringbuf"
)

// Producer is the owned producer handle of a link, installed into the
// source port's output endpoint. Exactly one producer exists per link.
type Producer[T any] struct {
	buf *ringbuf.Buffer[T]
}

// Push writes a value into the link's ring buffer (non-blocking).
// Returns ringbuf.ErrWouldBlock when the buffer is full; the frame is
// dropped for this link only.
func (p *Producer[T]) Push(value *T) error {
	return p.buf.Push(value)
}

// Consumer is the owned consumer handle of a link, installed into the
// destination port's input endpoint. Exactly one consumer exists per
// link. The handle carries the schema's consumption strategy so every
// reader of the link honors it.
type Consumer[T any] struct {
	buf  *ringbuf.Buffer[T]
	mode ReadMode
}

// Read consumes from the ring buffer according to the schema's strategy:
// Latest drains to the newest element, Sequential pops the next element
// in order. ok is false when the buffer is empty.
func (c *Consumer[T]) Read() (value T, ok bool) {
	var err error
	switch c.mode {
	case ReadLatest:
		value, err = c.buf.DrainToLatest()
	default:
		value, err = c.buf.Pop()
	}
	return value, err == nil
}

// Peek returns the oldest buffered element without consuming it.
func (c *Consumer[T]) Peek() (value T, ok bool) {
	value, err := c.buf.Peek()
	return value, err == nil
}

// Mode returns the consumption strategy the handle enforces.
func (c *Consumer[T]) Mode() ReadMode { return c.mode }

// Endpoints is the type-erased creation result of wiring one link: the
// producer and consumer handles share a single ring buffer. The schema
// registry's typed factories produce these; ports re-type them at bind
// time.
type Endpoints struct {
	// Producer is a *Producer[T] for the schema's element type.
	Producer any
	// Consumer is a *Consumer[T] for the same element type.
	Consumer any
	// Capacity is the actual (power-of-two rounded) buffer capacity.
	Capacity int
}

// NewEndpoints allocates the ring buffer for one link and returns its
// producer and consumer handles. Used by schema link factories.
func NewEndpoints[T any](capacity int, mode ReadMode) Endpoints {
	buf := ringbuf.New[T](capacity)
	return Endpoints{
		Producer: &Producer[T]{buf: buf},
		Consumer: &Consumer[T]{buf: buf, mode: mode},
		Capacity: buf.Cap(),
	}
}
