// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package link

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// InputBinder is the type-erased view of an input port used by the
// executor to install and remove link endpoints.
type InputBinder interface {
	PortName() string
	// Bind installs a consumer endpoint. consumer must be the
	// *Consumer[T] matching the port's element type.
	Bind(id ID, consumer any, source PortAddress) error
	// Unbind removes the endpoint with the given id, restoring the
	// disconnected plug when the last real endpoint goes away.
	Unbind(id ID) error
	Connected() bool
	LinkCount() int
}

// inputConn is one endpoint of an input port. A nil consumer marks the
// disconnected plug, an empty source that never yields.
type inputConn[T any] struct {
	id       ID
	consumer *Consumer[T]
	source   PortAddress
}

// Input is a processor-owned input port.
//
// Like Output, the endpoint list always contains at least one element
// and is copy-on-write: Read loads it with a single atomic read while
// Bind/Unbind swap in a new slice under the writer mutex. Only the
// owning processor goroutine calls Read/Peek; only the executor
// goroutine calls Bind/Unbind.
type Input[T any] struct {
	name  string
	mu    sync.Mutex // serializes Bind/Unbind
	conns atomic.Pointer[[]*inputConn[T]]

	// next is the round-robin cursor over connections. Touched only by
	// the owning processor goroutine inside Read.
	next int
}

// NewInput creates an input port holding a disconnected plug.
func NewInput[T any](name string) *Input[T] {
	in := &Input[T]{name: name}
	plug := []*inputConn[T]{{id: plugID(name)}}
	in.conns.Store(&plug)
	return in
}

// PortName returns the port's name.
func (in *Input[T]) PortName() string { return in.name }

// Bind implements InputBinder.
func (in *Input[T]) Bind(id ID, consumer any, source PortAddress) error {
	c, ok := consumer.(*Consumer[T])
	if !ok {
		return fmt.Errorf("input %s: bind %s: %w", in.name, id, ErrEndpointType)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	conns := *in.conns.Load()
	for _, existing := range conns {
		if existing.id == id {
			return fmt.Errorf("input %s: %w: %s", in.name, ErrLinkExists, id)
		}
	}

	next := make([]*inputConn[T], 0, len(conns)+1)
	for _, existing := range conns {
		if existing.consumer != nil {
			next = append(next, existing)
		}
	}
	next = append(next, &inputConn[T]{id: id, consumer: c, source: source})
	in.conns.Store(&next)
	return nil
}

// Unbind implements InputBinder.
func (in *Input[T]) Unbind(id ID) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	conns := *in.conns.Load()
	found := false
	next := make([]*inputConn[T], 0, len(conns))
	for _, c := range conns {
		if c.id == id {
			found = true
			continue
		}
		if c.consumer != nil {
			next = append(next, c)
		}
	}
	if !found {
		return fmt.Errorf("input %s: %w: %s", in.name, ErrLinkNotFound, id)
	}
	if len(next) == 0 {
		next = append(next, &inputConn[T]{id: plugID(in.name)})
	}
	in.conns.Store(&next)
	return nil
}

// Read returns the next available value (owning processor only).
//
// Each endpoint is drained according to its schema's consumption
// strategy: Latest skips to the newest buffered element, Sequential
// yields elements in order. With multiple real connections, reads
// round-robin in connection-insertion order and deliver at most one
// element per call per connection. A plug is an empty source that never
// yields. ok is false when no connection has data; Read never blocks.
func (in *Input[T]) Read() (value T, ok bool) {
	conns := *in.conns.Load()
	n := len(conns)
	if in.next >= n {
		in.next = 0
	}
	for i := range n {
		c := conns[(in.next+i)%n]
		if c.consumer == nil {
			continue
		}
		if v, got := c.consumer.Read(); got {
			in.next = (in.next + i + 1) % n
			return v, true
		}
	}
	return value, false
}

// Peek returns the oldest buffered element of the first real connection
// without consuming it.
func (in *Input[T]) Peek() (value T, ok bool) {
	for _, c := range *in.conns.Load() {
		if c.consumer != nil {
			return c.consumer.Peek()
		}
	}
	return value, false
}

// Connected reports whether the port has at least one real endpoint.
func (in *Input[T]) Connected() bool {
	for _, c := range *in.conns.Load() {
		if c.consumer != nil {
			return true
		}
	}
	return false
}

// LinkCount returns the number of real endpoints, excluding plugs.
func (in *Input[T]) LinkCount() int {
	n := 0
	for _, c := range *in.conns.Load() {
		if c.consumer != nil {
			n++
		}
	}
	return n
}

// Sources lists the upstream port addresses of all real connections, in
// insertion order.
func (in *Input[T]) Sources() []PortAddress {
	var out []PortAddress
	for _, c := range *in.conns.Load() {
		if c.consumer != nil {
			out = append(out, c.source)
		}
	}
	return out
}
