// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package link

import (
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// OutputBinder is the type-erased view of an output port used by the
// executor to install and remove link endpoints. Typed ports implement
// it; processor code never calls it.
type OutputBinder interface {
	PortName() string
	// Bind installs a producer endpoint. producer must be the
	// *Producer[T] matching the port's element type.
	Bind(id ID, producer any, wakeup WakeupSender, onDrop func()) error
	// Unbind removes the endpoint with the given id, restoring the
	// disconnected plug when the last real endpoint goes away.
	Unbind(id ID) error
	Connected() bool
	LinkCount() int
}

// outputConn is one endpoint of an output port. A nil producer marks the
// disconnected plug, which swallows writes silently.
type outputConn[T any] struct {
	id       ID
	producer *Producer[T]
	wakeup   WakeupSender
	onDrop   func()
	dropLog  sync.Once
}

// Output is a processor-owned output port.
//
// The endpoint list always contains at least one element: real
// connections, or the plug sentinel when idle. The list is copy-on-write:
// Push loads it with a single atomic read, while Bind/Unbind swap in a
// new slice under the writer mutex. The owning processor goroutine is
// the only caller of Push; the executor goroutine is the only caller of
// Bind/Unbind.
type Output[T any] struct {
	name  string
	mu    sync.Mutex // serializes Bind/Unbind
	conns atomic.Pointer[[]*outputConn[T]]
}

// NewOutput creates an output port holding a disconnected plug.
func NewOutput[T any](name string) *Output[T] {
	o := &Output[T]{name: name}
	plug := []*outputConn[T]{{id: plugID(name)}}
	o.conns.Store(&plug)
	return o
}

// plugID builds the sentinel endpoint id for an idle port.
func plugID(portName string) ID {
	return ID(portName + ".disconnected_plug")
}

// PortName returns the port's name.
func (o *Output[T]) PortName() string { return o.name }

// Bind implements OutputBinder.
func (o *Output[T]) Bind(id ID, producer any, wakeup WakeupSender, onDrop func()) error {
	p, ok := producer.(*Producer[T])
	if !ok {
		return fmt.Errorf("output %s: bind %s: %w", o.name, id, ErrEndpointType)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	conns := *o.conns.Load()
	for _, c := range conns {
		if c.id == id {
			return fmt.Errorf("output %s: %w: %s", o.name, ErrLinkExists, id)
		}
	}

	next := make([]*outputConn[T], 0, len(conns)+1)
	for _, c := range conns {
		if c.producer != nil {
			next = append(next, c)
		}
	}
	next = append(next, &outputConn[T]{id: id, producer: p, wakeup: wakeup, onDrop: onDrop})
	o.conns.Store(&next)
	return nil
}

// Unbind implements OutputBinder.
func (o *Output[T]) Unbind(id ID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	conns := *o.conns.Load()
	found := false
	next := make([]*outputConn[T], 0, len(conns))
	for _, c := range conns {
		if c.id == id {
			found = true
			continue
		}
		if c.producer != nil {
			next = append(next, c)
		}
	}
	if !found {
		return fmt.Errorf("output %s: %w: %s", o.name, ErrLinkNotFound, id)
	}
	if len(next) == 0 {
		next = append(next, &outputConn[T]{id: plugID(o.name)})
	}
	o.conns.Store(&next)
	return nil
}

// Push writes a value to every attached link (owning processor only).
//
// If only the plug remains the value is dropped and no wakeup is sent.
// For each real endpoint the value is copied into the link's ring buffer
// and the downstream wakeup receives DataAvailable on success. A full
// buffer is not fatal: the frame is dropped for that endpoint only,
// counted, and logged once per endpoint at debug level — producers never
// block, slow consumers lose frames under overload.
func (o *Output[T]) Push(value T) {
	conns := *o.conns.Load()
	for _, c := range conns {
		if c.producer == nil {
			continue
		}
		if err := c.producer.Push(&value); err != nil {
			if c.onDrop != nil {
				c.onDrop()
			}
			c.dropLog.Do(func() {
				log.WithFields(log.Fields{
					"port": o.name,
					"link": c.id,
				}).Debug("output buffer full, dropping frames for this link")
			})
			continue
		}
		c.wakeup.Notify(WakeupDataAvailable)
	}
}

// Write is an alias for Push.
func (o *Output[T]) Write(value T) { o.Push(value) }

// Connected reports whether the port has at least one real endpoint.
func (o *Output[T]) Connected() bool {
	for _, c := range *o.conns.Load() {
		if c.producer != nil {
			return true
		}
	}
	return false
}

// LinkCount returns the number of real endpoints, excluding plugs.
func (o *Output[T]) LinkCount() int {
	n := 0
	for _, c := range *o.conns.Load() {
		if c.producer != nil {
			n++
		}
	}
	return n
}
