// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package processor defines the contract between the runtime and
// processing nodes: the lifecycle callbacks, the static descriptor, and
// the process-global factory registry.
package processor

import (
	log "github.com/sirupsen/logrus"

	"github.com/tatolab/streamlib-sub002/clock"
	"github.com/tatolab/streamlib-sub002/link"
)

// Context carries the runtime facilities a processor may use during
// Setup and keep for its lifetime.
type Context struct {
	// ID is the processor's graph id.
	ID string
	// Clock is the runtime's tick source.
	Clock clock.Clock
	// Log is pre-tagged with the processor id.
	Log *log.Entry
	// Audio carries the negotiated audio parameters, when the
	// processor's descriptor declared audio requirements.
	Audio *AudioRequirements
	// GPU is the shared platform graphics handle when the host wires
	// one; nil otherwise.
	GPU any
}

// Processor is the capability set every node implements.
//
// Setup runs once before the worker starts; no Process call happens
// until it returns success. Process is the policy-specific body: it
// reads input ports and writes output ports, and must never block on
// graph locks. Teardown runs once on stop and must be idempotent with
// cancellation.
type Processor interface {
	Setup(ctx *Context) error
	Process() error
	Teardown() error
}

// ConfigUpdater is implemented by processors that can absorb a new
// config blob in place. Processors without it are recreated when their
// configuration changes.
type ConfigUpdater interface {
	UpdateConfig(config []byte) error
}

// Scheduler is implemented by processors that override the execution
// policy or priority declared in their descriptor at runtime.
type Scheduler interface {
	SchedulingConfig() Scheduling
}

// PortProvider exposes a processor's ports to the executor for link
// wiring. Implementations usually embed Ports.
type PortProvider interface {
	OutputPort(name string) (link.OutputBinder, bool)
	InputPort(name string) (link.InputBinder, bool)
}

// Ports is an embeddable port table implementing PortProvider.
//
// Register ports during construction, before the instance is handed to
// the runtime; the table is read-only afterwards.
type Ports struct {
	outputs map[string]link.OutputBinder
	inputs  map[string]link.InputBinder
}

// RegisterOutput adds an output port to the table.
func (p *Ports) RegisterOutput(b link.OutputBinder) {
	if p.outputs == nil {
		p.outputs = make(map[string]link.OutputBinder)
	}
	p.outputs[b.PortName()] = b
}

// RegisterInput adds an input port to the table.
func (p *Ports) RegisterInput(b link.InputBinder) {
	if p.inputs == nil {
		p.inputs = make(map[string]link.InputBinder)
	}
	p.inputs[b.PortName()] = b
}

// OutputPort implements PortProvider.
func (p *Ports) OutputPort(name string) (link.OutputBinder, bool) {
	b, ok := p.outputs[name]
	return b, ok
}

// InputPort implements PortProvider.
func (p *Ports) InputPort(name string) (link.InputBinder, bool) {
	b, ok := p.inputs[name]
	return b, ok
}
