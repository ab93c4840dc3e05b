// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"sync"
	"sync/atomic"

	"github.com/tatolab/streamlib-sub002/graph"
	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/processor"
)

// State is a processor node's lifecycle state.
//
// Transitions follow the declared edges only:
//
//	Uninitialized → Initialized → Running → (Paused ↔ Running)
//	Running|Paused → Stopping → Stopped → Terminated
//	Running|Paused → Stopped            (processor failure)
//	Initialized → Stopped               (setup failure, or stop before start)
//
// No state is ever re-entered except the Paused↔Running pair.
type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StatePaused
	StateStopping
	StateStopped
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// runningProcessor is the executor-side runtime state layered over one
// graph node: the owned instance, its worker goroutine, wakeup channel,
// and lifecycle state.
type runningProcessor struct {
	id       string
	typeName string
	instance processor.Processor
	exec     processor.Execution
	priority processor.Priority
	audio    *processor.AudioRequirements
	config   []byte

	wakeup *link.Wakeup
	pause  *pauseGate

	// state is atomic so the worker's failure transition is visible to
	// control-plane readers without taking the executor mutex.
	state atomic.Uint32

	// done is closed when the worker goroutine exits. Nil until the
	// worker is launched.
	done chan struct{}
}

func newRunningProcessor(n *graph.Node, inst processor.Processor, desc processor.Descriptor) *runningProcessor {
	rp := &runningProcessor{
		id:       n.ID,
		typeName: n.Type,
		instance: inst,
		exec:     desc.Execution,
		audio:    desc.Audio,
		config:   n.Config,
		wakeup:   link.NewWakeup(),
		pause:    newPauseGate(),
	}
	if s, ok := inst.(processor.Scheduler); ok {
		sc := s.SchedulingConfig()
		rp.exec = sc.Execution
		rp.priority = sc.Priority
	}
	rp.setState(StateInitialized)
	return rp
}

func (rp *runningProcessor) currentState() State {
	return State(rp.state.Load())
}

func (rp *runningProcessor) setState(s State) {
	rp.state.Store(uint32(s))
}

// transition moves to next only if the current state is from; reports
// whether the edge was taken. Used where the worker races the executor
// (failure vs. stop).
func (rp *runningProcessor) transition(from, to State) bool {
	return rp.state.CompareAndSwap(uint32(from), uint32(to))
}

// wiredLink is the executor-side runtime state of one link: the port
// binders its endpoints were installed into, kept so disconnect can
// detach them symmetrically.
type wiredLink struct {
	desc graph.LinkDesc
	out  link.OutputBinder
	in   link.InputBinder
}

// pauseGate is the barrier workers block on while the runtime is
// paused.
type pauseGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

func newPauseGate() *pauseGate {
	g := &pauseGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// wait blocks while the gate is closed. Workers call it at the top of
// every iteration, so no Process call happens after pause wins the
// barrier.
func (g *pauseGate) wait() {
	g.mu.Lock()
	for g.paused {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

func (g *pauseGate) pauseWorkers() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

func (g *pauseGate) resumeWorkers() {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
	g.cond.Broadcast()
}
