// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package executor compiles a Graph into live runtime state and drives
// it: one worker goroutine per processor node, three execution
// policies, lifecycle transitions, and symmetric link wiring.
package executor

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tatolab/streamlib-sub002/clock"
	"github.com/tatolab/streamlib-sub002/graph"
	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/processor"
	"github.com/tatolab/streamlib-sub002/pubsub"
	"github.com/tatolab/streamlib-sub002/schema"
)

var (
	// ErrAlreadyRunning indicates Start on a running executor.
	ErrAlreadyRunning = errors.New("executor already running")
	// ErrNotRunning indicates Stop/Pause on a stopped executor.
	ErrNotRunning = errors.New("executor not running")
	// ErrNotPaused indicates Resume without a preceding Pause.
	ErrNotPaused = errors.New("executor not paused")
	// ErrPortsUnavailable indicates a processor instance does not
	// expose the port a link needs.
	ErrPortsUnavailable = errors.New("processor does not expose required port")
)

// defaultJoinTimeout bounds how long Stop waits for a worker to exit
// before abandoning it.
const defaultJoinTimeout = 2 * time.Second

// Option configures an Executor.
type Option func(*Executor)

// WithRegistry overrides the processor factory registry.
func WithRegistry(r *processor.Registry) Option {
	return func(e *Executor) { e.registry = r }
}

// WithSchemas overrides the schema registry.
func WithSchemas(r *schema.Registry) Option {
	return func(e *Executor) { e.schemas = r }
}

// WithBus overrides the event bus.
func WithBus(b *pubsub.Bus) Option {
	return func(e *Executor) { e.bus = b }
}

// WithClock overrides the clock handed to processors. The default is
// a fresh 60 fps software clock per worker; a shared override must be
// safe for the workers that will drive it.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) { e.clk = c }
}

// WithJoinTimeout overrides the bounded worker join on stop.
func WithJoinTimeout(d time.Duration) Option {
	return func(e *Executor) { e.joinTimeout = d }
}

// Status is the executor's public state summary.
type Status struct {
	Running        bool             `json:"running"`
	Paused         bool             `json:"paused"`
	ProcessorCount int              `json:"processor_count"`
	LinkCount      int              `json:"link_count"`
	NeedsRecompile bool             `json:"needs_recompile"`
	Processors     map[string]State `json:"processors,omitempty"`
}

// Executor owns the execution graph compiled from a Graph snapshot.
//
// Control operations run on the caller's goroutine and serialize on the
// executor mutex. The graph lock is never held across a compile step:
// SyncToGraph snapshots the topology under the read lock, releases it,
// then reconciles.
type Executor struct {
	mu sync.Mutex

	g     *graph.Graph
	glock rLocker

	registry    *processor.Registry
	schemas     *schema.Registry
	bus         *pubsub.Bus
	clk         clock.Clock
	joinTimeout time.Duration

	exec    *executionGraph
	running bool
	paused  bool

	// pending queues events raised under the executor mutex. The bus
	// joins listener dispatch, so publishing while holding a
	// processor-state lock would deadlock on listener re-entry; locked
	// sections queue instead and the lock holder flushes after release.
	pending []queuedEvent
}

type queuedEvent struct {
	topic string
	ev    *pubsub.Event
}

// queueEvent defers a publish until the executor mutex is released.
func (e *Executor) queueEvent(topic string, ev *pubsub.Event) {
	e.pending = append(e.pending, queuedEvent{topic: topic, ev: ev})
}

// locked runs fn under the executor mutex and publishes the events it
// queued after the mutex is released.
func (e *Executor) locked(fn func() error) error {
	e.mu.Lock()
	err := fn()
	flush := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, q := range flush {
		e.bus.Publish(q.topic, q.ev)
	}
	return err
}

// New creates an executor over a graph guarded by the given read lock.
func New(g *graph.Graph, glock rLocker, opts ...Option) *Executor {
	e := &Executor{
		g:           g,
		glock:       glock,
		registry:    processor.Default(),
		schemas:     schema.Default(),
		bus:         pubsub.Default(),
		joinTimeout: defaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	glock.RLock()
	checksum := g.Checksum()
	glock.RUnlock()
	e.exec = newExecutionGraph(checksum)
	return e
}

// graphSnapshot is the topology copy taken under the read lock.
type graphSnapshot struct {
	nodes    map[string]graph.Node
	links    map[link.ID]graph.LinkDesc
	checksum uint64
}

func (e *Executor) snapshotGraph() graphSnapshot {
	e.glock.RLock()
	defer e.glock.RUnlock()

	snap := graphSnapshot{
		nodes:    make(map[string]graph.Node),
		links:    make(map[link.ID]graph.LinkDesc),
		checksum: e.g.Checksum(),
	}
	for _, n := range e.g.Nodes() {
		snap.nodes[n.ID] = *n
	}
	for _, l := range e.g.Links() {
		snap.links[l.ID] = *l
	}
	return snap
}

// stagedLink is a link validated and allocated but not yet installed.
type stagedLink struct {
	desc graph.LinkDesc
	out  link.OutputBinder
	in   link.InputBinder
	eps  link.Endpoints
	wake link.WakeupSender
}

// SyncToGraph reconciles executor state to the current Graph snapshot —
// the compile step behind every commit.
//
// The diff applies transactionally: all validation and instance
// construction happens before any executor state changes, so a failed
// compile leaves the executor exactly as it was. Per-processor setup
// errors after a successful compile are runtime failures announced via
// events, not compile failures.
func (e *Executor) SyncToGraph() error {
	return e.locked(e.syncToGraphLocked)
}

func (e *Executor) syncToGraphLocked() error {
	snap := e.snapshotGraph()

	// ----- Stage: validate and construct, no side effects on exec -----

	type stagedNode struct {
		node graph.Node
		rp   *runningProcessor
	}
	var added, replaced []stagedNode
	type configUpdate struct {
		rp     *runningProcessor
		config []byte
	}
	var updates []configUpdate

	// final maps id to the instance that will own ports after apply.
	final := make(map[string]*runningProcessor, len(snap.nodes))

	for id, n := range snap.nodes {
		rp, exists := e.exec.procs[id]
		if !exists {
			inst, err := e.registry.Create(n.Type, n.Config)
			if err != nil {
				return fmt.Errorf("compiling node %s: %w", id, err)
			}
			desc, _ := e.registry.Descriptor(n.Type)
			nrp := newRunningProcessor(&n, inst, desc)
			added = append(added, stagedNode{node: n, rp: nrp})
			final[id] = nrp
			continue
		}

		if !bytes.Equal(rp.config, n.Config) {
			if _, ok := rp.instance.(processor.ConfigUpdater); ok {
				updates = append(updates, configUpdate{rp: rp, config: n.Config})
				final[id] = rp
				continue
			}
			inst, err := e.registry.Create(n.Type, n.Config)
			if err != nil {
				return fmt.Errorf("recompiling node %s: %w", id, err)
			}
			desc, _ := e.registry.Descriptor(n.Type)
			nrp := newRunningProcessor(&n, inst, desc)
			replaced = append(replaced, stagedNode{node: n, rp: nrp})
			final[id] = nrp
			continue
		}
		final[id] = rp
	}

	var removedNodes []*runningProcessor
	for id, rp := range e.exec.procs {
		if _, keep := snap.nodes[id]; !keep {
			removedNodes = append(removedNodes, rp)
		}
	}

	replacedIDs := make(map[string]bool, len(replaced))
	for _, s := range replaced {
		replacedIDs[s.node.ID] = true
	}

	// Links to detach: gone from the graph, or touching a node whose
	// instance is being replaced (fresh ports need rewiring; in-flight
	// frames are discarded, as on any disconnect).
	var removedLinks []*wiredLink
	needWire := make(map[link.ID]graph.LinkDesc)
	for id, wl := range e.exec.links {
		_, keep := snap.links[id]
		rewire := replacedIDs[wl.desc.From.Processor] || replacedIDs[wl.desc.To.Processor]
		if !keep || rewire {
			removedLinks = append(removedLinks, wl)
			if keep && rewire {
				needWire[id] = snap.links[id]
			}
		}
	}
	for id, l := range snap.links {
		if _, wired := e.exec.links[id]; !wired {
			needWire[id] = l
		}
	}

	var addedLinks []stagedLink
	for _, l := range needWire {
		src, ok := final[l.From.Processor]
		if !ok {
			return fmt.Errorf("compiling link %s: %w: %s", l.ID, graph.ErrNodeNotFound, l.From.Processor)
		}
		dst, ok := final[l.To.Processor]
		if !ok {
			return fmt.Errorf("compiling link %s: %w: %s", l.ID, graph.ErrNodeNotFound, l.To.Processor)
		}
		srcPorts, ok := src.instance.(processor.PortProvider)
		if !ok {
			return fmt.Errorf("compiling link %s: %w: %s", l.ID, ErrPortsUnavailable, l.From)
		}
		dstPorts, ok := dst.instance.(processor.PortProvider)
		if !ok {
			return fmt.Errorf("compiling link %s: %w: %s", l.ID, ErrPortsUnavailable, l.To)
		}
		out, ok := srcPorts.OutputPort(l.From.Port)
		if !ok {
			return fmt.Errorf("compiling link %s: %w: %s", l.ID, ErrPortsUnavailable, l.From)
		}
		in, ok := dstPorts.InputPort(l.To.Port)
		if !ok {
			return fmt.Errorf("compiling link %s: %w: %s", l.ID, ErrPortsUnavailable, l.To)
		}
		eps, err := e.schemas.NewEndpoints(l.Schema, l.Capacity)
		if err != nil {
			return fmt.Errorf("compiling link %s: %w", l.ID, err)
		}
		addedLinks = append(addedLinks, stagedLink{
			desc: l,
			out:  out,
			in:   in,
			eps:  eps,
			wake: dst.wakeup.Sender(),
		})
	}

	// ----- Apply: from here on, nothing fails the commit -----

	for _, wl := range removedLinks {
		e.unwireLocked(wl)
	}

	for _, rp := range removedNodes {
		e.stopProcessorLocked(rp)
		rp.setState(StateTerminated)
		delete(e.exec.procs, rp.id)
	}

	for _, s := range replaced {
		old := e.exec.procs[s.node.ID]
		e.stopProcessorLocked(old)
		e.exec.procs[s.node.ID] = s.rp
	}

	for _, u := range updates {
		cu := u.rp.instance.(processor.ConfigUpdater)
		if err := cu.UpdateConfig(u.config); err != nil {
			log.WithError(err).WithField("processor", u.rp.id).Error("config update rejected")
			processorFailures.WithLabelValues(u.rp.id).Inc()
			e.queueEvent(pubsub.ProcessorTopic(u.rp.id),
				pubsub.PerProcessor(u.rp.id, pubsub.ProcessorFailed, err.Error()))
			e.stopProcessorLocked(u.rp)
		} else {
			u.rp.config = u.config
			u.rp.wakeup.Notify(link.WakeupConfigChanged)
			e.queueEvent(pubsub.ProcessorTopic(u.rp.id),
				pubsub.PerProcessor(u.rp.id, pubsub.ProcessorConfigApplied, ""))
		}
	}

	for _, s := range added {
		e.exec.procs[s.node.ID] = s.rp
	}

	// Wire links before starting any new worker so a source's first
	// frames find their buffers.
	for _, sl := range addedLinks {
		e.wireLocked(sl)
	}

	if e.running {
		for _, s := range replaced {
			e.startProcessorLocked(s.rp)
		}
		for _, s := range added {
			e.startProcessorLocked(s.rp)
		}
	}

	e.exec.meta = newCompilationMetadata(snap.checksum)
	return nil
}

// wireLocked installs a staged link's endpoints into both ports.
func (e *Executor) wireLocked(sl stagedLink) {
	id := sl.desc.ID
	onDrop := func() {
		linkDroppedFrames.WithLabelValues(string(id)).Inc()
	}
	if err := sl.out.Bind(id, sl.eps.Producer, sl.wake, onDrop); err != nil {
		log.WithError(err).WithField("link", id).Error("failed to bind producer endpoint")
		return
	}
	if err := sl.in.Bind(id, sl.eps.Consumer, sl.desc.From); err != nil {
		log.WithError(err).WithField("link", id).Error("failed to bind consumer endpoint")
		_ = sl.out.Unbind(id)
		return
	}
	e.exec.links[id] = &wiredLink{desc: sl.desc, out: sl.out, in: sl.in}
}

// unwireLocked detaches both endpoints and drops the link. No frames
// survive: in-flight items go away with the buffer.
func (e *Executor) unwireLocked(wl *wiredLink) {
	id := wl.desc.ID
	if err := wl.out.Unbind(id); err != nil {
		log.WithError(err).WithField("link", id).Debug("producer endpoint already detached")
	}
	if err := wl.in.Unbind(id); err != nil {
		log.WithError(err).WithField("link", id).Debug("consumer endpoint already detached")
	}
	delete(e.exec.links, id)
	linkDroppedFrames.DeleteLabelValues(string(id))
}

// Start transitions every Initialized node to Running, one node at a
// time: its Setup runs first and its worker goroutine is launched only
// after Setup succeeded. A setup failure rolls back the nodes already
// started and fails the start.
func (e *Executor) Start() error {
	return e.locked(e.startLocked)
}

func (e *Executor) startLocked() error {
	if e.running {
		return ErrAlreadyRunning
	}
	if e.registry.Len() == 0 {
		return fmt.Errorf("starting runtime: %w", processor.ErrEmptyRegistry)
	}

	var started []*runningProcessor
	for _, rp := range e.exec.procs {
		if rp.currentState() != StateInitialized {
			continue
		}
		if err := e.startProcessorLocked(rp); err != nil {
			for _, s := range started {
				e.stopProcessorLocked(s)
			}
			return err
		}
		started = append(started, rp)
	}

	e.running = true
	e.paused = false
	return nil
}

// startProcessorLocked runs Setup and launches the worker. The returned
// error is a setup failure; it is also announced as a ProcessorFailed
// event.
func (e *Executor) startProcessorLocked(rp *runningProcessor) error {
	clk := e.clk
	if clk == nil {
		// Each worker gets its own clock; Software is single-driver.
		clk = clock.NewSoftware(60.0)
	}
	ctx := &processor.Context{
		ID:    rp.id,
		Clock: clk,
		Log:   log.WithField("processor", rp.id),
		Audio: rp.audio,
	}
	if err := rp.instance.Setup(ctx); err != nil {
		rp.setState(StateStopped)
		processorFailures.WithLabelValues(rp.id).Inc()
		e.queueEvent(pubsub.ProcessorTopic(rp.id),
			pubsub.PerProcessor(rp.id, pubsub.ProcessorFailed, err.Error()))
		return fmt.Errorf("setup of processor %s: %w", rp.id, err)
	}

	rp.done = make(chan struct{})
	rp.setState(StateRunning)
	if e.paused {
		rp.pause.pauseWorkers()
		rp.setState(StatePaused)
	}
	processorsRunning.Inc()
	e.queueEvent(pubsub.ProcessorTopic(rp.id),
		pubsub.PerProcessor(rp.id, pubsub.ProcessorStarted, ""))

	switch rp.exec.Kind {
	case processor.PolicyContinuous:
		go e.runContinuous(rp)
	case processor.PolicyReactive:
		go e.runReactive(rp)
	case processor.PolicyManual:
		go e.runManual(rp)
	}
	return nil
}

// Stop sends Shutdown to every worker, joins each with a bounded
// timeout, and tears the instances down. A worker that does not exit in
// time is abandoned: its state still becomes Stopped, and teardown runs
// when (if) the goroutine finally exits, so the leak stays bounded to
// the stuck processor.
func (e *Executor) Stop() error {
	return e.locked(func() error {
		if !e.running {
			return ErrNotRunning
		}
		for _, rp := range e.exec.procs {
			e.stopProcessorLocked(rp)
		}
		e.running = false
		e.paused = false
		return nil
	})
}

func (e *Executor) stopProcessorLocked(rp *runningProcessor) {
	if rp.currentState() == StateInitialized {
		// Never started; Setup never ran, so neither does Teardown.
		rp.setState(StateStopped)
		return
	}
	// The CAS loses to a worker that just failed: that path already
	// published and tore down, so there is nothing left to stop.
	if !rp.transition(StateRunning, StateStopping) &&
		!rp.transition(StatePaused, StateStopping) {
		return
	}

	rp.wakeup.Notify(link.WakeupShutdown)
	rp.pause.resumeWorkers()

	joined := true
	if rp.done != nil {
		select {
		case <-rp.done:
		case <-time.After(e.joinTimeout):
			joined = false
			log.WithField("processor", rp.id).Error("worker did not exit within join timeout, abandoning")
		}
	}

	if joined {
		teardown(rp)
	} else {
		// The instance is dropped only after the goroutine exits.
		go func() {
			<-rp.done
			teardown(rp)
		}()
	}

	if rp.done != nil {
		processorsRunning.Dec()
	}
	rp.setState(StateStopped)
	e.queueEvent(pubsub.ProcessorTopic(rp.id),
		pubsub.PerProcessor(rp.id, pubsub.ProcessorStopped, ""))
}

// teardown runs the instance's Teardown, containing panics.
func teardown(rp *runningProcessor) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("processor", rp.id).Errorf("panic in teardown: %v", r)
		}
	}()
	if err := rp.instance.Teardown(); err != nil {
		log.WithError(err).WithField("processor", rp.id).Warn("teardown returned error")
	}
}

// Pause blocks every worker on its pause barrier. Wakeup events keep
// queuing while paused and are honored on resume.
func (e *Executor) Pause() error {
	return e.locked(func() error {
		if !e.running {
			return ErrNotRunning
		}
		if e.paused {
			return nil
		}
		for _, rp := range e.exec.procs {
			if rp.transition(StateRunning, StatePaused) {
				rp.pause.pauseWorkers()
				e.queueEvent(pubsub.ProcessorTopic(rp.id),
					pubsub.PerProcessor(rp.id, pubsub.ProcessorPaused, ""))
			}
		}
		e.paused = true
		return nil
	})
}

// Resume releases the pause barriers.
func (e *Executor) Resume() error {
	return e.locked(func() error {
		if !e.running {
			return ErrNotRunning
		}
		if !e.paused {
			return ErrNotPaused
		}
		for _, rp := range e.exec.procs {
			if rp.transition(StatePaused, StateRunning) {
				rp.pause.resumeWorkers()
				e.queueEvent(pubsub.ProcessorTopic(rp.id),
					pubsub.PerProcessor(rp.id, pubsub.ProcessorResumed, ""))
			}
		}
		e.paused = false
		return nil
	})
}

// NeedsRecompile reports whether the Graph changed since the last
// compile: current checksum differs from the captured one.
func (e *Executor) NeedsRecompile() bool {
	e.glock.RLock()
	checksum := e.g.Checksum()
	e.glock.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return checksum != e.exec.meta.sourceChecksum
}

// ProcessorState returns the lifecycle state of a node.
func (e *Executor) ProcessorState(id string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rp, ok := e.exec.procs[id]
	if !ok {
		return StateUninitialized, false
	}
	return rp.currentState(), true
}

// Status summarizes the executor.
func (e *Executor) Status() Status {
	needs := e.NeedsRecompile()

	e.mu.Lock()
	defer e.mu.Unlock()
	states := make(map[string]State, len(e.exec.procs))
	for id, rp := range e.exec.procs {
		states[id] = rp.currentState()
	}
	return Status{
		Running:        e.running,
		Paused:         e.paused,
		ProcessorCount: len(e.exec.procs),
		LinkCount:      len(e.exec.links),
		NeedsRecompile: needs,
		Processors:     states,
	}
}

// Snapshot serializes the execution graph for diagnostics.
func (e *Executor) Snapshot() (Snapshot, error) {
	needs := e.NeedsRecompile()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exec.snapshot(e.g, e.glock, needs)
}
