// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamlib

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/tatolab/streamlib-sub002/executor"
	"github.com/tatolab/streamlib-sub002/graph"
	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/processor"
	"github.com/tatolab/streamlib-sub002/pubsub"
	"github.com/tatolab/streamlib-sub002/schema"
)

// CommitMode controls when graph mutations are applied to the executor.
type CommitMode uint8

const (
	// CommitAuto applies changes immediately after each mutation.
	CommitAuto CommitMode = iota
	// CommitManual batches changes until an explicit Commit call.
	CommitManual
)

func (m CommitMode) String() string {
	if m == CommitManual {
		return "manual"
	}
	return "auto"
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	commitMode CommitMode
	registry   *processor.Registry
	schemas    *schema.Registry
	bus        *pubsub.Bus
	execOpts   []executor.Option
}

// WithCommitMode selects the initial commit mode.
func WithCommitMode(m CommitMode) Option {
	return func(o *options) { o.commitMode = m }
}

// WithRegistry overrides the processor factory registry. Tests use this
// to avoid sharing the process-global one.
func WithRegistry(r *processor.Registry) Option {
	return func(o *options) {
		o.registry = r
		o.execOpts = append(o.execOpts, executor.WithRegistry(r))
	}
}

// WithSchemas overrides the schema registry.
func WithSchemas(r *schema.Registry) Option {
	return func(o *options) {
		o.schemas = r
		o.execOpts = append(o.execOpts, executor.WithSchemas(r))
	}
}

// WithBus overrides the event bus.
func WithBus(b *pubsub.Bus) Option {
	return func(o *options) {
		o.bus = b
		o.execOpts = append(o.execOpts, executor.WithBus(b))
	}
}

// WithExecutorOptions forwards additional options to the executor.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(o *options) { o.execOpts = append(o.execOpts, opts...) }
}

// Runtime is the public facade of the stream processing engine: it
// wraps the Graph behind a read-write lock and drives the executor.
//
// Control operations are safe for concurrent use; each mutation
// publishes a matching runtime:global event after success, and
// lifecycle transitions publish paired starting/succeeded (or failed)
// events so external observers can distinguish in-flight transitions.
type Runtime struct {
	gmu  sync.RWMutex
	g    *graph.Graph
	exec *executor.Executor
	bus  *pubsub.Bus

	mu         sync.Mutex // guards the commit mode
	commitMode CommitMode
}

// New creates a runtime.
func New(opts ...Option) *Runtime {
	o := options{
		registry: processor.Default(),
		schemas:  schema.Default(),
		bus:      pubsub.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{
		g:          graph.NewWithRegistries(o.registry, o.schemas),
		bus:        o.bus,
		commitMode: o.commitMode,
	}
	r.exec = executor.New(r.g, &r.gmu, o.execOpts...)
	return r
}

// CommitMode returns the current commit mode.
func (r *Runtime) CommitMode() CommitMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitMode
}

// SetCommitMode switches between Auto and Manual commits.
func (r *Runtime) SetCommitMode(m CommitMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitMode = m
}

// Commit applies all pending graph changes to the executor. In Auto
// mode this runs automatically after each mutation; in Manual mode the
// caller invokes it explicitly. A commit with no pending changes is a
// no-op. Either the full diff applies or the executor is unchanged.
func (r *Runtime) Commit() error {
	return r.exec.SyncToGraph()
}

// onGraphChanged applies the commit-mode policy after a mutation.
func (r *Runtime) onGraphChanged() error {
	r.mu.Lock()
	mode := r.commitMode
	r.mu.Unlock()
	if mode == CommitAuto {
		return r.Commit()
	}
	return nil
}

// AddProcessor adds a processor node of the registered type with a
// canonical generated id.
func (r *Runtime) AddProcessor(typeName string, config json.RawMessage) (*graph.Node, error) {
	r.gmu.Lock()
	node, err := r.g.AddNode(typeName, config)
	r.gmu.Unlock()
	if err != nil {
		return nil, err
	}

	r.bus.Publish(pubsub.TopicRuntimeGlobal, pubsub.Global(pubsub.RuntimeEvent{
		Kind:          pubsub.ProcessorAdded,
		ProcessorID:   node.ID,
		ProcessorType: node.Type,
	}))
	if err := r.onGraphChanged(); err != nil {
		return nil, err
	}
	return node, nil
}

// AddProcessorWithID adds a processor node under an explicit id, as
// used when loading graph files.
func (r *Runtime) AddProcessorWithID(id, typeName string, config json.RawMessage) (*graph.Node, error) {
	r.gmu.Lock()
	node, err := r.g.AddNodeWithID(id, typeName, config)
	r.gmu.Unlock()
	if err != nil {
		return nil, err
	}

	r.bus.Publish(pubsub.TopicRuntimeGlobal, pubsub.Global(pubsub.RuntimeEvent{
		Kind:          pubsub.ProcessorAdded,
		ProcessorID:   node.ID,
		ProcessorType: node.Type,
	}))
	if err := r.onGraphChanged(); err != nil {
		return nil, err
	}
	return node, nil
}

// Connect links an output port to an input port. Port references use
// the "processor.port" form.
func (r *Runtime) Connect(from, to string) (*graph.LinkDesc, error) {
	fromAddr, err := link.ParseAddr(from)
	if err != nil {
		return nil, err
	}
	toAddr, err := link.ParseAddr(to)
	if err != nil {
		return nil, err
	}
	return r.ConnectAddr(fromAddr, toAddr)
}

// ConnectWithCapacity is Connect with an explicit ring-buffer capacity
// overriding the schema default.
func (r *Runtime) ConnectWithCapacity(from, to string, capacity int) (*graph.LinkDesc, error) {
	fromAddr, err := link.ParseAddr(from)
	if err != nil {
		return nil, err
	}
	toAddr, err := link.ParseAddr(to)
	if err != nil {
		return nil, err
	}
	return r.connectAddr(fromAddr, toAddr, capacity)
}

// ConnectAddr links two resolved port addresses.
func (r *Runtime) ConnectAddr(from, to link.PortAddress) (*graph.LinkDesc, error) {
	return r.connectAddr(from, to, 0)
}

func (r *Runtime) connectAddr(from, to link.PortAddress, capacity int) (*graph.LinkDesc, error) {
	r.gmu.Lock()
	l, err := r.g.AddLinkWithCapacity(from, to, capacity)
	r.gmu.Unlock()
	if err != nil {
		return nil, err
	}

	r.bus.Publish(pubsub.TopicRuntimeGlobal, pubsub.Global(pubsub.RuntimeEvent{
		Kind:     pubsub.LinkCreated,
		LinkID:   string(l.ID),
		FromPort: l.From.String(),
		ToPort:   l.To.String(),
	}))
	if err := r.onGraphChanged(); err != nil {
		return nil, err
	}
	return l, nil
}

// Disconnect removes a link.
func (r *Runtime) Disconnect(l *graph.LinkDesc) error {
	return r.DisconnectByID(l.ID)
}

// DisconnectByID removes a link by id. In-flight frames are discarded;
// both ports fall back to plugs when this was their last connection.
func (r *Runtime) DisconnectByID(id link.ID) error {
	r.gmu.Lock()
	l, ok := r.g.Link(id)
	var from, to string
	if ok {
		from, to = l.From.String(), l.To.String()
	}
	err := r.g.RemoveLink(id)
	r.gmu.Unlock()
	if err != nil {
		return err
	}

	r.bus.Publish(pubsub.TopicRuntimeGlobal, pubsub.Global(pubsub.RuntimeEvent{
		Kind:     pubsub.LinkRemoved,
		LinkID:   string(id),
		FromPort: from,
		ToPort:   to,
	}))
	return r.onGraphChanged()
}

// RemoveProcessor removes a node and every link touching it.
func (r *Runtime) RemoveProcessor(node *graph.Node) error {
	return r.RemoveProcessorByID(node.ID)
}

// RemoveProcessorByID removes a node by id. The executor stops the
// node's worker during the following commit; the instance is destroyed
// only from the Stopped state.
func (r *Runtime) RemoveProcessorByID(id string) error {
	r.gmu.Lock()
	err := r.g.RemoveNode(id)
	r.gmu.Unlock()
	if err != nil {
		return err
	}

	r.bus.Publish(pubsub.TopicRuntimeGlobal, pubsub.Global(pubsub.RuntimeEvent{
		Kind:        pubsub.ProcessorRemoved,
		ProcessorID: id,
	}))
	return r.onGraphChanged()
}

// UpdateProcessorConfig replaces a node's config. config may be a
// json.RawMessage or any JSON-marshalable value. The running processor
// observes the new config after the next commit: in place when it
// implements ConfigUpdater, by reinstantiation otherwise.
func (r *Runtime) UpdateProcessorConfig(id string, config any) error {
	raw, ok := config.(json.RawMessage)
	if !ok {
		data, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("encoding config for processor %s: %w", id, err)
		}
		raw = data
	}

	r.gmu.Lock()
	err := r.g.UpdateConfig(id, raw)
	r.gmu.Unlock()
	if err != nil {
		return err
	}

	r.bus.Publish(pubsub.TopicRuntimeGlobal, pubsub.Global(pubsub.RuntimeEvent{
		Kind:        pubsub.ProcessorConfigUpdated,
		ProcessorID: id,
	}))
	return r.onGraphChanged()
}

// Start starts the runtime.
func (r *Runtime) Start() error {
	return r.lifecycle(
		pubsub.RuntimeStarting, pubsub.RuntimeStarted, pubsub.RuntimeStartFailed,
		r.exec.Start,
	)
}

// Stop stops the runtime.
func (r *Runtime) Stop() error {
	return r.lifecycle(
		pubsub.RuntimeStopping, pubsub.RuntimeStopped, pubsub.RuntimeStopFailed,
		r.exec.Stop,
	)
}

// Pause pauses every worker on its barrier; ring buffers keep absorbing
// frames until full.
func (r *Runtime) Pause() error {
	return r.lifecycle(
		pubsub.RuntimePausing, pubsub.RuntimePaused, pubsub.RuntimePauseFailed,
		r.exec.Pause,
	)
}

// Resume releases the pause barriers.
func (r *Runtime) Resume() error {
	return r.lifecycle(
		pubsub.RuntimeResuming, pubsub.RuntimeResumed, pubsub.RuntimeResumeFailed,
		r.exec.Resume,
	)
}

func (r *Runtime) lifecycle(starting, ok, failed pubsub.RuntimeEventKind, op func() error) error {
	r.bus.Publish(pubsub.TopicRuntimeGlobal, pubsub.Global(pubsub.RuntimeEvent{Kind: starting}))
	if err := op(); err != nil {
		r.bus.Publish(pubsub.TopicRuntimeGlobal, pubsub.Global(pubsub.RuntimeEvent{
			Kind:  failed,
			Error: err.Error(),
		}))
		return err
	}
	r.bus.Publish(pubsub.TopicRuntimeGlobal, pubsub.Global(pubsub.RuntimeEvent{Kind: ok}))
	return nil
}

// Status summarizes the executor state.
func (r *Runtime) Status() executor.Status {
	return r.exec.Status()
}

// Snapshot serializes the execution graph for diagnostics.
func (r *Runtime) Snapshot() (executor.Snapshot, error) {
	return r.exec.Snapshot()
}

// View runs fn with the graph under the read lock. The graph must not
// escape fn.
func (r *Runtime) View(fn func(g *graph.Graph)) {
	r.gmu.RLock()
	defer r.gmu.RUnlock()
	fn(r.g)
}

// BlockUntilSignal blocks until SIGINT or SIGTERM, returning the
// signal. It does not stop the runtime; call Stop afterwards for a
// clean shutdown.
func (r *Runtime) BlockUntilSignal() os.Signal {
	return executor.BlockUntilSignal()
}
