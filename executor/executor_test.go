// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor_test

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tatolab/streamlib-sub002/executor"
	"github.com/tatolab/streamlib-sub002/graph"
	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/processor"
	"github.com/tatolab/streamlib-sub002/pubsub"
	"github.com/tatolab/streamlib-sub002/schema"
)

type numFrame struct {
	Seq int
}

// probe is a configurable test processor. Its behavior flags come from
// the config blob, so one registration covers sources, sinks, and
// failure cases.
type probe struct {
	processor.Ports
	in  *link.Input[numFrame]
	out *link.Output[numFrame]

	cfg      probeConfig
	seq      int
	setups   atomic.Int32
	tears    atomic.Int32
	calls    atomic.Int32
	received struct {
		mu   sync.Mutex
		vals []int
	}
}

type probeConfig struct {
	Emit       bool   `json:"emit"`
	FailOn     int    `json:"fail_on"`     // Process returns an error on this call (1-based)
	PanicOn    int    `json:"panic_on"`    // Process panics on this call (1-based)
	FailSetup  bool   `json:"fail_setup"`  // Setup returns an error
	FailCreate bool   `json:"fail_create"` // constructor returns an error
	BlockMS    int    `json:"block_ms"`    // Process sleeps this long before reading
	Value      int    `json:"value"`       // observable config payload
	HandleName string `json:"handle_name"` // publishes the instance for test access
}

var probeHandles sync.Map // name -> *probe

func newProbe(config []byte) (processor.Processor, error) {
	var cfg probeConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.FailCreate {
		return nil, errors.New("constructor rejected config")
	}
	p := &probe{
		in:  link.NewInput[numFrame]("in"),
		out: link.NewOutput[numFrame]("out"),
		cfg: cfg,
	}
	p.RegisterInput(p.in)
	p.RegisterOutput(p.out)
	if cfg.HandleName != "" {
		probeHandles.Store(cfg.HandleName, p)
	}
	return p, nil
}

func handle(t *testing.T, name string) *probe {
	t.Helper()
	v, ok := probeHandles.Load(name)
	if !ok {
		t.Fatalf("no probe handle %q", name)
	}
	return v.(*probe)
}

func (p *probe) Setup(*processor.Context) error {
	p.setups.Add(1)
	if p.cfg.FailSetup {
		return errors.New("setup failed")
	}
	return nil
}

func (p *probe) Process() error {
	n := int(p.calls.Add(1))
	if p.cfg.PanicOn > 0 && n == p.cfg.PanicOn {
		panic("probe asked to panic")
	}
	if p.cfg.FailOn > 0 && n == p.cfg.FailOn {
		return errors.New("probe asked to fail")
	}
	if p.cfg.BlockMS > 0 {
		time.Sleep(time.Duration(p.cfg.BlockMS) * time.Millisecond)
	}

	for {
		f, ok := p.in.Read()
		if !ok {
			break
		}
		p.received.mu.Lock()
		p.received.vals = append(p.received.vals, f.Seq)
		p.received.mu.Unlock()
	}

	if p.cfg.Emit {
		p.out.Push(numFrame{Seq: p.seq})
		p.seq++
	}
	return nil
}

func (p *probe) Teardown() error {
	p.tears.Add(1)
	return nil
}

func (p *probe) values() []int {
	p.received.mu.Lock()
	defer p.received.mu.Unlock()
	out := make([]int, len(p.received.vals))
	copy(out, p.received.vals)
	return out
}

// testEnv wires a private graph, registries, bus, and executor.
type testEnv struct {
	g    *graph.Graph
	gmu  sync.RWMutex
	exec *executor.Executor
	bus  *pubsub.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	schemas := schema.NewRegistry()
	if err := schema.Register[numFrame](schemas, schema.Entry{
		Name:            "Num",
		Version:         schema.V(1, 0, 0),
		ReadMode:        link.ReadSequential,
		DefaultCapacity: 256,
	}); err != nil {
		t.Fatal(err)
	}

	reg := processor.NewRegistry()
	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:      "probe.Continuous",
			Inputs:    []processor.PortSpec{{Name: "in", Schema: "Num"}},
			Outputs:   []processor.PortSpec{{Name: "out", Schema: "Num"}},
			Execution: processor.ContinuousEvery(1),
		},
		New: newProbe,
	})
	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:      "probe.Reactive",
			Inputs:    []processor.PortSpec{{Name: "in", Schema: "Num"}},
			Outputs:   []processor.PortSpec{{Name: "out", Schema: "Num"}},
			Execution: processor.Reactive(),
		},
		New: newProbe,
	})
	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:      "probe.Manual",
			Inputs:    []processor.PortSpec{{Name: "in", Schema: "Num"}},
			Outputs:   []processor.PortSpec{{Name: "out", Schema: "Num"}},
			Execution: processor.Manual(),
		},
		New: newProbe,
	})

	env := &testEnv{
		g:   graph.NewWithRegistries(reg, schemas),
		bus: pubsub.NewBus(),
	}
	t.Cleanup(env.bus.Close)
	env.exec = executor.New(env.g, &env.gmu,
		executor.WithRegistry(reg),
		executor.WithSchemas(schemas),
		executor.WithBus(env.bus),
		executor.WithJoinTimeout(time.Second),
	)
	return env
}

func (env *testEnv) addNode(t *testing.T, id, typ string, cfg string) {
	t.Helper()
	env.gmu.Lock()
	defer env.gmu.Unlock()
	var raw json.RawMessage
	if cfg != "" {
		raw = json.RawMessage(cfg)
	}
	if _, err := env.g.AddNodeWithID(id, typ, raw); err != nil {
		t.Fatal(err)
	}
}

func (env *testEnv) connect(t *testing.T, from, to link.PortAddress) link.ID {
	t.Helper()
	env.gmu.Lock()
	defer env.gmu.Unlock()
	l, err := env.g.AddLink(from, to)
	if err != nil {
		t.Fatal(err)
	}
	return l.ID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// TestSyncCreatesAndTerminates verifies the compile step materializes
// graph nodes and reaps removed ones.
func TestSyncCreatesAndTerminates(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "a", "probe.Reactive", "")
	if got := env.exec.Status().ProcessorCount; got != 0 {
		t.Fatalf("pre-sync processor count: %d", got)
	}

	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if got := env.exec.Status().ProcessorCount; got != 1 {
		t.Fatalf("post-sync processor count: %d", got)
	}
	if st, ok := env.exec.ProcessorState("a"); !ok || st != executor.StateInitialized {
		t.Fatalf("state: %v, %v", st, ok)
	}

	env.gmu.Lock()
	_ = env.g.RemoveNode("a")
	env.gmu.Unlock()
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if got := env.exec.Status().ProcessorCount; got != 0 {
		t.Fatalf("post-remove processor count: %d", got)
	}
}

// TestNeedsRecompileTracksChecksum: the invariant is exactly "current
// checksum differs from the captured compile checksum".
func TestNeedsRecompileTracksChecksum(t *testing.T) {
	env := newTestEnv(t)

	if env.exec.NeedsRecompile() {
		t.Fatal("fresh executor needs recompile")
	}

	env.addNode(t, "a", "probe.Reactive", "")
	if !env.exec.NeedsRecompile() {
		t.Fatal("mutation not reflected in needs_recompile")
	}

	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if env.exec.NeedsRecompile() {
		t.Fatal("needs_recompile after sync")
	}

	// No pending changes: sync is a no-op and the flag stays clear.
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if env.exec.NeedsRecompile() {
		t.Fatal("no-op sync flipped needs_recompile")
	}
}

// TestCompileFailureLeavesExecutorUnchanged: a constructor error aborts
// the commit atomically.
func TestCompileFailureLeavesExecutorUnchanged(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "ok", "probe.Reactive", "")
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}

	env.addNode(t, "bad", "probe.Reactive", `{"fail_create":true}`)
	env.addNode(t, "ok2", "probe.Reactive", "")
	if err := env.exec.SyncToGraph(); err == nil {
		t.Fatal("expected compile error")
	}

	st := env.exec.Status()
	if st.ProcessorCount != 1 {
		t.Fatalf("executor mutated by failed compile: %d processors", st.ProcessorCount)
	}
	if !st.NeedsRecompile {
		t.Fatal("failed compile should leave recompile pending")
	}
}

// TestStartEmptyRegistryFails: an empty factory registry at start is an
// error in itself.
func TestStartEmptyRegistryFails(t *testing.T) {
	var gmu sync.RWMutex
	reg := processor.NewRegistry()
	g := graph.NewWithRegistries(reg, schema.NewRegistry())
	bus := pubsub.NewBus()
	defer bus.Close()
	exec := executor.New(g, &gmu,
		executor.WithRegistry(reg),
		executor.WithSchemas(schema.NewRegistry()),
		executor.WithBus(bus),
	)

	if err := exec.Start(); !errors.Is(err, processor.ErrEmptyRegistry) {
		t.Fatalf("Start: got %v, want ErrEmptyRegistry", err)
	}
}

// TestPipelineEndToEnd runs source -> reactive transform under the
// executor and verifies FIFO delivery.
func TestPipelineEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "src", "probe.Continuous", `{"emit":true,"handle_name":"e2e_src"}`)
	env.addNode(t, "dst", "probe.Reactive", `{"handle_name":"e2e_dst"}`)
	env.connect(t, link.Addr("src", "out"), link.Addr("dst", "in"))
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}

	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}
	dst := handle(t, "e2e_dst")
	waitFor(t, "frames to arrive", func() bool { return len(dst.values()) >= 20 })

	if err := env.exec.Stop(); err != nil {
		t.Fatal(err)
	}

	vals := dst.values()
	for i, v := range vals {
		if v != i {
			t.Fatalf("FIFO violated at %d: got %d", i, v)
		}
	}

	src := handle(t, "e2e_src")
	if src.setups.Load() != 1 || src.tears.Load() != 1 {
		t.Fatalf("lifecycle calls: setup=%d teardown=%d", src.setups.Load(), src.tears.Load())
	}
	if st, _ := env.exec.ProcessorState("src"); st != executor.StateStopped {
		t.Fatalf("state after stop: %v", st)
	}
}

// TestDoubleStartFails covers lifecycle errors.
func TestDoubleStartFails(t *testing.T) {
	env := newTestEnv(t)
	env.addNode(t, "a", "probe.Reactive", "")
	_ = env.exec.SyncToGraph()

	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}
	defer env.exec.Stop()

	if err := env.exec.Start(); !errors.Is(err, executor.ErrAlreadyRunning) {
		t.Fatalf("second Start: got %v", err)
	}
	if err := env.exec.Resume(); !errors.Is(err, executor.ErrNotPaused) {
		t.Fatalf("Resume unpaused: got %v", err)
	}
}

// TestSetupFailureRollsBackStart: a failing Setup fails Start and stops
// the nodes that had already started.
func TestSetupFailureRollsBackStart(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "good", "probe.Reactive", "")
	env.addNode(t, "bad", "probe.Reactive", `{"fail_setup":true}`)
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}

	if err := env.exec.Start(); err == nil {
		t.Fatal("Start should fail when a setup fails")
	}
	if env.exec.Status().Running {
		t.Fatal("executor running after failed start")
	}
	if st, _ := env.exec.ProcessorState("bad"); st != executor.StateStopped {
		t.Fatalf("bad state: %v", st)
	}
}

// TestProcessorFailureIsIsolated: a Process error stops that node only
// and publishes ProcessorFailed; the rest keeps running.
func TestProcessorFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t)

	var failed atomic.Bool
	sub := env.bus.Subscribe(pubsub.ProcessorTopic("flaky"), pubsub.ListenerFunc(func(ev *pubsub.Event) error {
		if ev.Processor != nil && ev.Processor.Kind == pubsub.ProcessorFailed {
			failed.Store(true)
		}
		return nil
	}))
	defer sub.Close()

	env.addNode(t, "flaky", "probe.Continuous", `{"fail_on":3,"handle_name":"iso_flaky"}`)
	env.addNode(t, "steady", "probe.Continuous", `{"emit":true,"handle_name":"iso_steady"}`)
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}
	defer env.exec.Stop()

	waitFor(t, "flaky to stop", func() bool {
		st, _ := env.exec.ProcessorState("flaky")
		return st == executor.StateStopped
	})
	waitFor(t, "failed event", failed.Load)

	if handle(t, "iso_flaky").tears.Load() != 1 {
		t.Fatal("failed processor not torn down")
	}

	steady := handle(t, "iso_steady")
	before := steady.calls.Load()
	waitFor(t, "steady to keep running", func() bool { return steady.calls.Load() > before })
	if st, _ := env.exec.ProcessorState("steady"); st != executor.StateRunning {
		t.Fatalf("steady state: %v", st)
	}
}

// TestWorkerPanicIsContained: a panic in Process behaves like an error.
func TestWorkerPanicIsContained(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "p", "probe.Continuous", `{"panic_on":2,"handle_name":"panic_p"}`)
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}
	defer env.exec.Stop()

	waitFor(t, "panicked node to stop", func() bool {
		st, _ := env.exec.ProcessorState("p")
		return st == executor.StateStopped
	})
	if handle(t, "panic_p").tears.Load() != 1 {
		t.Fatal("panicked processor not torn down")
	}
}

// TestPauseResume: paused workers make no Process calls; resume picks
// the pipeline back up.
func TestPauseResume(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "c", "probe.Continuous", `{"handle_name":"pr_c"}`)
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}
	defer env.exec.Stop()

	c := handle(t, "pr_c")
	waitFor(t, "first calls", func() bool { return c.calls.Load() > 0 })

	if err := env.exec.Pause(); err != nil {
		t.Fatal(err)
	}
	if st, _ := env.exec.ProcessorState("c"); st != executor.StatePaused {
		t.Fatalf("state: %v", st)
	}

	// Let any in-flight Process finish, then verify quiescence.
	time.Sleep(20 * time.Millisecond)
	before := c.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := c.calls.Load(); got != before {
		t.Fatalf("Process called while paused: %d -> %d", before, got)
	}

	if err := env.exec.Resume(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "calls after resume", func() bool { return c.calls.Load() > before })
}

// TestReactiveCoalescing: N wakeups queued while the consumer is inside
// Process collapse into a single additional Process call, not N.
//
// The source is Manual, so the test goroutine itself drives the pushes
// — exactly the external-thread contract of that policy.
func TestReactiveCoalescing(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "src", "probe.Manual", `{"handle_name":"co_src"}`)
	env.addNode(t, "dst", "probe.Reactive", `{"block_ms":100,"handle_name":"co_dst"}`)
	env.connect(t, link.Addr("src", "out"), link.Addr("dst", "in"))
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}
	defer env.exec.Stop()

	src := handle(t, "co_src")
	dst := handle(t, "co_dst")
	waitFor(t, "manual init call", func() bool { return src.calls.Load() == 1 })

	// First push wakes the consumer into its 100ms block.
	src.out.Push(numFrame{Seq: 0})
	waitFor(t, "consumer busy", func() bool { return dst.calls.Load() == 1 })

	// Ten wakeups land while it is blocked.
	for i := 1; i <= 10; i++ {
		src.out.Push(numFrame{Seq: i})
	}

	waitFor(t, "all frames consumed", func() bool { return len(dst.values()) == 11 })
	if got := dst.calls.Load(); got != 2 {
		t.Fatalf("coalescing: got %d Process calls, want 2", got)
	}
	for i, v := range dst.values() {
		if v != i {
			t.Fatalf("FIFO violated at %d: got %d", i, v)
		}
	}
}

// TestManualRunsOnce: a Manual processor gets exactly one Process call
// and then only observes lifecycle.
func TestManualRunsOnce(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "m", "probe.Manual", `{"handle_name":"man_m"}`)
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}

	m := handle(t, "man_m")
	waitFor(t, "initial call", func() bool { return m.calls.Load() == 1 })
	time.Sleep(30 * time.Millisecond)
	if got := m.calls.Load(); got != 1 {
		t.Fatalf("Manual processor called %d times", got)
	}

	if err := env.exec.Stop(); err != nil {
		t.Fatal(err)
	}
	if m.tears.Load() != 1 {
		t.Fatal("manual processor not torn down")
	}
}

// TestContinuousIntervalGap: with interval_ms = K the gap between
// invocations is at least K.
func TestContinuousIntervalGap(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "c", "probe.Continuous", `{"handle_name":"gap_c"}`)
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}
	defer env.exec.Stop()

	start := time.Now()
	c := handle(t, "gap_c")
	base := c.calls.Load()
	waitFor(t, "several calls", func() bool { return c.calls.Load() >= base+10 })

	// probe.Continuous declares interval_ms = 1: ten further calls
	// enforce at least nine 1ms gaps. The loose bound tolerates
	// scheduler jitter in the other direction.
	if elapsed := time.Since(start); elapsed < 9*time.Millisecond {
		t.Fatalf("interval not enforced: 10 calls in %v", elapsed)
	}
}

// TestConfigUpdateReinstantiates: without ConfigUpdater the instance is
// replaced and the next Process observes the new config.
func TestConfigUpdateReinstantiates(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "v", "probe.Continuous", `{"value":1,"handle_name":"cfg_v"}`)
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}
	defer env.exec.Stop()

	first := handle(t, "cfg_v")
	waitFor(t, "first instance running", func() bool { return first.calls.Load() > 0 })

	env.gmu.Lock()
	if err := env.g.UpdateConfig("v", json.RawMessage(`{"value":2,"handle_name":"cfg_v"}`)); err != nil {
		env.gmu.Unlock()
		t.Fatal(err)
	}
	env.gmu.Unlock()
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}

	second := handle(t, "cfg_v")
	if second == first {
		t.Fatal("instance not replaced on config change")
	}
	if second.cfg.Value != 2 {
		t.Fatalf("new config not applied: %d", second.cfg.Value)
	}
	waitFor(t, "replacement running", func() bool { return second.calls.Load() > 0 })
	if first.tears.Load() != 1 {
		t.Fatal("old instance not torn down")
	}
}

// TestSnapshotSerialization checks the diagnostic snapshot shape.
func TestSnapshotSerialization(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "src", "probe.Continuous", `{"emit":true}`)
	env.addNode(t, "dst", "probe.Reactive", "")
	env.connect(t, link.Addr("src", "out"), link.Addr("dst", "in"))
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}

	snap, err := env.exec.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"graph", "metadata", "processors", "links", "needs_recompile"} {
		if _, ok := decoded[field]; !ok {
			t.Fatalf("snapshot missing %q", field)
		}
	}
	if len(snap.Processors) != 2 || len(snap.Links) != 1 {
		t.Fatalf("snapshot contents: %d processors, %d links", len(snap.Processors), len(snap.Links))
	}
	if snap.NeedsRecompile {
		t.Fatal("snapshot reports pending recompile after sync")
	}
}

// TestDisconnectSafety: after unwiring, frames pushed by the source no
// longer reach the old consumer.
func TestDisconnectSafety(t *testing.T) {
	env := newTestEnv(t)

	env.addNode(t, "src", "probe.Continuous", `{"emit":true,"handle_name":"dis_src"}`)
	env.addNode(t, "dst", "probe.Reactive", `{"handle_name":"dis_dst"}`)
	id := env.connect(t, link.Addr("src", "out"), link.Addr("dst", "in"))
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}
	if err := env.exec.Start(); err != nil {
		t.Fatal(err)
	}
	defer env.exec.Stop()

	dst := handle(t, "dis_dst")
	waitFor(t, "delivery", func() bool { return len(dst.values()) > 0 })

	env.gmu.Lock()
	_ = env.g.RemoveLink(id)
	env.gmu.Unlock()
	if err := env.exec.SyncToGraph(); err != nil {
		t.Fatal(err)
	}

	// Drain anything processed mid-disconnect, then verify silence.
	time.Sleep(20 * time.Millisecond)
	n := len(dst.values())
	time.Sleep(50 * time.Millisecond)
	if got := len(dst.values()); got != n {
		t.Fatalf("frames still arriving after disconnect: %d -> %d", n, got)
	}
	if env.exec.Status().LinkCount != 0 {
		t.Fatalf("link count after disconnect: %d", env.exec.Status().LinkCount)
	}
}
