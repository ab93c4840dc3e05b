// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package streamlib is a modular real-time stream processing runtime:
// a dataflow engine that wires independent processors into a directed
// graph and executes them concurrently, with low-latency, low-copy
// transfer of typed frames between them.
//
// # Quick Start
//
//	rt := streamlib.New()
//
//	src, _ := rt.AddProcessor("streamlib.CounterSource", nil)
//	dbl, _ := rt.AddProcessor("streamlib.Doubler", nil)
//	sink, _ := rt.AddProcessor("streamlib.CollectorSink", nil)
//
//	rt.Connect(src.ID+".out", dbl.ID+".in")
//	rt.Connect(dbl.ID+".out", sink.ID+".in")
//
//	rt.Start()
//	rt.BlockUntilSignal()
//	rt.Stop()
//
// # Architecture
//
// The runtime separates topology from execution. The Graph is pure
// data: nodes, links, configs, and a 64-bit checksum maintained
// incrementally on every mutation. The executor compiles a Graph
// snapshot into an execution graph — one worker goroutine per node,
// one ring buffer per link — and reconciles it to the Graph on every
// commit. Whether a recompile is pending is simply "current checksum
// differs from the checksum captured at compile time".
//
// # Commit Modes
//
// In Auto mode (the default) every mutation is followed by an
// immediate compile step. In Manual mode mutations accumulate until an
// explicit Commit:
//
//	rt := streamlib.New(streamlib.WithCommitMode(streamlib.CommitManual))
//	rt.AddProcessor("streamlib.CounterSource", nil)
//	rt.AddProcessor("streamlib.CollectorSink", nil)
//	// Executor still empty here.
//	rt.Commit()
//
// A commit is transactional: either the full diff applies or the
// executor is left unchanged.
//
// # Execution Policies
//
// Each processor declares one of three policies in its descriptor:
//
//	Continuous  Process runs in a dedicated loop, optionally with a
//	            minimum interval between invocations.
//	Reactive    Process runs exactly once per wakeup when upstream
//	            data arrives; queued wakeups coalesce.
//	Manual      Process runs once for initialization, then the
//	            processor drives itself from callbacks.
//
// # Transport
//
// Frames travel through links: one bounded single-producer
// single-consumer ring buffer per link, plus a wakeup channel to the
// destination worker. Producers never block — on a full buffer the
// frame is dropped for that link only, counted, and logged once at
// debug level. Video schemas use the Latest consumption strategy (late
// readers skip to the newest frame); audio and data use Sequential.
// A port with no connection holds a disconnected plug that swallows
// writes and starves reads silently, so processor code never checks
// connectivity.
//
// # Events
//
// Control-plane observability runs on a topic-addressed
// fire-and-forget event bus, never on links. Every mutation and
// lifecycle transition publishes to the runtime:global topic;
// per-processor events go to processor:<id>. Delivery is best-effort:
// busy listeners miss events, and late subscribers do not see the
// past.
//
// # Processors
//
// A processor type registers a descriptor (name, ports, schemas,
// execution policy) and a constructor with the factory registry,
// usually from its package's init function. The runtime calls Setup
// once, Process per its policy, and Teardown on stop; a Process error
// or panic stops that node only and is announced as a ProcessorFailed
// event while the rest of the pipeline keeps running.
package streamlib
