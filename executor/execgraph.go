// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"encoding/json"
	"time"

	"github.com/tatolab/streamlib-sub002/graph"
	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/processor"
)

// compilationMetadata records when and against which graph state the
// execution graph was last compiled.
type compilationMetadata struct {
	compiledAt     time.Time
	sourceChecksum uint64
}

func newCompilationMetadata(sourceChecksum uint64) compilationMetadata {
	return compilationMetadata{
		compiledAt:     time.Now(),
		sourceChecksum: sourceChecksum,
	}
}

func (m compilationMetadata) elapsed() time.Duration {
	return time.Since(m.compiledAt)
}

// MarshalJSON serializes elapsed time since compilation; the wall
// instant itself is not meaningful across processes.
func (m compilationMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ElapsedMS      int64  `json:"elapsed_ms"`
		SourceChecksum uint64 `json:"source_checksum"`
	}{m.elapsed().Milliseconds(), m.sourceChecksum})
}

// executionGraph layers per-node and per-link runtime state over a
// graph snapshot. It never mutates the Graph; it only observes it.
// Runtime state lives in parallel maps keyed by the same ids the Graph
// uses.
type executionGraph struct {
	meta  compilationMetadata
	procs map[string]*runningProcessor
	links map[link.ID]*wiredLink
}

func newExecutionGraph(sourceChecksum uint64) *executionGraph {
	return &executionGraph{
		meta:  newCompilationMetadata(sourceChecksum),
		procs: make(map[string]*runningProcessor),
		links: make(map[link.ID]*wiredLink),
	}
}

// processorSnapshot is the serialized runtime state of one node.
type processorSnapshot struct {
	Type      string              `json:"type"`
	State     State               `json:"state"`
	Execution processor.Execution `json:"execution"`
}

// linkSnapshot is the serialized runtime state of one link.
type linkSnapshot struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Schema   string `json:"schema"`
	Capacity int    `json:"capacity"`
}

// Snapshot is a complete serializable view of the execution state, for
// diagnostics, testing assertions, and visualization.
type Snapshot struct {
	Graph          json.RawMessage              `json:"graph"`
	Metadata       json.RawMessage              `json:"metadata"`
	Processors     map[string]processorSnapshot `json:"processors"`
	Links          map[string]linkSnapshot      `json:"links"`
	NeedsRecompile bool                         `json:"needs_recompile"`
}

// snapshot captures the execution graph alongside its source Graph.
// Caller holds the executor mutex; the graph read lock is taken here.
func (eg *executionGraph) snapshot(g *graph.Graph, lock rLocker, needsRecompile bool) (Snapshot, error) {
	lock.RLock()
	graphJSON, err := json.Marshal(g)
	lock.RUnlock()
	if err != nil {
		return Snapshot{}, err
	}

	metaJSON, err := json.Marshal(eg.meta)
	if err != nil {
		return Snapshot{}, err
	}

	procs := make(map[string]processorSnapshot, len(eg.procs))
	for id, rp := range eg.procs {
		procs[id] = processorSnapshot{
			Type:      rp.typeName,
			State:     rp.currentState(),
			Execution: rp.exec,
		}
	}
	links := make(map[string]linkSnapshot, len(eg.links))
	for id, wl := range eg.links {
		links[string(id)] = linkSnapshot{
			From:     wl.desc.From.String(),
			To:       wl.desc.To.String(),
			Schema:   wl.desc.Schema,
			Capacity: wl.desc.Capacity,
		}
	}

	return Snapshot{
		Graph:          graphJSON,
		Metadata:       metaJSON,
		Processors:     procs,
		Links:          links,
		NeedsRecompile: needsRecompile,
	}, nil
}

// rLocker is the read side of the graph lock.
type rLocker interface {
	RLock()
	RUnlock()
}
