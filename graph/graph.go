// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package graph holds the mutable pipeline topology: processor nodes,
// link descriptors, per-node configs, and an incrementally maintained
// checksum. A Graph is pure data — it never references worker
// goroutines or ring buffers, and it performs no locking of its own;
// the runtime facade guards it with a read-write lock.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/processor"
	"github.com/tatolab/streamlib-sub002/schema"
)

var (
	// ErrNodeExists indicates an id collision on add.
	ErrNodeExists = errors.New("processor node already exists")
	// ErrNodeNotFound indicates an unknown processor id.
	ErrNodeNotFound = errors.New("processor node not found")
	// ErrLinkNotFound indicates an unknown link id.
	ErrLinkNotFound = errors.New("link not found")
	// ErrPortNotFound indicates a port name absent from the node's
	// descriptor.
	ErrPortNotFound = errors.New("port not found")
	// ErrSchemaIncompatible indicates a connect across incompatible
	// schemas.
	ErrSchemaIncompatible = errors.New("incompatible schemas")
	// ErrFanIn indicates a second input-side endpoint on a port whose
	// schema forbids multi-source fan-in.
	ErrFanIn = errors.New("input port already connected")
)

// Node is the graph-level record of one processor.
type Node struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
	// Inputs and Outputs are the port specs captured from the type's
	// descriptor when the node was added.
	Inputs  []processor.PortSpec `json:"inputs,omitempty"`
	Outputs []processor.PortSpec `json:"outputs,omitempty"`
}

// LinkDesc is the graph-level record of one link.
type LinkDesc struct {
	ID       link.ID          `json:"id"`
	From     link.PortAddress `json:"from"`
	To       link.PortAddress `json:"to"`
	Schema   string           `json:"schema"`
	Capacity int              `json:"capacity"`
}

// Graph is the mutable topology.
type Graph struct {
	nodes    map[string]*Node
	links    map[link.ID]*LinkDesc
	checksum uint64
	seq      map[string]int

	registry *processor.Registry
	schemas  *schema.Registry
}

// New creates an empty graph validating against the process-global
// processor and schema registries.
func New() *Graph {
	return NewWithRegistries(processor.Default(), schema.Default())
}

// NewWithRegistries creates an empty graph validating against explicit
// registries. Tests use this to avoid sharing global state.
func NewWithRegistries(reg *processor.Registry, schemas *schema.Registry) *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		links:    make(map[link.ID]*LinkDesc),
		seq:      make(map[string]int),
		registry: reg,
		schemas:  schemas,
	}
}

// AddNode adds a processor node with a canonical generated id.
// The type must be registered; its port specs are captured from the
// descriptor.
func (g *Graph) AddNode(typeName string, config json.RawMessage) (*Node, error) {
	base := canonicalBase(typeName)
	for {
		g.seq[base]++
		id := fmt.Sprintf("%s_%d", base, g.seq[base]-1)
		if _, taken := g.nodes[id]; taken {
			continue
		}
		return g.AddNodeWithID(id, typeName, config)
	}
}

// AddNodeWithID adds a processor node under an explicit id, as used by
// graph file loading.
func (g *Graph) AddNodeWithID(id, typeName string, config json.RawMessage) (*Node, error) {
	if _, taken := g.nodes[id]; taken {
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, id)
	}
	desc, ok := g.registry.Descriptor(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", processor.ErrNotFound, typeName)
	}

	n := &Node{
		ID:      id,
		Type:    typeName,
		Config:  config,
		Inputs:  desc.Inputs,
		Outputs: desc.Outputs,
	}
	g.nodes[id] = n
	g.checksum ^= nodeHash(n)
	return n, nil
}

// AddLink connects an output port to an input port, validating that
// both ports exist, their schemas are compatible, and the destination's
// fan-in constraint holds. The new link gets a fresh globally unique id
// and the schema's default ring capacity.
func (g *Graph) AddLink(from, to link.PortAddress) (*LinkDesc, error) {
	return g.AddLinkWithCapacity(from, to, 0)
}

// AddLinkWithCapacity is AddLink with an explicit ring-buffer capacity;
// capacity <= 0 selects the schema default.
func (g *Graph) AddLinkWithCapacity(from, to link.PortAddress, capacity int) (*LinkDesc, error) {
	fromNode, ok := g.nodes[from.Processor]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, from.Processor)
	}
	toNode, ok := g.nodes[to.Processor]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, to.Processor)
	}

	var fromSpec, toSpec processor.PortSpec
	found := false
	for _, p := range fromNode.Outputs {
		if p.Name == from.Port {
			fromSpec, found = p, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: output %s", ErrPortNotFound, from)
	}
	found = false
	for _, p := range toNode.Inputs {
		if p.Name == to.Port {
			toSpec, found = p, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: input %s", ErrPortNotFound, to)
	}

	if !g.schemas.Compatible(fromSpec.Schema, toSpec.Schema) {
		return nil, fmt.Errorf("%w: %s (%s) -> %s (%s)",
			ErrSchemaIncompatible, from, fromSpec.Schema, to, toSpec.Schema)
	}

	// Output side is always fan-out capable; the input side admits a
	// second endpoint only when the schema allows multi-source.
	for _, l := range g.links {
		if l.To == to {
			entry, _ := g.schemas.Get(toSpec.Schema)
			if entry == nil || !entry.MultiSource {
				return nil, fmt.Errorf("%w: %s", ErrFanIn, to)
			}
		}
	}

	if capacity <= 0 {
		capacity = g.schemas.DefaultCapacity(fromSpec.Schema)
	}
	l := &LinkDesc{
		ID:       link.NewID(),
		From:     from,
		To:       to,
		Schema:   fromSpec.Schema,
		Capacity: capacity,
	}
	g.links[l.ID] = l
	g.checksum ^= linkHash(l)
	return l, nil
}

// RemoveLink removes a link by id.
func (g *Graph) RemoveLink(id link.ID) error {
	l, ok := g.links[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrLinkNotFound, id)
	}
	delete(g.links, id)
	g.checksum ^= linkHash(l)
	return nil
}

// RemoveNode removes a processor node and every link touching it.
func (g *Graph) RemoveNode(id string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	for lid, l := range g.links {
		if l.From.Processor == id || l.To.Processor == id {
			delete(g.links, lid)
			g.checksum ^= linkHash(l)
		}
	}
	delete(g.nodes, id)
	g.checksum ^= nodeHash(n)
	return nil
}

// UpdateConfig replaces a node's config blob.
func (g *Graph) UpdateConfig(id string, config json.RawMessage) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	g.checksum ^= nodeHash(n)
	n.Config = config
	g.checksum ^= nodeHash(n)
	return nil
}

// Checksum returns the 64-bit topology checksum. Constant time: the
// value is maintained incrementally on every mutation.
func (g *Graph) Checksum() uint64 { return g.checksum }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Link returns the link with the given id.
func (g *Graph) Link(id link.ID) (*LinkDesc, bool) {
	l, ok := g.links[id]
	return l, ok
}

// Nodes returns all nodes ordered by id.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Links returns all links ordered by id.
func (g *Graph) Links() []*LinkDesc {
	out := make([]*LinkDesc, 0, len(g.links))
	for _, l := range g.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// LinkCount returns the number of links.
func (g *Graph) LinkCount() int { return len(g.links) }

// MarshalJSON serializes the topology for diagnostics.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Nodes    []*Node     `json:"nodes"`
		Links    []*LinkDesc `json:"links"`
		Checksum uint64      `json:"checksum"`
	}{g.Nodes(), g.Links(), g.checksum})
}

// canonicalBase derives the id prefix from a type name:
// "streamlib.CounterSource" becomes "counter_source".
func canonicalBase(typeName string) string {
	if i := strings.LastIndex(typeName, "."); i >= 0 {
		typeName = typeName[i+1:]
	}
	var b strings.Builder
	for i, r := range typeName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "processor"
	}
	return b.String()
}
