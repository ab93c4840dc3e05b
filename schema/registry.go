// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/tatolab/streamlib-sub002/link"
)

var (
	// ErrAlreadyRegistered indicates a schema with the same name exists.
	// Schema names are unique within one runtime instance.
	ErrAlreadyRegistered = errors.New("schema already registered")
	// ErrNotFound indicates the named schema is not in the registry.
	ErrNotFound = errors.New("schema not found")
	// ErrNoLinkFactory indicates a descriptor-only schema was asked to
	// create link endpoints.
	ErrNoLinkFactory = errors.New("schema does not support link creation")
)

// fallbackCapacity is used when a link references an unknown schema and
// no explicit capacity was given.
const fallbackCapacity = 16

// Registry is a name-keyed schema catalogue. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Entry
}

// NewRegistry creates an empty registry. Most callers use the process
// global one via Default.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Entry)}
}

// global is the process-wide registry. Schema packages self-register
// from their init functions, so the catalogue is complete before main
// runs.
var global = NewRegistry()

// Default returns the process-global registry.
func Default() *Registry { return global }

// Register installs a schema whose frames are values of type T, wiring
// a typed link factory that builds the matched producer/consumer pair.
// Registration of an already-present name fails.
func Register[T any](r *Registry, entry Entry) error {
	entry.newEndpoints = func(capacity int) link.Endpoints {
		return link.NewEndpoints[T](capacity, entry.ReadMode)
	}
	return r.register(&entry)
}

// RegisterDescriptorOnly installs schema metadata without a link
// factory, for schemas whose frames never materialize in this process.
func (r *Registry) RegisterDescriptorOnly(entry Entry) error {
	entry.newEndpoints = nil
	return r.register(&entry)
}

func (r *Registry) register(entry *Entry) error {
	if entry.Name == "" {
		return errors.New("schema name must not be empty")
	}
	if entry.DefaultCapacity <= 0 {
		entry.DefaultCapacity = fallbackCapacity
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[entry.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, entry.Name)
	}
	r.schemas[entry.Name] = entry
	log.WithFields(log.Fields{
		"schema":  entry.Name,
		"version": entry.Version.String(),
	}).Debug("registered schema")
	return nil
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.schemas[name]
	return e, ok
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Compatible reports whether two schemas, by name, may be linked.
// Unknown names are never compatible.
func (r *Registry) Compatible(a, b string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ea, oka := r.schemas[a]
	eb, okb := r.schemas[b]
	if !oka || !okb {
		return false
	}
	return ea.CompatibleWith(eb)
}

// DefaultCapacity returns the schema's default ring-buffer capacity, or
// the fallback for unknown schemas.
func (r *Registry) DefaultCapacity(name string) int {
	if e, ok := r.Get(name); ok {
		return e.DefaultCapacity
	}
	return fallbackCapacity
}

// NewEndpoints builds one link's producer/consumer endpoint pair for the
// named schema. capacity <= 0 selects the schema default.
func (r *Registry) NewEndpoints(name string, capacity int) (link.Endpoints, error) {
	e, ok := r.Get(name)
	if !ok {
		return link.Endpoints{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if e.newEndpoints == nil {
		return link.Endpoints{}, fmt.Errorf("%w: %s", ErrNoLinkFactory, name)
	}
	if capacity <= 0 {
		capacity = e.DefaultCapacity
	}
	return e.newEndpoints(capacity), nil
}

// List returns all entries ordered by name.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.schemas))
	for _, e := range r.schemas {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Descriptors returns serializable projections of all entries, ordered
// by name.
func (r *Registry) Descriptors() []Descriptor {
	entries := r.List()
	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Descriptor())
	}
	return out
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}
