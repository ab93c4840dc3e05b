// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package processor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotFound indicates the processor type is unknown to the
	// registry, or is registered descriptor-only and cannot be
	// instantiated in this process.
	ErrNotFound = errors.New("processor type not found")
	// ErrEmptyRegistry indicates the registry holds no processor types
	// at runtime start: the caller linked no processor packages.
	ErrEmptyRegistry = errors.New("processor registry is empty")
)

// Factory constructs a processor instance from its deserialized config
// blob. A nil config selects the type's defaults.
type Factory func(config []byte) (Processor, error)

// Registration pairs a descriptor with its constructor. A nil New marks
// a descriptor-only registration: the processor's body lives outside
// this process (subprocess processors) and instantiation fails with
// ErrNotFound.
type Registration struct {
	Descriptor Descriptor
	New        Factory
}

// Registry is the factory registry mapping processor type names to
// registrations. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Registration
}

// NewRegistry creates an empty registry. Most callers use the process
// global one via Default.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Registration)}
}

// global is the process-wide registry. Processor packages self-register
// from their init functions — the Go analogue of a linker-collected
// registration list — so the catalogue is complete before main runs.
var global = NewRegistry()

// Default returns the process-global registry.
func Default() *Registry { return global }

// Register installs a processor type. Duplicate registration of the
// same type name is a no-op, not an error, so packages may register
// eagerly without coordination.
func (r *Registry) Register(reg Registration) {
	name := reg.Descriptor.Name
	if name == "" {
		log.Warn("ignoring processor registration with empty type name")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[name]; ok {
		return
	}
	c := reg
	r.types[name] = &c
	log.WithField("type", name).Debug("registered processor type")
}

// RegisterDescriptorOnly installs metadata without a constructor, for
// processors whose body lives outside the process.
func (r *Registry) RegisterDescriptorOnly(desc Descriptor) {
	r.Register(Registration{Descriptor: desc})
}

// Create instantiates the named processor type from a config blob.
func (r *Registry) Create(typeName string, config []byte) (Processor, error) {
	r.mu.RLock()
	reg, ok := r.types[typeName]
	r.mu.RUnlock()
	if !ok || reg.New == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, typeName)
	}

	p, err := reg.New(config)
	if err != nil {
		return nil, fmt.Errorf("constructing processor type %s: %w", typeName, err)
	}
	return p, nil
}

// Descriptor returns the descriptor of the named type.
func (r *Registry) Descriptor(typeName string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[typeName]
	if !ok {
		return Descriptor{}, false
	}
	return reg.Descriptor, true
}

// Contains reports whether the type name is registered (with or without
// a constructor).
func (r *Registry) Contains(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[typeName]
	return ok
}

// List returns the descriptors of all registered types, ordered by
// name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.types))
	for _, reg := range r.types {
		out = append(out, reg.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}
