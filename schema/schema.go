// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema provides the frame schema catalogue: named, versioned
// frame descriptors, each paired with a typed factory that builds the
// matched producer/consumer endpoint pair for one link.
package schema

import (
	"fmt"

	"github.com/tatolab/streamlib-sub002/link"
)

// Primitive is the wire primitive of a non-internal field, used for
// byte-size calculations by external tooling.
type Primitive string

const (
	PrimitiveU8  Primitive = "u8"
	PrimitiveU16 Primitive = "u16"
	PrimitiveU32 Primitive = "u32"
	PrimitiveU64 Primitive = "u64"
	PrimitiveI32 Primitive = "i32"
	PrimitiveI64 Primitive = "i64"
	PrimitiveF32 Primitive = "f32"
	PrimitiveF64 Primitive = "f64"
)

// Field describes one field of a frame schema.
type Field struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TypeName    string `json:"type_name"`
	// Shape is the tensor shape for array fields; empty for scalars.
	Shape []int `json:"shape,omitempty"`
	// Internal marks fields that exist in memory but are never
	// serialized across process boundaries.
	Internal  bool      `json:"internal,omitempty"`
	Primitive Primitive `json:"primitive,omitempty"`
}

// Version is a semantic schema version. Two schemas with the same name
// are compatible iff their major versions match.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// V builds a version.
func V(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Entry is one registered schema.
type Entry struct {
	Name    string
	Version Version
	Fields  []Field
	// ReadMode is the schema's consumption strategy; every reader of a
	// link carrying this schema honors it.
	ReadMode link.ReadMode
	// DefaultCapacity is the ring-buffer capacity used when a link is
	// created without an explicit override.
	DefaultCapacity int
	// MultiSource permits more than one input-side link endpoint on a
	// single port (mixers). Default forbids fan-in.
	MultiSource bool

	// newEndpoints builds the typed producer/consumer pair for one
	// link. Nil for descriptor-only schemas registered on behalf of
	// out-of-process peers.
	newEndpoints func(capacity int) link.Endpoints
}

// CompatibleWith reports whether frames of this schema may flow into a
// port declared with other: same name, matching major version.
func (e *Entry) CompatibleWith(other *Entry) bool {
	if e.Name != other.Name {
		return false
	}
	return e.Version.Major == other.Version.Major
}

// CanCreateLinks reports whether the entry carries a typed link factory.
func (e *Entry) CanCreateLinks() bool { return e.newEndpoints != nil }

// Descriptor is the serializable projection of an Entry for API output.
type Descriptor struct {
	Name            string        `json:"name"`
	Version         Version       `json:"version"`
	Fields          []Field       `json:"fields"`
	ReadMode        link.ReadMode `json:"read_mode"`
	DefaultCapacity int           `json:"default_capacity"`
	MultiSource     bool          `json:"multi_source,omitempty"`
}

// Descriptor returns the serializable projection of the entry.
func (e *Entry) Descriptor() Descriptor {
	return Descriptor{
		Name:            e.Name,
		Version:         e.Version,
		Fields:          e.Fields,
		ReadMode:        e.ReadMode,
		DefaultCapacity: e.DefaultCapacity,
		MultiSource:     e.MultiSource,
	}
}
