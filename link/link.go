// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package link provides the typed port-and-link transport fabric: port
// endpoints, disconnected plugs, producer/consumer handles over ring
// buffers, and the wakeup channel that drives Reactive processors.
//
// Ownership flows one way: a link owns its ring buffer, ports borrow
// endpoint handles, and the buffer never references the ports back.
// Wakeups travel through a separate channel whose sender is
// independently shareable, so there are no cyclic references between
// ports and links.
package link

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrLinkExists indicates a port already holds an endpoint with the
	// given link ID.
	ErrLinkExists = errors.New("link already exists")
	// ErrLinkNotFound indicates no endpoint with the given link ID is
	// installed on the port.
	ErrLinkNotFound = errors.New("link not found")
	// ErrEndpointType indicates a type-erased endpoint handle did not
	// match the port's element type.
	ErrEndpointType = errors.New("endpoint type mismatch")
)

// ID is the globally unique identity of a link. It is stable for the
// link's lifetime; recreating the same logical connection always yields
// a new ID.
type ID string

// NewID generates a fresh link ID.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string { return string(id) }

// PortAddress identifies a port as (processor id, port name).
type PortAddress struct {
	Processor string `json:"processor"`
	Port      string `json:"port"`
}

// Addr builds a port address.
func Addr(processor, port string) PortAddress {
	return PortAddress{Processor: processor, Port: port}
}

// ParseAddr parses a "processor.port" reference. The port name is the
// segment after the last dot, so processor ids may themselves contain
// dots.
func ParseAddr(ref string) (PortAddress, error) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return PortAddress{}, fmt.Errorf("invalid port reference %q: want \"processor.port\"", ref)
	}
	return PortAddress{Processor: ref[:i], Port: ref[i+1:]}, nil
}

// String returns the full "processor.port" address.
func (a PortAddress) String() string {
	return a.Processor + "." + a.Port
}

// ReadMode selects how a consumer endpoint drains its ring buffer.
// It is fixed per schema: every reader of a link honors the schema's
// consumption strategy.
type ReadMode uint8

const (
	// ReadLatest consumes every available element and yields only the
	// newest. Late readers skip to the most recent item (video).
	ReadLatest ReadMode = iota
	// ReadSequential yields every element in FIFO order (audio, data).
	ReadSequential
)

func (m ReadMode) String() string {
	switch m {
	case ReadLatest:
		return "latest"
	case ReadSequential:
		return "sequential"
	}
	return fmt.Sprintf("readmode(%d)", uint8(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m ReadMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ReadMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "latest":
		*m = ReadLatest
	case "sequential":
		*m = ReadSequential
	default:
		return fmt.Errorf("unknown read mode %q", text)
	}
	return nil
}
