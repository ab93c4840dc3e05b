// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema_test

import (
	"errors"
	"testing"

	"github.com/go-test/deep"

	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/schema"
)

type testFrame struct {
	Seq int
}

func TestRegisterAndGet(t *testing.T) {
	r := schema.NewRegistry()

	err := schema.Register[testFrame](r, schema.Entry{
		Name:    "TestFrame",
		Version: schema.V(1, 2, 0),
		Fields: []schema.Field{
			{Name: "seq", TypeName: "int", Primitive: schema.PrimitiveI64},
		},
		ReadMode:        link.ReadSequential,
		DefaultCapacity: 8,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	e, ok := r.Get("TestFrame")
	if !ok {
		t.Fatal("Get: not found")
	}
	if e.Version.String() != "1.2.0" {
		t.Fatalf("version: got %s", e.Version)
	}
	if !e.CanCreateLinks() {
		t.Fatal("typed registration should carry a link factory")
	}

	want := schema.Descriptor{
		Name:            "TestFrame",
		Version:         schema.V(1, 2, 0),
		Fields:          e.Fields,
		ReadMode:        link.ReadSequential,
		DefaultCapacity: 8,
	}
	if diff := deep.Equal(e.Descriptor(), want); diff != nil {
		t.Fatalf("descriptor mismatch: %v", diff)
	}
}

// TestDuplicateRegistrationFails: schema names are unique per runtime.
func TestDuplicateRegistrationFails(t *testing.T) {
	r := schema.NewRegistry()

	entry := schema.Entry{Name: "Dup", Version: schema.V(1, 0, 0), DefaultCapacity: 4}
	if err := schema.Register[testFrame](r, entry); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := schema.Register[testFrame](r, entry); !errors.Is(err, schema.ErrAlreadyRegistered) {
		t.Fatalf("second Register: got %v, want ErrAlreadyRegistered", err)
	}
}

// TestCompatibility: same name and major version compatible, otherwise
// not; unknown names never compatible.
func TestCompatibility(t *testing.T) {
	r := schema.NewRegistry()

	if err := schema.Register[testFrame](r, schema.Entry{Name: "A", Version: schema.V(1, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := schema.Register[testFrame](r, schema.Entry{Name: "B", Version: schema.V(2, 0, 0)}); err != nil {
		t.Fatal(err)
	}

	if !r.Compatible("A", "A") {
		t.Fatal("A should be compatible with itself")
	}
	if r.Compatible("A", "B") {
		t.Fatal("different names must not be compatible")
	}
	if r.Compatible("A", "Missing") {
		t.Fatal("unknown schema must not be compatible")
	}

	a, _ := r.Get("A")
	b, _ := r.Get("B")
	if a.CompatibleWith(b) {
		t.Fatal("CompatibleWith across names")
	}

	// Same name, different major: build entries directly.
	v1 := &schema.Entry{Name: "S", Version: schema.V(1, 3, 0)}
	v1b := &schema.Entry{Name: "S", Version: schema.V(1, 9, 9)}
	v2 := &schema.Entry{Name: "S", Version: schema.V(2, 0, 0)}
	if !v1.CompatibleWith(v1b) {
		t.Fatal("same major should be compatible")
	}
	if v1.CompatibleWith(v2) {
		t.Fatal("major bump should be incompatible")
	}
}

// TestDescriptorOnlySchema verifies metadata-only registration refuses
// link creation.
func TestDescriptorOnlySchema(t *testing.T) {
	r := schema.NewRegistry()

	err := r.RegisterDescriptorOnly(schema.Entry{
		Name:            "RemoteFrame",
		Version:         schema.V(1, 0, 0),
		DefaultCapacity: 4,
	})
	if err != nil {
		t.Fatalf("RegisterDescriptorOnly: %v", err)
	}

	e, _ := r.Get("RemoteFrame")
	if e.CanCreateLinks() {
		t.Fatal("descriptor-only schema should not create links")
	}
	if _, err := r.NewEndpoints("RemoteFrame", 0); !errors.Is(err, schema.ErrNoLinkFactory) {
		t.Fatalf("NewEndpoints: got %v, want ErrNoLinkFactory", err)
	}
}

// TestNewEndpoints builds a working producer/consumer pair with the
// schema's read mode and default capacity.
func TestNewEndpoints(t *testing.T) {
	r := schema.NewRegistry()

	if err := schema.Register[testFrame](r, schema.Entry{
		Name:            "EP",
		Version:         schema.V(1, 0, 0),
		ReadMode:        link.ReadLatest,
		DefaultCapacity: 3, // rounds to 4
	}); err != nil {
		t.Fatal(err)
	}

	eps, err := r.NewEndpoints("EP", 0)
	if err != nil {
		t.Fatalf("NewEndpoints: %v", err)
	}
	if eps.Capacity != 4 {
		t.Fatalf("capacity: got %d, want 4", eps.Capacity)
	}

	p, ok := eps.Producer.(*link.Producer[testFrame])
	if !ok {
		t.Fatalf("producer type: %T", eps.Producer)
	}
	c, ok := eps.Consumer.(*link.Consumer[testFrame])
	if !ok {
		t.Fatalf("consumer type: %T", eps.Consumer)
	}
	if c.Mode() != link.ReadLatest {
		t.Fatalf("consumer mode: got %v, want latest", c.Mode())
	}

	for i := range 3 {
		f := testFrame{Seq: i}
		if err := p.Push(&f); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	got, ok := c.Read()
	if !ok || got.Seq != 2 {
		t.Fatalf("latest Read: got (%+v, %v)", got, ok)
	}

	if _, err := r.NewEndpoints("Missing", 0); !errors.Is(err, schema.ErrNotFound) {
		t.Fatalf("unknown schema: got %v, want ErrNotFound", err)
	}
}

func TestDefaultCapacityFallback(t *testing.T) {
	r := schema.NewRegistry()
	if got := r.DefaultCapacity("Unknown"); got != 16 {
		t.Fatalf("fallback capacity: got %d, want 16", got)
	}
}
