// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package link_test

import (
	"sync"
	"testing"
	"time"

	"github.com/tatolab/streamlib-sub002/link"
)

// TestWakeupCoalescing verifies that many queued events collapse into a
// single drained set.
func TestWakeupCoalescing(t *testing.T) {
	w := link.NewWakeup()
	s := w.Sender()

	for range 100 {
		s.Notify(link.WakeupDataAvailable)
	}

	set := w.Wait()
	if !set.Has(link.WakeupDataAvailable) {
		t.Fatal("missing DataAvailable")
	}

	// Everything was coalesced; nothing further is pending.
	if set := w.TryDrain(); !set.Empty() {
		t.Fatalf("residual events after drain: %v", set)
	}
}

// TestWakeupShutdownSticky verifies Shutdown survives ring overflow and
// is reported by every subsequent drain.
func TestWakeupShutdownSticky(t *testing.T) {
	w := link.NewWakeup()
	s := w.Sender()

	// Flood the ring, then deliver Shutdown.
	for range 1000 {
		s.Notify(link.WakeupDataAvailable)
	}
	s.Notify(link.WakeupShutdown)

	set := w.Wait()
	if !set.Has(link.WakeupShutdown) {
		t.Fatal("Shutdown lost under ring overflow")
	}
	if set := w.TryDrain(); !set.Has(link.WakeupShutdown) {
		t.Fatal("Shutdown is not sticky")
	}
}

// TestWakeupBlocksUntilNotify verifies Wait parks the consumer until a
// producer rings.
func TestWakeupBlocksUntilNotify(t *testing.T) {
	w := link.NewWakeup()

	woke := make(chan link.WakeSet, 1)
	go func() {
		woke <- w.Wait()
	}()

	select {
	case <-woke:
		t.Fatal("Wait returned before any notify")
	case <-time.After(20 * time.Millisecond):
	}

	w.Sender().Notify(link.WakeupConfigChanged)

	select {
	case set := <-woke:
		if !set.Has(link.WakeupConfigChanged) {
			t.Fatalf("missing ConfigChanged: %v", set)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake after notify")
	}
}

// TestWakeupConcurrentProducers exercises the multi-producer path.
func TestWakeupConcurrentProducers(t *testing.T) {
	w := link.NewWakeup()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := w.Sender()
			for range 1000 {
				s.Notify(link.WakeupDataAvailable)
			}
		}()
	}
	wg.Wait()

	if set := w.TryDrain(); !set.Has(link.WakeupDataAvailable) {
		t.Fatal("missing DataAvailable after concurrent producers")
	}
}

// TestZeroSenderIsNoop verifies the plug sender swallows notifies.
func TestZeroSenderIsNoop(t *testing.T) {
	var s link.WakeupSender
	if s.Valid() {
		t.Fatal("zero sender reports valid")
	}
	s.Notify(link.WakeupDataAvailable) // must not panic
}
