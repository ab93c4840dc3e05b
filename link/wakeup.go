// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package link

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// WakeupEvent is an enumerated signal delivered to a processor's worker.
type WakeupEvent uint8

const (
	// WakeupDataAvailable signals that an upstream push landed in one of
	// the processor's input links.
	WakeupDataAvailable WakeupEvent = iota
	// WakeupConfigChanged signals that the processor's configuration was
	// replaced during a commit.
	WakeupConfigChanged
	// WakeupShutdown signals that the worker must exit its loop.
	WakeupShutdown
)

// WakeSet is the coalesced result of draining a wakeup channel.
// Multiple queued events of the same kind collapse into a single bit,
// which is what gives Reactive processors their once-per-wake contract.
type WakeSet uint8

const (
	wakeData WakeSet = 1 << iota
	wakeConfig
	wakeShutdown
)

// Has reports whether the set contains the given event kind.
func (s WakeSet) Has(ev WakeupEvent) bool {
	switch ev {
	case WakeupDataAvailable:
		return s&wakeData != 0
	case WakeupConfigChanged:
		return s&wakeConfig != 0
	case WakeupShutdown:
		return s&wakeShutdown != 0
	}
	return false
}

// Empty reports whether no events were drained. Consumers must treat an
// empty set as a spurious wake and simply wait again.
func (s WakeSet) Empty() bool { return s == 0 }

// wakeupRingCapacity bounds the event ring. Events beyond it are dropped:
// a full ring already guarantees a pending wake, and kinds coalesce.
const wakeupRingCapacity = 16

// wakeupSlot is one cycle-tagged slot of the FAA ring.
type wakeupSlot struct {
	cycle atomix.Uint64 // Round number
	event WakeupEvent
	_     [64 - 8 - 1]byte
}

// Wakeup is the small bounded multi-producer single-consumer channel that
// drives a processor's worker out of sleep.
//
// Producers (output-port push sites, the executor) call Notify from any
// goroutine. Exactly one worker goroutine calls Wait/TryDrain.
//
// The payload ring is an FAA-based MPSC queue: producers blindly claim
// positions with fetch-add (SCQ-style), requiring 2n physical slots for
// capacity n. A one-slot doorbell channel provides the blocking edge;
// wakes may therefore be spurious and may coalesce, and consumers must
// check every input port on every wake.
//
// Shutdown is sticky: once delivered it is reported by every subsequent
// drain, so it can never be lost to ring overflow.
type Wakeup struct {
	_        pad
	head     atomix.Uint64 // Consumer index
	_        pad
	tail     atomix.Uint64 // Producer index (FAA)
	_        pad
	shutdown atomix.Bool
	_        pad
	buffer   []wakeupSlot
	capacity uint64 // n (usable capacity)
	size     uint64 // 2n (physical slots)
	mask     uint64 // 2n - 1

	bell chan struct{}
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// NewWakeup creates a wakeup channel.
func NewWakeup() *Wakeup {
	n := uint64(wakeupRingCapacity)
	size := n * 2

	w := &Wakeup{
		buffer:   make([]wakeupSlot, size),
		capacity: n,
		size:     size,
		mask:     size - 1,
		bell:     make(chan struct{}, 1),
	}
	for i := uint64(0); i < size; i++ {
		w.buffer[i].cycle.StoreRelaxed(i / n)
	}
	return w
}

// Sender returns the cloneable producer-side view of the channel.
// Senders are safe to share across goroutines.
func (w *Wakeup) Sender() WakeupSender {
	return WakeupSender{w: w}
}

// Notify delivers an event (multiple producers safe, non-blocking).
//
// DataAvailable and ConfigChanged are dropped when the ring is full —
// the destination may already be shutting down, or a wake is already
// pending, so the loss is harmless. Shutdown is recorded in a sticky
// flag and is never lost.
func (w *Wakeup) Notify(ev WakeupEvent) {
	if ev == WakeupShutdown {
		w.shutdown.StoreRelease(true)
		w.ring()
		return
	}

	sw := spin.Wait{}
	for {
		tail := w.tail.LoadAcquire()
		head := w.head.LoadRelaxed()
		if tail >= head+w.capacity {
			// Full: a pending wake is already guaranteed.
			w.ring()
			return
		}

		myTail := w.tail.AddAcqRel(1) - 1
		slot := &w.buffer[myTail&w.mask]
		expectedCycle := myTail / w.capacity

		slotCycle := slot.cycle.LoadAcquire()
		if slotCycle == expectedCycle {
			slot.event = ev
			slot.cycle.StoreRelease(expectedCycle + 1)
			w.ring()
			return
		}
		if int64(slotCycle) < int64(expectedCycle) {
			w.ring()
			return
		}
		sw.Once()
	}
}

// ring sets the doorbell without blocking.
func (w *Wakeup) ring() {
	select {
	case w.bell <- struct{}{}:
	default:
	}
}

// Wait blocks until at least one event may be pending, then drains the
// ring and returns the coalesced set. The returned set can be empty
// (spurious wake); callers loop.
func (w *Wakeup) Wait() WakeSet {
	<-w.bell
	return w.TryDrain()
}

// WaitCh exposes the doorbell for use in select statements. After the
// channel fires the caller must invoke TryDrain to collect the events.
func (w *Wakeup) WaitCh() <-chan struct{} {
	return w.bell
}

// TryDrain drains all pending events without blocking (consumer only).
func (w *Wakeup) TryDrain() WakeSet {
	var set WakeSet
	if w.shutdown.LoadAcquire() {
		set |= wakeShutdown
	}

	for {
		head := w.head.LoadRelaxed()
		cycle := head / w.capacity
		slot := &w.buffer[head&w.mask]

		slotCycle := slot.cycle.LoadAcquire()
		if slotCycle != cycle+1 {
			return set
		}

		switch slot.event {
		case WakeupDataAvailable:
			set |= wakeData
		case WakeupConfigChanged:
			set |= wakeConfig
		}
		nextEnqCycle := (head + w.size) / w.capacity
		slot.cycle.StoreRelease(nextEnqCycle)
		w.head.StoreRelaxed(head + 1)
	}
}

// WakeupSender is the producer-side view handed to output ports and the
// executor. The zero value is a no-op sender, which is what plugs use.
type WakeupSender struct {
	w *Wakeup
}

// Notify delivers an event to the destination worker. No-op on the zero
// sender; send failure is silent because the destination may already be
// shutting down.
func (s WakeupSender) Notify(ev WakeupEvent) {
	if s.w != nil {
		s.w.Notify(ev)
	}
}

// Valid reports whether the sender is addressed to a live channel.
func (s WakeupSender) Valid() bool { return s.w != nil }
