// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Lock-free algorithm tests excluded from race detection.
//
// The buffer uses acquire-release orderings on separate head/tail words to
// protect the non-atomic slot array. The algorithm is correct, but the race
// detector cannot observe happens-before established through atomics on
// separate variables and reports false positives.

package ringbuf_test

import (
	"sync"
	"testing"

	"code.hybscloud.com/iox"

	"github.com/tatolab/streamlib-sub002/ringbuf"
)

// TestBufferConcurrentFIFO runs one producer against one consumer and
// verifies strict FIFO delivery with no loss and no duplication.
func TestBufferConcurrentFIFO(t *testing.T) {
	if ringbuf.RaceEnabled {
		t.Skip("skip: lock-free algorithm uses cross-variable memory ordering")
	}

	const total = 100_000
	b := ringbuf.New[int](1024)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		backoff := iox.Backoff{}
		for i := range total {
			v := i
			for b.Push(&v) != nil {
				backoff.Wait()
			}
			backoff.Reset()
		}
	}()

	backoff := iox.Backoff{}
	next := 0
	for next < total {
		val, err := b.Pop()
		if err != nil {
			backoff.Wait()
			continue
		}
		backoff.Reset()
		if val != next {
			t.Fatalf("out of order: got %d, want %d", val, next)
		}
		next++
	}
	wg.Wait()
}

// TestBufferConcurrentDrainMonotonic verifies that a consumer using
// DrainToLatest under producer pressure observes a strictly increasing
// subsequence.
func TestBufferConcurrentDrainMonotonic(t *testing.T) {
	if ringbuf.RaceEnabled {
		t.Skip("skip: lock-free algorithm uses cross-variable memory ordering")
	}

	const total = 50_000
	b := ringbuf.New[int](8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range total {
			v := i
			_ = b.Push(&v) // drops under overload, by design
		}
	}()

	last := -1
	for {
		select {
		case <-done:
			// Final drain
			if val, err := b.DrainToLatest(); err == nil && val <= last {
				t.Fatalf("non-monotonic after done: got %d, last %d", val, last)
			}
			return
		default:
			val, err := b.DrainToLatest()
			if err != nil {
				continue
			}
			if val <= last {
				t.Fatalf("non-monotonic: got %d, last %d", val, last)
			}
			last = val
		}
	}
}
