// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"runtime"
	"sync"
	"weak"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
)

var dispatchDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamlib_bus_dispatch_dropped_total",
	Help: "Events dropped per listener by the fire-and-forget bus.",
}, []string{"reason"})

// Listener receives events. OnEvent runs on a dispatch goroutine; a returned
// error is logged, never propagated — the bus is not a delivery queue.
type Listener interface {
	OnEvent(ev *Event) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ev *Event) error

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(ev *Event) error { return f(ev) }

// Subscription is the handle returned by Subscribe. The bus holds only
// a weak reference: dropping the handle (or calling Close) detaches the
// listener, and the dead entry is reaped during the next publish on the
// topic.
type Subscription struct {
	topic    string
	listener Listener
	// mu is try-locked per dispatch: a busy listener loses the event
	// for itself only.
	mu     sync.Mutex
	closed bool // guarded by mu
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Close detaches the listener. Idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type topicSubs struct {
	mu   sync.Mutex
	subs []weak.Pointer[Subscription]
}

// Bus is a topic-addressed fire-and-forget event bus.
//
// Events are dispatched in parallel, one pool task per listener, and
// Publish returns once every listener's dispatch has finished. There
// is no queuing — a listener that is still busy when the next event
// arrives simply misses it, and events published before a subscriber
// joins are lost to it. Unknown topics drop silently.
type Bus struct {
	topics *xsync.MapOf[string, *topicSubs]
	pool   *ants.Pool
}

// NewBus creates a bus with its own dispatch pool.
func NewBus() *Bus {
	pool, err := ants.NewPool(runtime.NumCPU(), ants.WithNonblocking(true))
	if err != nil {
		// Only reachable with an invalid pool size.
		panic(err)
	}
	return &Bus{
		topics: xsync.NewMapOf[string, *topicSubs](),
		pool:   pool,
	}
}

var (
	defaultBus  *Bus
	defaultOnce sync.Once
)

// Default returns the process-global bus, initialized lazily on first
// use.
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultBus = NewBus()
	})
	return defaultBus
}

// Subscribe attaches a listener to a topic and returns its handle.
// The caller must retain the handle: the bus keeps only a weak
// reference, and a collected handle unsubscribes the listener.
func (b *Bus) Subscribe(topic string, l Listener) *Subscription {
	sub := &Subscription{topic: topic, listener: l}
	entry, _ := b.topics.LoadOrCompute(topic, func() *topicSubs {
		return &topicSubs{}
	})
	entry.mu.Lock()
	entry.subs = append(entry.subs, weak.Make(sub))
	entry.mu.Unlock()
	return sub
}

// Publish dispatches an event to every live listener of the topic in
// parallel, one pool task per listener (a fresh goroutine when the pool
// is saturated), and joins the dispatch before returning — so a single
// publisher observes its own events in order, while a slow listener
// never delays the other listeners. Delivery is best-effort: a listener
// still busy with a concurrent publisher's event misses this one
// (try-lock), and oversized custom events are rejected.
func (b *Bus) Publish(topic string, ev *Event) {
	if ev.Custom != nil && len(ev.Custom.Payload) > MaxEventSize {
		dispatchDropped.WithLabelValues("oversize").Inc()
		log.WithFields(log.Fields{
			"topic": topic,
			"size":  len(ev.Custom.Payload),
		}).Warn("dropping oversized event")
		return
	}

	entry, ok := b.topics.Load(topic)
	if !ok {
		// Unknown topic: true fire-and-forget, no subscriber list is
		// allocated.
		return
	}

	entry.mu.Lock()
	live := make([]*Subscription, 0, len(entry.subs))
	dead := false
	kept := entry.subs[:0]
	for _, w := range entry.subs {
		sub := w.Value()
		if sub == nil {
			dead = true
			continue
		}
		kept = append(kept, w)
		live = append(live, sub)
	}
	if dead {
		entry.subs = kept
	}
	empty := len(entry.subs) == 0
	entry.mu.Unlock()

	if empty {
		b.topics.Compute(topic, func(cur *topicSubs, loaded bool) (*topicSubs, bool) {
			if !loaded {
				return nil, true
			}
			cur.mu.Lock()
			defer cur.mu.Unlock()
			return cur, len(cur.subs) == 0
		})
	}

	var wg sync.WaitGroup
	for _, sub := range live {
		sub := sub
		wg.Add(1)
		task := func() {
			defer wg.Done()
			dispatch(sub, ev)
		}
		if err := b.pool.Submit(task); err != nil {
			// Pool saturated: dispatch on a fresh goroutine rather
			// than dropping the event.
			go task()
		}
	}
	wg.Wait()
}

func dispatch(sub *Subscription, ev *Event) {
	// Try-lock: a busy listener loses this event, for itself only.
	if !sub.mu.TryLock() {
		dispatchDropped.WithLabelValues("listener_busy").Inc()
		return
	}
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	if err := sub.listener.OnEvent(ev); err != nil {
		log.WithError(err).WithField("topic", sub.topic).Debug("event listener returned error")
	}
}

// Close releases the dispatch pool. Only used by tests; the process
// global bus lives for the process lifetime.
func (b *Bus) Close() {
	b.pool.Release()
}
