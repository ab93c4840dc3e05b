// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"fmt"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/pubsub"
)

// The three worker loops below implement the execution policies. Every
// loop shares the same frame: block at the pause barrier, observe
// Shutdown promptly, contain panics at the goroutine boundary, and
// treat a Process error as a per-processor failure that leaves the rest
// of the pipeline running.

// runContinuous calls Process in a loop. interval_ms > 0 enforces a
// minimum gap between invocations; 0 yields cooperatively.
func (e *Executor) runContinuous(rp *runningProcessor) {
	defer close(rp.done)
	defer e.recoverWorker(rp)

	interval := time.Duration(rp.exec.IntervalMS) * time.Millisecond
	for {
		rp.pause.wait()
		if rp.wakeup.TryDrain().Has(link.WakeupShutdown) {
			return
		}
		if rp.currentState() == StateStopping {
			return
		}

		if err := rp.instance.Process(); err != nil {
			e.failProcessor(rp, err)
			return
		}

		if interval > 0 {
			e.sleepInterval(rp, interval)
		} else {
			runtime.Gosched()
		}
	}
}

// sleepInterval sleeps at least interval but wakes early for Shutdown.
// A data wakeup during the sleep does not shorten the gap: the
// between-invocation minimum holds regardless of input pressure.
func (e *Executor) sleepInterval(rp *runningProcessor, interval time.Duration) {
	deadline := time.Now().Add(interval)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		select {
		case <-time.After(remaining):
			return
		case <-rp.wakeup.WaitCh():
			set := rp.wakeup.TryDrain()
			if set.Has(link.WakeupShutdown) {
				// Leave the sticky flag for the loop head to observe.
				rp.wakeup.Notify(link.WakeupShutdown)
				return
			}
		}
	}
}

// runReactive blocks on the wakeup channel and calls Process exactly
// once per wake. Queued wakeups between two calls collapse into one
// invocation; spurious wakes loop back to waiting. The processor must
// check every input port on every wake.
func (e *Executor) runReactive(rp *runningProcessor) {
	defer close(rp.done)
	defer e.recoverWorker(rp)

	for {
		set := rp.wakeup.Wait()
		rp.pause.wait()
		// Collect anything that queued while paused, and the sticky
		// shutdown flag if stop won the race.
		set |= rp.wakeup.TryDrain()

		if set.Has(link.WakeupShutdown) {
			return
		}
		if set.Empty() {
			continue
		}

		if err := rp.instance.Process(); err != nil {
			e.failProcessor(rp, err)
			return
		}
	}
}

// runManual calls Process once for its initialization side effects,
// then only observes lifecycle: the processor drives all further work
// from its own callbacks or threads.
func (e *Executor) runManual(rp *runningProcessor) {
	defer close(rp.done)
	defer e.recoverWorker(rp)

	rp.pause.wait()
	if rp.wakeup.TryDrain().Has(link.WakeupShutdown) {
		return
	}
	if err := rp.instance.Process(); err != nil {
		e.failProcessor(rp, err)
		return
	}

	for {
		set := rp.wakeup.Wait()
		rp.pause.wait()
		set |= rp.wakeup.TryDrain()
		if set.Has(link.WakeupShutdown) {
			return
		}
	}
}

// failProcessor handles a Process error: the node transitions to
// Stopped, a ProcessorFailed event is published, and the remaining
// nodes continue. Runs on the worker goroutine.
func (e *Executor) failProcessor(rp *runningProcessor, err error) {
	log.WithError(err).WithField("processor", rp.id).Error("processor failed")
	if !rp.transition(StateRunning, StateStopped) &&
		!rp.transition(StatePaused, StateStopped) {
		// Stop already owns this node; let it finish the transition.
		return
	}

	processorFailures.WithLabelValues(rp.id).Inc()
	processorsRunning.Dec()
	e.bus.Publish(pubsub.ProcessorTopic(rp.id),
		pubsub.PerProcessor(rp.id, pubsub.ProcessorFailed, err.Error()))
	teardown(rp)
}

// recoverWorker catches panics at the worker goroutine boundary and
// treats them like Process errors.
func (e *Executor) recoverWorker(rp *runningProcessor) {
	if r := recover(); r != nil {
		e.failProcessor(rp, fmt.Errorf("worker panic: %v", r))
	}
}
