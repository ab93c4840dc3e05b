// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package clock provides tick generation for time-driven processors.
//
// Clocks produce monotonically numbered ticks at a declared rate. The
// software clock is canonical; hardware-synchronized variants (PTP,
// genlock) present the same interface and substitute transparently,
// falling back to software timing while their backing signal is
// unavailable.
package clock

import (
	"fmt"
	"time"
)

// TimedTick is one timing signal. Ticks are signals to process, not data
// carriers: processors receive ticks and read the latest data from their
// input ports.
type TimedTick struct {
	// Timestamp is absolute time in seconds since the UNIX epoch.
	Timestamp float64 `json:"timestamp"`
	// FrameNumber is the monotonic frame counter, starting at 0.
	FrameNumber uint64 `json:"frame_number"`
	// ClockID identifies the clock source (e.g. "software", "ptp:0").
	ClockID string `json:"clock_id"`
	// DeltaTime is the actual wall-clock seconds elapsed since the
	// previous tick, not the nominal period.
	DeltaTime float64 `json:"delta_time"`
}

// Clock generates ticks at a nominal rate.
type Clock interface {
	// NextTick sleeps until the scheduled time of the next tick and
	// returns it.
	NextTick() TimedTick
	// FPS returns the nominal tick rate.
	FPS() float64
	// ClockID returns the clock source identifier.
	ClockID() string
}

// Software is a free-running software clock.
//
// The schedule targets start + n*period. Two deliberate deviations from
// a naive scheduler:
//
//   - A minimum sleep of half the nominal period is always enforced, so
//     handlers yield even when the clock is running behind.
//   - When more than two nominal periods behind, the schedule resets
//     instead of delivering a catch-up burst of near-zero-delta ticks.
//
// The wall-clock epoch is sampled once at construction (and on Reset);
// per-tick timestamps are start_wall + monotonic_elapsed, with no
// per-tick system call.
//
// Not safe for concurrent use: one goroutine drives one clock.
type Software struct {
	fps         float64
	period      time.Duration
	clockID     string
	frameNumber uint64
	startTime   time.Time
	startWall   float64
	lastTick    time.Time
	haveLast    bool
}

// NewSoftware creates a software clock ticking at fps.
// Panics if fps <= 0.
func NewSoftware(fps float64) *Software {
	return NewSoftwareWithID(fps, "software")
}

// NewSoftwareWithID creates a software clock with a custom identifier.
// Panics if fps <= 0.
func NewSoftwareWithID(fps float64, clockID string) *Software {
	if fps <= 0 {
		panic(fmt.Sprintf("clock: fps must be positive, got %v", fps))
	}
	return &Software{
		fps:       fps,
		period:    time.Duration(float64(time.Second) / fps),
		clockID:   clockID,
		startTime: time.Now(),
		startWall: float64(time.Now().UnixNano()) / float64(time.Second),
	}
}

// Reset rewinds the clock to frame 0 and re-samples the wall-clock
// epoch.
func (c *Software) Reset() {
	c.frameNumber = 0
	c.startTime = time.Now()
	c.startWall = float64(time.Now().UnixNano()) / float64(time.Second)
	c.haveLast = false
}

// NextTick implements Clock.
func (c *Software) NextTick() TimedTick {
	target := c.startTime.Add(time.Duration(c.frameNumber) * c.period)
	now := time.Now()
	sleep := target.Sub(now)

	// Always yield at least half a period, even behind schedule.
	minSleep := c.period / 2
	if sleep < minSleep {
		sleep = minSleep

		// Severely behind: reset the schedule instead of flooding
		// near-zero-delta catch-up ticks. Both epochs shift by the lag,
		// so frame numbers and timestamps stay monotonic.
		if now.After(target.Add(2 * c.period)) {
			lag := now.Sub(target)
			c.startTime = c.startTime.Add(lag)
			c.startWall += lag.Seconds()
		}
	}
	time.Sleep(sleep)

	current := time.Now()
	delta := c.period.Seconds()
	if c.haveLast {
		delta = current.Sub(c.lastTick).Seconds()
	}

	tick := TimedTick{
		Timestamp:   c.startWall + current.Sub(c.startTime).Seconds(),
		FrameNumber: c.frameNumber,
		ClockID:     c.clockID,
		DeltaTime:   delta,
	}

	c.lastTick = current
	c.haveLast = true
	c.frameNumber++
	return tick
}

// FPS implements Clock.
func (c *Software) FPS() float64 { return c.fps }

// ClockID implements Clock.
func (c *Software) ClockID() string { return c.clockID }
