// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package clock

import (
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
)

// PTP is an IEEE 1588 Precision Time Protocol clock.
//
// PTP provides microsecond-accurate synchronization across network
// devices (SMPTE ST 2110 environments). While no grandmaster sync is
// available the clock falls back to software timing and logs the
// degradation once.
type PTP struct {
	fps      float64
	domain   uint8
	fallback *Software
	warn     sync.Once
}

// NewPTP creates a PTP clock for the given domain, ticking at fps.
func NewPTP(fps float64, domain uint8) *PTP {
	return &PTP{
		fps:      fps,
		domain:   domain,
		fallback: NewSoftwareWithID(fps, "ptp-fallback"),
	}
}

// Domain returns the PTP domain.
func (c *PTP) Domain() uint8 { return c.domain }

// NextTick implements Clock. Falls back to software timing while the
// grandmaster is unreachable.
func (c *PTP) NextTick() TimedTick {
	c.warn.Do(func() {
		log.WithField("clock", c.ClockID()).Warn("PTP signal unavailable, using software fallback timing")
	})
	tick := c.fallback.NextTick()
	tick.ClockID = c.ClockID()
	return tick
}

// FPS implements Clock.
func (c *PTP) FPS() float64 { return c.fps }

// ClockID implements Clock.
func (c *PTP) ClockID() string {
	return "ptp:" + strconv.Itoa(int(c.domain))
}

// Genlock is an SDI hardware sync clock. The genlock signal is a
// reference pulse (black burst or tri-level sync) that all devices lock
// to; it differs from PTP in being a hardware pulse rather than a
// network protocol. While no pulse source is attached the clock falls
// back to software timing and logs the degradation once.
type Genlock struct {
	port     uint8
	fallback *Software
	warn     sync.Once
}

// NewGenlock creates a genlock clock on the given SDI port. The rate is
// detected from hardware when a signal is present; the fallback runs at
// 60 fps.
func NewGenlock(port uint8) *Genlock {
	return &Genlock{
		port:     port,
		fallback: NewSoftwareWithID(60.0, "genlock-fallback"),
	}
}

// Port returns the SDI port.
func (c *Genlock) Port() uint8 { return c.port }

// NextTick implements Clock. Falls back to software timing while no
// genlock pulse is present.
func (c *Genlock) NextTick() TimedTick {
	c.warn.Do(func() {
		log.WithField("clock", c.ClockID()).Warn("genlock signal unavailable, using software fallback timing")
	})
	tick := c.fallback.NextTick()
	tick.ClockID = c.ClockID()
	return tick
}

// FPS implements Clock.
func (c *Genlock) FPS() float64 { return c.fallback.FPS() }

// ClockID implements Clock.
func (c *Genlock) ClockID() string {
	return "genlock:" + strconv.Itoa(int(c.port))
}

