// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package processors provides the built-in processors: numeric and
// clock-driven sources, transforms, a mixer, and recording sinks.
// Importing the package registers them with the process-global factory
// registry.
package processors

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/tatolab/streamlib-sub002/clock"
	"github.com/tatolab/streamlib-sub002/frames"
	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/processor"
)

// CounterSourceConfig configures a CounterSource.
type CounterSourceConfig struct {
	Start float64 `json:"start"`
	Step  float64 `json:"step"`
	// Limit stops emission after N frames; 0 is unlimited.
	Limit uint64 `json:"limit"`
}

// CounterSource emits NumberFrames 0,1,2,… (scaled by Start/Step) as
// fast as its Continuous loop runs.
type CounterSource struct {
	processor.Ports
	out *link.Output[frames.NumberFrame]
	cfg CounterSourceConfig
	seq uint64
	log *log.Entry
}

// NewCounterSource constructs a CounterSource from config.
func NewCounterSource(config []byte) (processor.Processor, error) {
	cfg := CounterSourceConfig{Step: 1}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
	}
	s := &CounterSource{
		out: link.NewOutput[frames.NumberFrame]("out"),
		cfg: cfg,
	}
	s.RegisterOutput(s.out)
	return s, nil
}

// Setup implements processor.Processor.
func (s *CounterSource) Setup(ctx *processor.Context) error {
	s.log = ctx.Log
	return nil
}

// Process emits one frame per invocation until the configured limit.
func (s *CounterSource) Process() error {
	if s.cfg.Limit > 0 && s.seq >= s.cfg.Limit {
		return nil
	}
	s.out.Push(frames.NumberFrame{
		Sequence: s.seq,
		Value:    s.cfg.Start + s.cfg.Step*float64(s.seq),
	})
	s.seq++
	return nil
}

// Teardown implements processor.Processor.
func (s *CounterSource) Teardown() error { return nil }

// TickSource emits one NumberFrame per clock tick, carrying the tick's
// frame number and timestamp. The runtime clock paces it, so the
// Continuous loop declares no interval of its own.
type TickSource struct {
	processor.Ports
	out *link.Output[frames.NumberFrame]
	clk clock.Clock
}

// NewTickSource constructs a TickSource.
func NewTickSource([]byte) (processor.Processor, error) {
	s := &TickSource{
		out: link.NewOutput[frames.NumberFrame]("out"),
	}
	s.RegisterOutput(s.out)
	return s, nil
}

// Setup implements processor.Processor.
func (s *TickSource) Setup(ctx *processor.Context) error {
	s.clk = ctx.Clock
	return nil
}

// Process blocks until the next tick, then emits it.
func (s *TickSource) Process() error {
	tick := s.clk.NextTick()
	s.out.Push(frames.NumberFrame{
		Sequence: tick.FrameNumber,
		Value:    tick.Timestamp,
	})
	return nil
}

// Teardown implements processor.Processor.
func (s *TickSource) Teardown() error { return nil }
