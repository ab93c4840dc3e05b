// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package processors

import (
	"encoding/json"
	"math"
	"sync/atomic"

	"github.com/tatolab/streamlib-sub002/frames"
	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/processor"
)

// DoublerConfig configures a Doubler.
type DoublerConfig struct {
	Factor float64 `json:"factor"`
}

// Doubler is a Reactive transform multiplying each NumberFrame's value
// by a constant factor (default 2). It has no config hot path: a config
// change reinstantiates it on the next commit.
type Doubler struct {
	processor.Ports
	in     *link.Input[frames.NumberFrame]
	out    *link.Output[frames.NumberFrame]
	factor float64
}

// NewDoubler constructs a Doubler from config.
func NewDoubler(config []byte) (processor.Processor, error) {
	cfg := DoublerConfig{Factor: 2}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
	}
	d := &Doubler{
		in:     link.NewInput[frames.NumberFrame]("in"),
		out:    link.NewOutput[frames.NumberFrame]("out"),
		factor: cfg.Factor,
	}
	d.RegisterInput(d.in)
	d.RegisterOutput(d.out)
	return d, nil
}

// Setup implements processor.Processor.
func (d *Doubler) Setup(*processor.Context) error { return nil }

// Process batch-reads every available frame: wakeups coalesce, so one
// invocation may cover several pushes.
func (d *Doubler) Process() error {
	for {
		f, ok := d.in.Read()
		if !ok {
			return nil
		}
		f.Value *= d.factor
		d.out.Push(f)
	}
}

// Teardown implements processor.Processor.
func (d *Doubler) Teardown() error { return nil }

// Factor returns the configured factor.
func (d *Doubler) Factor() float64 { return d.factor }

// GainConfig configures a Gain.
type GainConfig struct {
	Gain float64 `json:"gain"`
}

// Gain is a Reactive audio transform scaling every sample. It absorbs
// config updates in place, so a running pipeline can automate the gain
// without reinstantiation.
type Gain struct {
	processor.Ports
	in  *link.Input[frames.AudioFrame]
	out *link.Output[frames.AudioFrame]
	// gain holds the float64 bits; the worker loads it per frame while
	// the executor stores updates.
	gain atomic.Uint64
}

// NewGain constructs a Gain from config.
func NewGain(config []byte) (processor.Processor, error) {
	cfg := GainConfig{Gain: 1}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
	}
	g := &Gain{
		in:  link.NewInput[frames.AudioFrame]("in"),
		out: link.NewOutput[frames.AudioFrame]("out"),
	}
	g.gain.Store(math.Float64bits(cfg.Gain))
	g.RegisterInput(g.in)
	g.RegisterOutput(g.out)
	return g, nil
}

// UpdateConfig implements processor.ConfigUpdater.
func (g *Gain) UpdateConfig(config []byte) error {
	cfg := GainConfig{Gain: 1}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return err
		}
	}
	g.gain.Store(math.Float64bits(cfg.Gain))
	return nil
}

// Gain returns the current gain.
func (g *Gain) Gain() float64 {
	return math.Float64frombits(g.gain.Load())
}

// Setup implements processor.Processor.
func (g *Gain) Setup(*processor.Context) error { return nil }

// Process scales every pending frame. Samples are copied, not scaled in
// place: the input slice may be shared with other fan-out consumers.
func (g *Gain) Process() error {
	gain := g.Gain()
	for {
		f, ok := g.in.Read()
		if !ok {
			return nil
		}
		scaled := make([]float32, len(f.Samples))
		for i, s := range f.Samples {
			scaled[i] = s * float32(gain)
		}
		f.Samples = scaled
		g.out.Push(f)
	}
}

// Teardown implements processor.Processor.
func (g *Gain) Teardown() error { return nil }

// Mixer is a Reactive audio mixer: its single multi-source input port
// round-robins across connected upstreams, and every read frame is
// mixed into the running block and emitted.
type Mixer struct {
	processor.Ports
	in  *link.Input[frames.AudioFrame]
	out *link.Output[frames.AudioFrame]
}

// NewMixer constructs a Mixer.
func NewMixer([]byte) (processor.Processor, error) {
	m := &Mixer{
		in:  link.NewInput[frames.AudioFrame]("in"),
		out: link.NewOutput[frames.AudioFrame]("out"),
	}
	m.RegisterInput(m.in)
	m.RegisterOutput(m.out)
	return m, nil
}

// Setup implements processor.Processor.
func (m *Mixer) Setup(*processor.Context) error { return nil }

// Process sums equal-length blocks arriving in the same wake; a lone
// block passes through unchanged.
func (m *Mixer) Process() error {
	var acc *frames.AudioFrame
	for {
		f, ok := m.in.Read()
		if !ok {
			break
		}
		if acc == nil {
			mixed := make([]float32, len(f.Samples))
			copy(mixed, f.Samples)
			f.Samples = mixed
			acc = &f
			continue
		}
		if len(f.Samples) != len(acc.Samples) {
			// Block size mismatch: emit what we have and restart.
			m.out.Push(*acc)
			mixed := make([]float32, len(f.Samples))
			copy(mixed, f.Samples)
			f.Samples = mixed
			acc = &f
			continue
		}
		for i, s := range f.Samples {
			acc.Samples[i] += s
		}
	}
	if acc != nil {
		m.out.Push(*acc)
	}
	return nil
}

// Teardown implements processor.Processor.
func (m *Mixer) Teardown() error { return nil }
