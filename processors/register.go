// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package processors

import (
	"github.com/tatolab/streamlib-sub002/frames"
	"github.com/tatolab/streamlib-sub002/processor"
)

func init() {
	reg := processor.Default()

	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:        "streamlib.CounterSource",
			Description: "Emits an arithmetic sequence of NumberFrames.",
			Usage:       "Test data source; pair with CollectorSink to validate a pipeline.",
			Outputs: []processor.PortSpec{
				{Name: "out", Schema: frames.SchemaNumber},
			},
			Execution: processor.Continuous(),
			Tags:      []string{"source", "test"},
		},
		New: NewCounterSource,
	})

	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:        "streamlib.TickSource",
			Description: "Emits one NumberFrame per runtime clock tick.",
			Outputs: []processor.PortSpec{
				{Name: "out", Schema: frames.SchemaNumber},
			},
			Execution: processor.Continuous(),
			Tags:      []string{"source", "clock"},
		},
		New: NewTickSource,
	})

	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:        "streamlib.Doubler",
			Description: "Multiplies NumberFrame values by a constant factor.",
			Inputs: []processor.PortSpec{
				{Name: "in", Schema: frames.SchemaNumber, Required: true},
			},
			Outputs: []processor.PortSpec{
				{Name: "out", Schema: frames.SchemaNumber},
			},
			Execution: processor.Reactive(),
			Tags:      []string{"transform", "test"},
		},
		New: NewDoubler,
	})

	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:        "streamlib.Gain",
			Description: "Scales audio samples; the gain is hot-updatable.",
			Inputs: []processor.PortSpec{
				{Name: "in", Schema: frames.SchemaAudio, Required: true},
			},
			Outputs: []processor.PortSpec{
				{Name: "out", Schema: frames.SchemaAudio},
			},
			Execution: processor.Reactive(),
			Audio:     &processor.AudioRequirements{SampleRate: 48000, Channels: 2},
			Tags:      []string{"transform", "audio"},
		},
		New: NewGain,
	})

	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:        "streamlib.Mixer",
			Description: "Sums audio blocks from a multi-source input port.",
			Inputs: []processor.PortSpec{
				{Name: "in", Schema: frames.SchemaAudio, Required: true},
			},
			Outputs: []processor.PortSpec{
				{Name: "out", Schema: frames.SchemaAudio},
			},
			Execution: processor.Reactive(),
			Audio:     &processor.AudioRequirements{SampleRate: 48000, Channels: 2},
			Tags:      []string{"transform", "audio", "mixer"},
		},
		New: NewMixer,
	})

	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:        "streamlib.CollectorSink",
			Description: "Records NumberFrame values into a named Recorder.",
			Inputs: []processor.PortSpec{
				{Name: "in", Schema: frames.SchemaNumber, Required: true},
			},
			Execution: processor.Reactive(),
			Tags:      []string{"sink", "test"},
		},
		New: NewCollectorSink,
	})

	reg.Register(processor.Registration{
		Descriptor: processor.Descriptor{
			Name:        "streamlib.NullSink",
			Description: "Discards video frames.",
			Inputs: []processor.PortSpec{
				{Name: "in", Schema: frames.SchemaVideo},
			},
			Execution: processor.Manual(),
			Tags:      []string{"sink", "video"},
		},
		New: NewNullSink,
	})
}
