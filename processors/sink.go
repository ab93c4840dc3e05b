// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package processors

import (
	"encoding/json"
	"sync"

	"github.com/tatolab/streamlib-sub002/frames"
	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/processor"
)

// Recorder accumulates the values observed by one CollectorSink
// channel. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	values []float64
}

// Values returns a copy of the recorded values in arrival order.
func (r *Recorder) Values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of recorded values.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Reset clears the recorder.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = r.values[:0]
}

// Append records one value. Sinks call it from their worker; tests may
// seed values directly.
func (r *Recorder) Append(v float64) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

var recorders sync.Map // channel name -> *Recorder

// RecorderFor returns the recorder behind a collector channel,
// creating it on first use. The instance is stable for the process
// lifetime, so observers may hold it across pipeline rebuilds.
func RecorderFor(channel string) *Recorder {
	r, _ := recorders.LoadOrStore(channel, &Recorder{})
	return r.(*Recorder)
}

// CollectorSinkConfig configures a CollectorSink.
type CollectorSinkConfig struct {
	// Channel names the recorder the sink appends to.
	Channel string `json:"channel"`
}

// CollectorSink is a Reactive sink recording every received
// NumberFrame value into a named Recorder.
type CollectorSink struct {
	processor.Ports
	in  *link.Input[frames.NumberFrame]
	rec *Recorder
}

// NewCollectorSink constructs a CollectorSink from config.
func NewCollectorSink(config []byte) (processor.Processor, error) {
	cfg := CollectorSinkConfig{Channel: "default"}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
	}
	s := &CollectorSink{
		in:  link.NewInput[frames.NumberFrame]("in"),
		rec: RecorderFor(cfg.Channel),
	}
	s.RegisterInput(s.in)
	return s, nil
}

// Setup implements processor.Processor.
func (s *CollectorSink) Setup(*processor.Context) error { return nil }

// Process drains every pending frame into the recorder.
func (s *CollectorSink) Process() error {
	for {
		f, ok := s.in.Read()
		if !ok {
			return nil
		}
		s.rec.Append(f.Value)
	}
}

// Teardown implements processor.Processor.
func (s *CollectorSink) Teardown() error { return nil }

// NullSink accepts video frames and discards them. It is Manual: a
// real display is driven by vsync callbacks, so the runtime only
// observes its lifecycle.
type NullSink struct {
	processor.Ports
	in *link.Input[frames.VideoFrame]
}

// NewNullSink constructs a NullSink.
func NewNullSink([]byte) (processor.Processor, error) {
	s := &NullSink{
		in: link.NewInput[frames.VideoFrame]("in"),
	}
	s.RegisterInput(s.in)
	return s, nil
}

// Setup implements processor.Processor.
func (s *NullSink) Setup(*processor.Context) error { return nil }

// Process runs once for initialization and never reads its input; once
// the link's ring buffer is full, further frames are dropped at push.
func (s *NullSink) Process() error { return nil }

// Teardown implements processor.Processor.
func (s *NullSink) Teardown() error { return nil }
