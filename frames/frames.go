// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package frames provides the built-in frame schemas: video, audio,
// generic records, and numeric test data. Importing the package
// registers them with the process-global schema registry.
package frames

import (
	"encoding/json"

	"github.com/tatolab/streamlib-sub002/link"
	"github.com/tatolab/streamlib-sub002/schema"
)

// Registered schema names.
const (
	SchemaVideo  = "VideoFrame"
	SchemaAudio  = "AudioFrame"
	SchemaData   = "DataFrame"
	SchemaNumber = "NumberFrame"
)

// VideoFrame is one frame of video. Video uses the Latest consumption
// strategy: a late reader skips to the newest frame rather than
// rendering stale ones.
type VideoFrame struct {
	TimestampNS int64  `json:"timestamp_ns"`
	FrameNumber uint64 `json:"frame_number"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	PixelFormat string `json:"pixel_format"`
	// Data is the pixel payload. Shared by reference across fan-out;
	// consumers must not mutate it.
	Data []byte `json:"-"`
}

// AudioFrame is one block of interleaved audio samples. Audio uses the
// Sequential strategy: every frame is delivered in order, no skipping.
type AudioFrame struct {
	TimestampNS int64 `json:"timestamp_ns"`
	SampleRate  int   `json:"sample_rate"`
	Channels    int   `json:"channels"`
	// Samples is interleaved; len = frames * channels. Shared by
	// reference across fan-out; consumers must not mutate it.
	Samples []float32 `json:"-"`
}

// DataFrame is a generic record for structured side data.
type DataFrame struct {
	TimestampNS int64           `json:"timestamp_ns"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// NumberFrame is a numeric sample, used by test sources and demos.
type NumberFrame struct {
	Sequence uint64  `json:"sequence"`
	Value    float64 `json:"value"`
}

func mustRegister[T any](entry schema.Entry) {
	if err := schema.Register[T](schema.Default(), entry); err != nil {
		panic(err)
	}
}

func init() {
	mustRegister[VideoFrame](schema.Entry{
		Name:    SchemaVideo,
		Version: schema.V(1, 0, 0),
		Fields: []schema.Field{
			{Name: "timestamp_ns", TypeName: "int64", Primitive: schema.PrimitiveI64},
			{Name: "frame_number", TypeName: "uint64", Primitive: schema.PrimitiveU64},
			{Name: "width", TypeName: "int", Primitive: schema.PrimitiveU32},
			{Name: "height", TypeName: "int", Primitive: schema.PrimitiveU32},
			{Name: "pixel_format", TypeName: "string"},
			{Name: "data", TypeName: "[]byte", Internal: true},
		},
		ReadMode:        link.ReadLatest,
		DefaultCapacity: 4,
	})

	mustRegister[AudioFrame](schema.Entry{
		Name:    SchemaAudio,
		Version: schema.V(1, 0, 0),
		Fields: []schema.Field{
			{Name: "timestamp_ns", TypeName: "int64", Primitive: schema.PrimitiveI64},
			{Name: "sample_rate", TypeName: "int", Primitive: schema.PrimitiveU32},
			{Name: "channels", TypeName: "int", Primitive: schema.PrimitiveU32},
			{Name: "samples", TypeName: "[]float32", Internal: true},
		},
		ReadMode:        link.ReadSequential,
		DefaultCapacity: 32,
		// Audio mixers take several sources on one input port.
		MultiSource: true,
	})

	mustRegister[DataFrame](schema.Entry{
		Name:    SchemaData,
		Version: schema.V(1, 0, 0),
		Fields: []schema.Field{
			{Name: "timestamp_ns", TypeName: "int64", Primitive: schema.PrimitiveI64},
			{Name: "payload", TypeName: "json"},
		},
		ReadMode:        link.ReadSequential,
		DefaultCapacity: 16,
	})

	mustRegister[NumberFrame](schema.Entry{
		Name:    SchemaNumber,
		Version: schema.V(1, 0, 0),
		Fields: []schema.Field{
			{Name: "sequence", TypeName: "uint64", Primitive: schema.PrimitiveU64},
			{Name: "value", TypeName: "float64", Primitive: schema.PrimitiveF64},
		},
		ReadMode:        link.ReadSequential,
		DefaultCapacity: 64,
	})
}
