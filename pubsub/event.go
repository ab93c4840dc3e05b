// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pubsub provides the control-plane event bus: topic-addressed,
// lock-free, fire-and-forget pub/sub for observability events. Frame
// data never travels here — that is what links are for.
package pubsub

import "encoding/json"

// MaxEventSize bounds the payload of custom events: Publish drops a
// custom event whose payload is larger. Runtime and per-processor
// events are not size-checked.
const MaxEventSize = 64 * 1024

// Reserved topic names. Any other dotted-colon string is a user topic.
const (
	TopicRuntimeGlobal = "runtime:global"
	TopicKeyboard      = "input:keyboard"
	TopicMouse         = "input:mouse"
	TopicWindow        = "window"
)

// ProcessorTopic returns the reserved per-processor topic.
func ProcessorTopic(id string) string {
	return "processor:" + id
}

// RuntimeEventKind enumerates runtime:global event kinds.
type RuntimeEventKind string

const (
	ProcessorAdded         RuntimeEventKind = "processor_added"
	ProcessorRemoved       RuntimeEventKind = "processor_removed"
	ProcessorConfigUpdated RuntimeEventKind = "processor_config_updated"
	LinkCreated            RuntimeEventKind = "link_created"
	LinkRemoved            RuntimeEventKind = "link_removed"
	RuntimeStarting        RuntimeEventKind = "runtime_starting"
	RuntimeStarted         RuntimeEventKind = "runtime_started"
	RuntimeStartFailed     RuntimeEventKind = "runtime_start_failed"
	RuntimeStopping        RuntimeEventKind = "runtime_stopping"
	RuntimeStopped         RuntimeEventKind = "runtime_stopped"
	RuntimeStopFailed      RuntimeEventKind = "runtime_stop_failed"
	RuntimePausing         RuntimeEventKind = "runtime_pausing"
	RuntimePaused          RuntimeEventKind = "runtime_paused"
	RuntimePauseFailed     RuntimeEventKind = "runtime_pause_failed"
	RuntimeResuming        RuntimeEventKind = "runtime_resuming"
	RuntimeResumed         RuntimeEventKind = "runtime_resumed"
	RuntimeResumeFailed    RuntimeEventKind = "runtime_resume_failed"
)

// RuntimeEvent is a runtime:global control event.
type RuntimeEvent struct {
	Kind          RuntimeEventKind `json:"kind"`
	ProcessorID   string           `json:"processor_id,omitempty"`
	ProcessorType string           `json:"processor_type,omitempty"`
	LinkID        string           `json:"link_id,omitempty"`
	FromPort      string           `json:"from_port,omitempty"`
	ToPort        string           `json:"to_port,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// ProcessorEventKind enumerates per-processor event kinds.
type ProcessorEventKind string

const (
	ProcessorStarted        ProcessorEventKind = "started"
	ProcessorStopped        ProcessorEventKind = "stopped"
	ProcessorPaused         ProcessorEventKind = "paused"
	ProcessorResumed        ProcessorEventKind = "resumed"
	ProcessorFailed         ProcessorEventKind = "failed"
	ProcessorConfigApplied  ProcessorEventKind = "config_updated"
)

// ProcessorEvent is a per-processor lifecycle event.
type ProcessorEvent struct {
	ProcessorID string             `json:"processor_id"`
	Kind        ProcessorEventKind `json:"kind"`
	Error       string             `json:"error,omitempty"`
}

// CustomEvent is a user-defined event on a user topic.
type CustomEvent struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is the tagged union carried by the bus. Exactly one variant is
// non-nil.
type Event struct {
	RuntimeGlobal *RuntimeEvent   `json:"runtime_global,omitempty"`
	Processor     *ProcessorEvent `json:"processor,omitempty"`
	Custom        *CustomEvent    `json:"custom,omitempty"`
}

// Global builds a runtime:global event.
func Global(ev RuntimeEvent) *Event {
	return &Event{RuntimeGlobal: &ev}
}

// PerProcessor builds a processor:<id> event.
func PerProcessor(id string, kind ProcessorEventKind, errText string) *Event {
	return &Event{Processor: &ProcessorEvent{ProcessorID: id, Kind: kind, Error: errText}}
}

// UserEvent builds a custom event for a user topic.
func UserEvent(topic string, payload json.RawMessage) *Event {
	return &Event{Custom: &CustomEvent{Topic: topic, Payload: payload}}
}
