// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package processor

import (
	"encoding/json"
	"fmt"
)

// PolicyKind enumerates the three execution policies.
type PolicyKind uint8

const (
	// PolicyContinuous: the runtime calls Process in a dedicated loop.
	PolicyContinuous PolicyKind = iota
	// PolicyReactive: the runtime calls Process when upstream writes to
	// any input port.
	PolicyReactive
	// PolicyManual: the runtime calls Process exactly once; the
	// processor drives all subsequent work itself.
	PolicyManual
)

// Execution declares how and when the runtime invokes a processor's
// Process method. This is the most important decision when creating a
// processor — it controls the entire execution model.
//
//	Continuous  Process runs repeatedly in a loop; generators, sources, polling.
//	Reactive    Process runs once per wake when input data arrives; transforms, effects.
//	Manual      Process runs once, then the processor controls timing; hardware callbacks.
type Execution struct {
	Kind PolicyKind
	// IntervalMS is the minimum interval between Process calls in
	// Continuous mode. 0 runs as fast as possible, yielding between
	// calls. Ignored by other policies.
	IntervalMS uint32
}

// Continuous returns a Continuous execution with no interval (as fast
// as possible).
func Continuous() Execution {
	return Execution{Kind: PolicyContinuous}
}

// ContinuousEvery returns a Continuous execution with a minimum
// interval between Process calls.
func ContinuousEvery(intervalMS uint32) Execution {
	return Execution{Kind: PolicyContinuous, IntervalMS: intervalMS}
}

// Reactive returns a Reactive execution (wake on input). This is the
// default for processors that transform input to output.
func Reactive() Execution {
	return Execution{Kind: PolicyReactive}
}

// Manual returns a Manual execution (processor controls timing after
// the initial call).
func Manual() Execution {
	return Execution{Kind: PolicyManual}
}

func (e Execution) String() string {
	switch e.Kind {
	case PolicyContinuous:
		if e.IntervalMS == 0 {
			return "Continuous"
		}
		return fmt.Sprintf("Continuous(%dms)", e.IntervalMS)
	case PolicyReactive:
		return "Reactive"
	case PolicyManual:
		return "Manual"
	}
	return fmt.Sprintf("execution(%d)", uint8(e.Kind))
}

type executionJSON struct {
	Type       string `json:"type"`
	IntervalMS uint32 `json:"interval_ms,omitempty"`
}

// MarshalJSON serializes as {"type":"Continuous","interval_ms":N}.
func (e Execution) MarshalJSON() ([]byte, error) {
	j := executionJSON{IntervalMS: e.IntervalMS}
	switch e.Kind {
	case PolicyContinuous:
		j.Type = "Continuous"
	case PolicyReactive:
		j.Type = "Reactive"
	case PolicyManual:
		j.Type = "Manual"
	default:
		return nil, fmt.Errorf("unknown execution kind %d", e.Kind)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Execution) UnmarshalJSON(data []byte) error {
	var j executionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	switch j.Type {
	case "Continuous":
		*e = Execution{Kind: PolicyContinuous, IntervalMS: j.IntervalMS}
	case "Reactive":
		*e = Execution{Kind: PolicyReactive}
	case "Manual":
		*e = Execution{Kind: PolicyManual}
	default:
		return fmt.Errorf("unknown execution type %q", j.Type)
	}
	return nil
}

// Priority is a thread priority hint for the worker running the
// processor. The runtime records it; honoring it is platform-dependent.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityTimeCritical
)

// Scheduling is the value returned by a processor's scheduling
// configuration: execution policy plus priority hint.
type Scheduling struct {
	Execution Execution
	Priority  Priority
}
