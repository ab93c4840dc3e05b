// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package processor

// PortSpec declares one port of a processor type: its name, the schema
// flowing through it, and whether a connection is required for the
// processor to function.
type PortSpec struct {
	Name        string `json:"name"`
	Schema      string `json:"schema"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// AudioRequirements declares the audio parameters a processor needs
// negotiated before setup.
type AudioRequirements struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	BufferSize int `json:"buffer_size,omitempty"`
}

// Descriptor is the static metadata of a processor type.
type Descriptor struct {
	// Name is the stable type name used in graphs and the registry.
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Usage is a hint for tooling about when to pick this processor.
	Usage   string     `json:"usage,omitempty"`
	Inputs  []PortSpec `json:"inputs,omitempty"`
	Outputs []PortSpec `json:"outputs,omitempty"`
	// Execution is the processor's declared execution policy.
	Execution Execution          `json:"execution"`
	Audio     *AudioRequirements `json:"audio,omitempty"`
	Tags      []string           `json:"tags,omitempty"`
}

// InputSpec returns the descriptor of the named input port.
func (d *Descriptor) InputSpec(name string) (PortSpec, bool) {
	for _, p := range d.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

// OutputSpec returns the descriptor of the named output port.
func (d *Descriptor) OutputSpec(name string) (PortSpec, bool) {
	for _, p := range d.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}
