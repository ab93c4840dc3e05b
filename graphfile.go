// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamlib

import (
	"encoding/json"
	"fmt"
)

// GraphFile is the boundary format for loading a pipeline from an
// opaque JSON blob. The core only requires that nodes reference
// registered processor types and links reference valid ports; the rest
// of the file's schema belongs to the surrounding tooling.
type GraphFile struct {
	Processors []GraphFileProcessor `json:"processors"`
	Links      []GraphFileLink      `json:"links"`
}

// GraphFileProcessor declares one node. An empty ID selects a canonical
// generated id.
type GraphFileProcessor struct {
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// GraphFileLink declares one connection in "processor.port" form.
type GraphFileLink struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ApplyGraphJSON loads a graph file into the runtime: every processor
// is added, then every link. Errors name the offending entry and stop
// the load; in Auto mode the nodes added so far are already committed,
// so callers that want all-or-nothing load in Manual mode and commit
// afterwards.
func (r *Runtime) ApplyGraphJSON(data []byte) error {
	var gf GraphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return fmt.Errorf("parsing graph file: %w", err)
	}
	return r.ApplyGraphFile(&gf)
}

// ApplyGraphFile loads an already-decoded graph file.
func (r *Runtime) ApplyGraphFile(gf *GraphFile) error {
	for i, p := range gf.Processors {
		if p.Type == "" {
			return fmt.Errorf("graph file processor %d: missing type", i)
		}
		var err error
		if p.ID == "" {
			_, err = r.AddProcessor(p.Type, p.Config)
		} else {
			_, err = r.AddProcessorWithID(p.ID, p.Type, p.Config)
		}
		if err != nil {
			return fmt.Errorf("graph file processor %d: %w", i, err)
		}
	}
	for i, l := range gf.Links {
		if _, err := r.Connect(l.From, l.To); err != nil {
			return fmt.Errorf("graph file link %d (%s -> %s): %w", i, l.From, l.To, err)
		}
	}
	return nil
}
