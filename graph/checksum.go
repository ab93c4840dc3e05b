// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package graph

import (
	"github.com/cespare/xxhash/v2"
)

// The checksum is the XOR of one xxhash per topology entity. XOR makes
// maintenance incremental and self-inverse: adding then removing the
// same entity restores the previous value exactly, which is what gives
// add/remove and connect/disconnect their round-trip property.

func nodeHash(n *Node) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString("node\x00")
	_, _ = d.WriteString(n.ID)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(n.Type)
	_, _ = d.WriteString("\x00")
	_, _ = d.Write(n.Config)
	return d.Sum64()
}

func linkHash(l *LinkDesc) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString("link\x00")
	_, _ = d.WriteString(string(l.ID))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(l.From.String())
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(l.To.String())
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(l.Schema)
	return d.Sum64()
}
