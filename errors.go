// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamlib

import (
	"code.hybscloud.com/iox"
)

// ErrWouldBlock is the transport backpressure signal: a ring-buffer
// push found the buffer full, or a pop found it empty. It is a control
// flow signal, not a failure — the runtime counts overflow in metrics
// and never propagates it to the producer's caller.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
//
// Failure errors use package-level sentinels instead, classified with
// errors.Is:
//
//	processor.ErrNotFound        unknown or uninstantiable processor type
//	processor.ErrEmptyRegistry   runtime started with no types linked
//	schema.ErrAlreadyRegistered  duplicate schema name
//	schema.ErrNotFound           unknown schema
//	graph.ErrNodeExists          processor id collision
//	graph.ErrNodeNotFound        unknown processor id
//	graph.ErrLinkNotFound        unknown link id
//	graph.ErrPortNotFound        port name absent from the descriptor
//	graph.ErrSchemaIncompatible  connect across incompatible schemas
//	graph.ErrFanIn               second source on a single-source input
//	executor.ErrAlreadyRunning   start while running
//	executor.ErrNotRunning       stop/pause while stopped
//	executor.ErrNotPaused        resume without pause
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err is the transport backpressure
// signal. Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}
