// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"os"
	"os/signal"
	"syscall"
)

// BlockUntilSignal blocks until SIGINT or SIGTERM and returns the
// received signal. It does not stop the runtime and installs no handler
// that kills the process; the caller decides what shutdown means.
func BlockUntilSignal() os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(ch)
	return <-ch
}
