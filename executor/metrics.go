// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transport overflow is the runtime's backpressure signal: it is
// counted here and announced nowhere else — never propagated to the
// producer's caller.
var (
	linkDroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamlib_link_dropped_frames_total",
		Help: "Frames dropped per link because the ring buffer was full.",
	}, []string{"link_id"})

	processorsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamlib_processors_running",
		Help: "Processor workers currently in the Running or Paused state.",
	})

	processorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamlib_processor_failures_total",
		Help: "Process errors and worker panics per processor.",
	}, []string{"processor_id"})
)
