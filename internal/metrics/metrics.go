// Package metrics implements the process-wide Prometheus metrics
// surface: capture-level counters that live above any single pipeline
// driver, exposed the same package-var-of-promauto-collectors way the
// original capture agent does it.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturePacketsTotal counts frames read off a capture source,
	// before the analyzer chain ever sees them.
	CapturePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetcore_capture_packets_total",
			Help: "Total number of packets read from a capture source.",
		},
		[]string{"source"},
	)

	// CaptureDropsTotal counts frames a Source failed to hand to the
	// engine (a read error other than end of file).
	CaptureDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packetcore_capture_drops_total",
			Help: "Total number of packets dropped while reading from a capture source.",
		},
		[]string{"source"},
	)

	// EngineStatus tracks whether the engine is currently running,
	// mirroring the source system's per-task status gauge.
	EngineStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "packetcore_engine_status",
			Help: "Current engine status (0=stopped, 1=running, 2=error).",
		},
	)

	// TunnelDepthMaxObserved tracks the deepest encapsulation stack
	// seen since process start, useful for tuning MaxDepth without
	// scanning weird logs.
	TunnelDepthMaxObserved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "packetcore_tunnel_depth_max_observed",
			Help: "Deepest encapsulation stack observed since process start.",
		},
	)
)

// EngineStatusStopped, EngineStatusRunning and EngineStatusError name
// EngineStatus's numeric levels.
const (
	EngineStatusStopped = 0
	EngineStatusRunning = 1
	EngineStatusError   = 2
)

var maxDepthObserved atomic.Int64

// ObserveTunnelDepth updates TunnelDepthMaxObserved if depth is a new
// maximum. The atomic compare-and-swap loop, not the gauge itself,
// is the source of truth for "is this a new max" — a Prometheus Gauge
// has no read-back, only Set/Inc/Dec.
func ObserveTunnelDepth(depth int) {
	for {
		cur := maxDepthObserved.Load()
		if int64(depth) <= cur {
			return
		}
		if maxDepthObserved.CompareAndSwap(cur, int64(depth)) {
			TunnelDepthMaxObserved.Set(float64(depth))
			return
		}
	}
}
