package pipeline

import (
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the packet analysis engine, following the
// teacher's own promauto-registered-package-var pattern rather than a
// metrics struct threaded through every call site.
var (
	packetsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packetcore_packets_received_total",
		Help: "Total number of packets handed to the engine.",
	})
	packetsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packetcore_packets_dropped_total",
		Help: "Total number of packets the dispatch chain failed to decode.",
	})
	weirdsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packetcore_weirds_total",
		Help: "Total number of named protocol anomalies raised, by name.",
	}, []string{"name"})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packetcore_protocol_violations_total",
		Help: "Total number of free-text protocol violations raised, by analyzer.",
	}, []string{"analyzer"})

	fragmentsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "packetcore_fragment_reassembly_active",
		Help: "Number of datagrams currently mid-reassembly, as of the last Advance.",
	})

	fragmentsMaxObserved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "packetcore_fragment_reassembly_table_max_observed",
		Help: "High-water mark of datagrams mid-reassembly at once, since process start.",
	})

	fragmentMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "packetcore_fragment_reassembly_memory_bytes",
		Help: "Bytes currently buffered across every in-flight reassembler, as of the last Advance.",
	})
)

// InstrumentedDispatcher wraps a sessions.Dispatcher and records every
// Weird/ProtocolViolation call against the package's counters before
// delegating, so anomaly production is visible on the metrics
// endpoint without every analyzer needing its own instrumentation.
type InstrumentedDispatcher struct {
	sessions.Dispatcher
}

// Weird records name against weirdsTotal, then delegates.
func (d InstrumentedDispatcher) Weird(name string, hdr *packet.IPHeader, encap *packet.EncapsulationStack, detail string) {
	weirdsTotal.WithLabelValues(name).Inc()
	d.Dispatcher.Weird(name, hdr, encap, detail)
}

// WeirdPacket records name against weirdsTotal, then delegates.
func (d InstrumentedDispatcher) WeirdPacket(name string, pb *packet.Buffer, detail string) {
	weirdsTotal.WithLabelValues(name).Inc()
	d.Dispatcher.WeirdPacket(name, pb, detail)
}

// ProtocolViolation records analyzer against violationsTotal, then
// delegates.
func (d InstrumentedDispatcher) ProtocolViolation(analyzer, reason string, pb *packet.Buffer) {
	violationsTotal.WithLabelValues(analyzer).Inc()
	d.Dispatcher.ProtocolViolation(analyzer, reason, pb)
}
