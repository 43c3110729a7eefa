// Package pipeline wires the analyzer chain, fragment manager, timer
// arena, and tunnel analyzers into one process-wide engine, and drives
// packets from a capture source through it.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/packetcore/pkg/analyzer"
	"firestige.xyz/packetcore/pkg/analyzer/tunnel"
	"firestige.xyz/packetcore/pkg/fragment"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
	"firestige.xyz/packetcore/pkg/timer"
)

// Config bundles every knob the engine's collaborators need, the
// process-wide analogue of the per-packet KeyStore.
type Config struct {
	Tunnel            tunnel.Config
	FragTimeout       time.Duration
	MaxFragments      int
	MaxReassembleSize int

	// Dump, if non-nil, is the trace-writer sink ProcessPacket writes
	// a frame's bytes to when that frame arrives with DumpPacket set.
	Dump *DumpWriter
}

// Driver is the packet_analysis engine: one Ethernet root analyzer and
// one RawIP root analyzer, each dispatch handed a Context built from
// the same collaborators the driver holds, plus running packet counters. It has no goroutines of
// its own — ProcessPacket is called once per captured frame by
// whatever loop owns the capture source.
type Driver struct {
	cfg Config

	registry *analyzer.Registry
	frags    *fragment.Manager
	timers   *timer.Manager
	disp     sessions.Dispatcher
	dump     *DumpWriter

	ethernetRoot analyzer.Analyzer
	rawIPRoot    analyzer.Analyzer

	received uint64
	decoded  uint64
	dropped  uint64
}

// New builds a fully wired Driver: the Ethernet/RawIP/IPv4/IPv6/UDP
// dispatch chain plus the GRE/IPTunnel/VXLAN/Geneve tunnel analyzers,
// each tunnel analyzer registered into the IP and UDP successor tables
// per its own protocol number or well-known port.
func New(cfg Config, disp sessions.Dispatcher) *Driver {
	disp = InstrumentedDispatcher{Dispatcher: disp}
	timers := timer.NewManager()
	frags := fragment.NewManager(fragment.Config{
		Timeout:                 cfg.FragTimeout,
		MaxFragmentsPerDatagram: cfg.MaxFragments,
		MaxReassembleSize:       cfg.MaxReassembleSize,
	}, timers, disp)
	registry := analyzer.NewRegistry()

	v4 := analyzer.NewIPv4Analyzer()
	v6 := analyzer.NewIPv6Analyzer()
	udp := analyzer.NewUDPAnalyzer()
	eth := analyzer.NewEthernetAnalyzer(v4, v6)
	rawIP := analyzer.NewRawIPAnalyzer(v4, v6)

	ipTunnel := tunnel.NewIPTunnelAnalyzer(cfg.Tunnel, timers)
	gre := tunnel.NewGREAnalyzer(cfg.Tunnel, ipTunnel)
	vxlan := tunnel.NewVXLANAnalyzer(cfg.Tunnel)
	geneve := tunnel.NewGeneveAnalyzer(cfg.Tunnel)

	v4.AddSuccessor(protocolGRE, gre)
	v4.AddSuccessor(protocolIPIP, ipTunnel)
	v4.AddSuccessor(protocolUDP, udp)
	v6.AddSuccessor(protocolGRE, gre)
	v6.AddSuccessor(protocolIPIP, ipTunnel)
	v6.AddSuccessor(protocolUDP, udp)
	udp.AddSuccessor(vxlanPort, vxlan)
	udp.AddSuccessor(genevePort, geneve)

	for _, a := range []analyzer.Analyzer{eth, rawIP, v4, v6, udp, ipTunnel, gre, vxlan, geneve} {
		if err := registry.Register(a); err != nil {
			slog.Warn("pipeline: analyzer registration failed", "error", err)
		}
	}

	d := &Driver{
		cfg:          cfg,
		registry:     registry,
		frags:        frags,
		timers:       timers,
		disp:         disp,
		dump:         cfg.Dump,
		ethernetRoot: eth,
		rawIPRoot:    rawIP,
	}
	return d
}

// DumpActive reports whether a trace-writer sink is wired in, so a
// capture loop knows whether to mark inbound frames DumpPacket before
// handing them to ProcessPacket.
func (d *Driver) DumpActive() bool {
	return d.dump != nil
}

const (
	protocolGRE  = 47
	protocolIPIP = 4
	protocolUDP  = 17

	vxlanPort  = 4789
	genevePort = 6081
)

func (d *Driver) context() *analyzer.Context {
	return &analyzer.Context{
		Disp:           d.disp,
		Frags:          d.frags,
		Timers:         d.timers,
		Registry:       d.registry,
		MaxTunnelDepth: d.cfg.Tunnel.MaxDepth,
		ProcessInner:   d.ProcessInnerPacket,
	}
}

// ProcessPacket is the engine's entry point for a packet freshly drawn
// off a capture source: if a trace-writer sink is active and pb.DumpPacket
// is set, it writes the frame out first, then increments the
// received/decoded/dropped counters and dispatches by pb.LinkType to
// the matching root analyzer.
func (d *Driver) ProcessPacket(pb *packet.Buffer) error {
	if d.dump != nil && pb.DumpPacket {
		if err := d.dump.WritePacket(pb); err != nil {
			slog.Warn("pipeline: trace dump write failed", "error", err)
		}
	}

	d.received++
	packetsReceivedTotal.Inc()
	err := d.dispatch(pb)
	if err != nil {
		d.dropped++
		packetsDroppedTotal.Inc()
		return err
	}
	d.decoded++
	return nil
}

// ProcessInnerPacket dispatches pb exactly like ProcessPacket, minus
// the trace dump and the counter increments: tunnel analyzers call
// this to re-enter the pipeline with a synthesized inner frame, which
// is not itself a distinct packet the capture source ever produced or
// the trace-writer sink should record.
func (d *Driver) ProcessInnerPacket(pb *packet.Buffer) error {
	return d.dispatch(pb)
}

func (d *Driver) dispatch(pb *packet.Buffer) error {
	ctx := d.context()
	switch pb.LinkType {
	case packet.LinkEthernet:
		if d.ethernetRoot == nil {
			return fmt.Errorf("pipeline: no Ethernet root analyzer wired")
		}
		return d.ethernetRoot.AnalyzePacket(ctx, pb, pb.Data())
	case packet.LinkRawIP:
		if d.rawIPRoot == nil {
			return fmt.Errorf("pipeline: no RawIP root analyzer wired")
		}
		return d.rawIPRoot.AnalyzePacket(ctx, pb, pb.Data())
	default:
		return fmt.Errorf("pipeline: unrecognized link type %v", pb.LinkType)
	}
}

// Advance moves the shared timer arena forward to now, expiring any
// fragment reassembly or tunnel inactivity timer whose deadline has
// passed. The caller drives this with each packet's own timestamp —
// there is no wall clock inside the engine.
func (d *Driver) Advance(now time.Time) {
	d.timers.Advance(now)
	fragmentsActive.Set(float64(d.frags.Size()))
	fragmentsMaxObserved.Set(float64(d.frags.MaxFragments()))
	fragmentMemoryBytes.Set(float64(d.frags.MemoryAllocation()))
}

// Shutdown fires every outstanding timer in expired mode and releases
// whatever partial reassembly state remains, matching the fragment
// manager's "no partial delivery" invariant even at process exit. It
// also closes the trace-writer sink, if one is wired in.
func (d *Driver) Shutdown() {
	d.timers.Shutdown()
	if d.dump != nil {
		if err := d.dump.Close(); err != nil {
			slog.Warn("pipeline: trace dump close failed", "error", err)
		}
	}
}

// Stats reports the running packet counters.
func (d *Driver) Stats() Stats {
	return Stats{Received: d.received, Decoded: d.decoded, Dropped: d.dropped}
}

// Stats is a snapshot of the driver's packet counters.
type Stats struct {
	Received uint64
	Decoded  uint64
	Dropped  uint64
}
