// Package analyzer implements the packet analysis dispatch chain: a
// registry of named analyzers, each with an integer-discriminator-keyed
// successor table, that hand a packet down from link layer through IP,
// tunnel decapsulation, and transport identification.
package analyzer

import (
	"firestige.xyz/packetcore/pkg/fragment"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
	"firestige.xyz/packetcore/pkg/timer"
)

// Context bundles the process-wide collaborators every analyzer needs,
// as opposed to the per-packet state that already lives on
// packet.Buffer (Keys, Timestamp, Ethernet view). The pipeline driver
// builds a Context for each dispatch from the same long-lived
// collaborators; analyzers treat it as read-only.
type Context struct {
	Disp           sessions.Dispatcher
	Frags          *fragment.Manager
	Timers         *timer.Manager
	Registry       *Registry
	MaxTunnelDepth int

	// ProcessInner is the pipeline driver's ProcessInnerPacket entry
	// point: dispatch pb to the root analyzer matching pb.LinkType,
	// without the dumper/counter side effects ProcessPacket has for a
	// packet drawn fresh off the capture source. Tunnel analyzers call
	// this to re-enter the pipeline with a synthesized inner frame
	// instead of holding their own reference to the Ethernet/RawIP
	// root analyzers.
	ProcessInner func(pb *packet.Buffer) error
}

// Analyzer is one node in the dispatch chain. AnalyzePacket receives
// the slice of pb's data this analyzer is responsible for (not
// necessarily pb.Data() itself, once earlier analyzers have consumed
// header bytes) and either decodes further, forwards to a successor,
// or terminates by delivering to the sessions collaborator.
type Analyzer interface {
	Name() string
	AnalyzePacket(ctx *Context, pb *packet.Buffer, data []byte) error
}

// BaseAnalyzer implements the successor table and generic ForwardPacket
// contract shared by every concrete analyzer. Concrete analyzers embed
// it and call AddSuccessor during construction.
type BaseAnalyzer struct {
	name       string
	successors map[int]Analyzer
}

// NewBase returns a BaseAnalyzer ready to have successors registered.
func NewBase(name string) BaseAnalyzer {
	return BaseAnalyzer{name: name, successors: make(map[int]Analyzer)}
}

func (b *BaseAnalyzer) Name() string { return b.name }

// AddSuccessor registers the analyzer reached when this analyzer's
// discriminator (an EtherType, IP protocol number, GRE protocol type,
// UDP destination port, ...) equals key.
func (b *BaseAnalyzer) AddSuccessor(key int, a Analyzer) {
	b.successors[key] = a
}

// Successor looks up key without forwarding, for callers (IP, UDP) that
// need to tell "no tunnel here, this is an ordinary terminal protocol"
// apart from "the dispatch table doesn't know what to do with this".
func (b *BaseAnalyzer) Successor(key int) (Analyzer, bool) {
	a, ok := b.successors[key]
	return a, ok
}

// ForwardPacket looks up key's successor and hands data to it. If no
// successor is registered, it records a non-fatal no_successor weird
// and returns nil rather than an error: a dead end in the dispatch
// graph is never itself fatal to the packet.
func (b *BaseAnalyzer) ForwardPacket(ctx *Context, key int, pb *packet.Buffer, data []byte) error {
	succ, ok := b.successors[key]
	if !ok {
		hdr, _ := pb.Keys.GetIPHdr()
		ctx.Disp.Weird(sessions.WeirdNoSuccessor, hdr, pb.Keys.Encap, b.name)
		return nil
	}
	return succ.AnalyzePacket(ctx, pb, data)
}
