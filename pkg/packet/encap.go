package packet

import (
	"net/netip"

	"github.com/google/uuid"
)

// EncapsulatingConn identifies one tunnel hop a packet has traversed:
// the outer endpoints and the tunnel kind. The IPTunnel analyzer reuses
// one hop, and so one UID, for every packet of the same IP or GRE tunnel
// (in either direction), so downstream connection analysis can correlate
// them; VXLAN and Geneve mint a fresh hop for each packet.
type EncapsulatingConn struct {
	SrcIP netip.Addr
	DstIP netip.Addr
	Type  TunnelType
	UID   uuid.UUID
}

// NewEncapsulatingConn builds a hop with a freshly minted UID. Callers
// that need the "same tunnel, same UID" identity (§4.2 IP tunnel
// symmetry) look up an existing hop instead of calling this directly.
func NewEncapsulatingConn(src, dst netip.Addr, kind TunnelType) EncapsulatingConn {
	return EncapsulatingConn{SrcIP: src, DstIP: dst, Type: kind, UID: uuid.New()}
}

// EncapsulationStack is the bounded, ordered list of tunnel hops a
// packet has traversed. It is passed by value-ish handle: Extend
// clones the receiver and appends, so a parent packet's stack is
// never mutated by an inner re-entry.
type EncapsulationStack struct {
	hops []EncapsulatingConn
}

// Depth returns the number of tunnel hops so far.
func (s *EncapsulationStack) Depth() int {
	if s == nil {
		return 0
	}
	return len(s.hops)
}

// Hops returns the ordered hop list. The caller must not mutate it.
func (s *EncapsulationStack) Hops() []EncapsulatingConn {
	if s == nil {
		return nil
	}
	return s.hops
}

// Extend returns a new stack that is a clone of the receiver (nil
// receiver treated as empty) with hop appended. It never mutates s.
func (s *EncapsulationStack) Extend(hop EncapsulatingConn) *EncapsulationStack {
	var depth int
	if s != nil {
		depth = len(s.hops)
	}
	next := make([]EncapsulatingConn, depth, depth+1)
	if s != nil {
		copy(next, s.hops)
	}
	next = append(next, hop)
	return &EncapsulationStack{hops: next}
}

// Innermost returns the most recently pushed hop, or the zero value
// and false if the stack is empty.
func (s *EncapsulationStack) Innermost() (EncapsulatingConn, bool) {
	if s == nil || len(s.hops) == 0 {
		return EncapsulatingConn{}, false
	}
	return s.hops[len(s.hops)-1], true
}
