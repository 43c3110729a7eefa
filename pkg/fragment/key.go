// Package fragment implements the per-flow IP fragment reassembler:
// a hole-tracking buffer with overlap detection and timed expiry,
// keyed by (source, destination, identification).
package fragment

import "net/netip"

// Key uniquely identifies a fragmented IPv4 or IPv6 datagram.
// Identification is widened to 32 bits so the same key shape serves
// both IPv4's 16-bit and IPv6's 32-bit identification field.
type Key struct {
	Src netip.Addr
	Dst netip.Addr
	ID  uint32
}
