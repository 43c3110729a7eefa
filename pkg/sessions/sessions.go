// Package sessions declares the external collaborator interface the
// packet analysis core dispatches into: the session/connection layer,
// scripting event sink, and anomaly ("weird") reporter. No session
// tracking is implemented here: the package holds the Dispatcher
// interface, a logging ConsoleDispatcher for standalone CLI use, and
// the Recorder test double. Application-layer parsing, the scripting
// language, and event delivery are out of this repo's scope and are
// specified only through the shape they expose to the core.
package sessions

import (
	"firestige.xyz/packetcore/pkg/packet"
)

// ParseResult mirrors the four return codes the spec assigns to
// Dispatcher.ParseIPPacket.
type ParseResult int

const (
	ParseOK                  ParseResult = 0
	ParseTruncated           ParseResult = -1
	ParseInvalidVersion      ParseResult = -2
	ParseLengthMismatchAbove ParseResult = 1 // declared length exceeds captured bytes
)

// Weird names the controlled anomaly vocabulary from spec.md §6.
const (
	WeirdTunnelDepth                = "tunnel_depth"
	WeirdExceededTunnelMaxDepth     = "exceeded_tunnel_max_depth"
	WeirdTruncatedGRE               = "truncated_GRE"
	WeirdUnknownGREVersion          = "unknown_gre_version"
	WeirdUnknownGREFlags            = "unknown_gre_flags"
	WeirdGRERouting                 = "gre_routing"
	WeirdNonIPPacketInEncap         = "non_ip_packet_in_encap"
	WeirdEGREProtocolType           = "egre_protocol_type"
	WeirdInvalidInnerIPVersion      = "invalid_inner_IP_version"
	WeirdTruncatedInnerIP           = "truncated_inner_IP"
	WeirdInnerIPPayloadLenMismatch  = "inner_IP_payload_length_mismatch"
	WeirdIPTunnel                   = "IP_tunnel"
	WeirdGRETunnel                  = "GRE_tunnel"
	WeirdFragmentOverlap            = "fragment_overlap"
	WeirdFragmentInconsistency      = "fragment_inconsistency"
	WeirdFragmentProtocolViolation  = "fragment_protocol_violation"

	// WeirdNoSuccessor is not part of the source's fixed vocabulary; it
	// is the generic ForwardPacket fallback §4.1 calls for: "if none
	// found, record a 'no successor' anomaly (non-fatal)".
	WeirdNoSuccessor = "no_successor"
)

// Event names the fire-and-forget events the core itself emits.
// udp_session_done belongs to the connection layer's own UDP session
// lifecycle, which this package's Dispatcher interface exists to hand
// off to rather than track, so it has no analogous constant here.
const (
	EventVXLANPacket = "vxlan_packet"
)

// Dispatcher is the sink the pipeline hands fully decapsulated and
// reassembled IP datagrams, anomalies, and events to.
type Dispatcher interface {
	// ParseIPPacket parses len bytes of data (an IP header, version
	// determined by the first nibble) as proto's payload, and reports
	// the parsed header through innerHdr. See ParseResult for return
	// codes.
	ParseIPPacket(length int, data []byte, proto uint8) (result ParseResult, innerHdr *packet.IPHeader)

	// Deliver hands one fully decapsulated & reassembled IP datagram,
	// plus the encapsulation stack it traversed, to the connection
	// layer.
	Deliver(hdr *packet.IPHeader, payload []byte, encap *packet.EncapsulationStack)

	// Weird reports a named protocol anomaly. encap may be nil.
	Weird(name string, hdr *packet.IPHeader, encap *packet.EncapsulationStack, detail string)

	// WeirdPacket reports an anomaly tied to a whole packet rather
	// than a specific IP header (used before an IP header exists,
	// e.g. a malformed Ethernet frame).
	WeirdPacket(name string, pb *packet.Buffer, detail string)

	// ProtocolViolation reports a free-text analyzer-local anomaly, as
	// distinct from the controlled Weird vocabulary: this is how a
	// connection-level analyzer like VXLAN reports "header truncated"
	// or "I flag not set" without minting a new named weird for every
	// possible malformation.
	ProtocolViolation(analyzer, reason string, pb *packet.Buffer)

	// Event fires a named event for the scripting collaborator, e.g.
	// vxlan_packet. udp_session_done is the connection layer's own
	// event to fire, once it tears down a UDP session; nothing in this
	// package's dispatch surface owns that lifecycle.
	Event(name string, args ...any)
}
