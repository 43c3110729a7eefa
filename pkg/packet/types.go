package packet

import "net/netip"

// LinkType identifies the framing of a captured or synthesized frame,
// analogous to a pcap DLT_* constant.
type LinkType int

const (
	LinkUnknown LinkType = iota
	LinkEthernet
	LinkRawIP
)

func (l LinkType) String() string {
	switch l {
	case LinkEthernet:
		return "ethernet"
	case LinkRawIP:
		return "raw-ip"
	default:
		return "unknown"
	}
}

// L3Proto is the network-layer protocol carried by a frame, valid once
// the link-layer analyzer has run.
type L3Proto int

const (
	L3Unknown L3Proto = iota
	L3IPv4
	L3IPv6
	L3ARP
)

func (p L3Proto) String() string {
	switch p {
	case L3IPv4:
		return "ipv4"
	case L3IPv6:
		return "ipv6"
	case L3ARP:
		return "arp"
	default:
		return "unknown"
	}
}

// TunnelType names the encapsulation kind of one hop on an
// EncapsulationStack.
type TunnelType int

const (
	TunnelNone TunnelType = iota
	TunnelGRE
	TunnelIP
	TunnelVXLAN
	TunnelGeneve
)

func (t TunnelType) String() string {
	switch t {
	case TunnelGRE:
		return "GRE"
	case TunnelIP:
		return "IP"
	case TunnelVXLAN:
		return "VXLAN"
	case TunnelGeneve:
		return "Geneve"
	default:
		return "none"
	}
}

// IPHeader is a decoded view of an IPv4 or IPv6 header, shared between
// the analyzer chain, the fragment reassembler, and the sessions
// collaborator's ParseIPPacket contract.
type IPHeader struct {
	Version   uint8
	SrcIP     netip.Addr
	DstIP     netip.Addr
	Protocol  uint8 // next-header / protocol number
	TTL       uint8
	TotalLen  int // total datagram length as declared in the header
	HeaderLen int // bytes consumed by the header (+ IPv6 ext headers up to the fragment header)

	// Fragmentation fields. ID is 16 bits for IPv4, 32 bits for IPv6;
	// stored widened so FragReassemblerKey does not need two shapes.
	ID            uint32
	MoreFragments bool
	FragOffset    int // byte offset of this fragment's payload, not the 8-byte unit field

	// Raw holds the captured header bytes (IPv4 options, or the IPv6
	// chain up to and including the fragment header) that become the
	// reassembled packet's header prefix.
	Raw []byte
}

// IsFragment reports whether this header describes part of a
// fragmented datagram.
func (h IPHeader) IsFragment() bool {
	return h.MoreFragments || h.FragOffset != 0
}
