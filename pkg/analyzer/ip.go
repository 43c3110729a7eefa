package analyzer

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/packetcore/pkg/fragment"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
)

const (
	protocolGRE  = 47
	protocolIPIP = 4
	protocolUDP  = 17

	ipv6FragmentExtHeader = 44
)

// IPv4Analyzer decodes an IPv4 header, hands fragments to the shared
// fragment.Manager, and either forwards a reassembled or unfragmented
// datagram to a registered tunnel successor (by protocol number) or
// delivers it as an ordinary terminal datagram.
type IPv4Analyzer struct {
	BaseAnalyzer
}

// NewIPv4Analyzer builds an IPv4Analyzer. Tunnel successors are wired
// afterward with AddSuccessor(protocolGRE, ...), AddSuccessor(protocolIPIP, ...),
// AddSuccessor(protocolUDP, ...).
func NewIPv4Analyzer() *IPv4Analyzer {
	return &IPv4Analyzer{BaseAnalyzer: NewBase("IPv4")}
}

func (a *IPv4Analyzer) AnalyzePacket(ctx *Context, pb *packet.Buffer, data []byte) error {
	if len(data) < 20 {
		ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "IPv4: header shorter than 20 bytes")
		return packet.ErrTooShort
	}
	ihl := int(data[0]&0x0F) * 4
	if ihl < 20 || len(data) < ihl {
		ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "IPv4: invalid IHL")
		return packet.ErrTooShort
	}

	totalLen := int(binary.BigEndian.Uint16(data[2:4]))
	if totalLen < ihl || totalLen > len(data) {
		totalLen = len(data)
	}

	flagsOffset := binary.BigEndian.Uint16(data[6:8])
	src, _ := netip.AddrFromSlice(data[12:16])
	dst, _ := netip.AddrFromSlice(data[16:20])

	hdr := &packet.IPHeader{
		Version:       4,
		SrcIP:         src,
		DstIP:         dst,
		Protocol:      data[9],
		TTL:           data[8],
		TotalLen:      totalLen,
		HeaderLen:     ihl,
		ID:            uint32(binary.BigEndian.Uint16(data[4:6])),
		MoreFragments: flagsOffset&0x2000 != 0,
		FragOffset:    int(flagsOffset&0x1FFF) * 8,
		Raw:           append([]byte(nil), data[:ihl]...),
	}
	pb.Keys.SetIPHdr(hdr)
	pb.L3Proto = packet.L3IPv4

	return dispatchIP(ctx, pb, &a.BaseAnalyzer, hdr, data[ihl:totalLen])
}

// IPv6Analyzer decodes the fixed IPv6 header plus, if present, a single
// immediately-following fragment extension header. Other extension
// header types are not walked; NextHeader is taken as the upper-layer
// protocol directly, which covers every case this analysis core is
// asked to decapsulate.
type IPv6Analyzer struct {
	BaseAnalyzer
}

func NewIPv6Analyzer() *IPv6Analyzer {
	return &IPv6Analyzer{BaseAnalyzer: NewBase("IPv6")}
}

func (a *IPv6Analyzer) AnalyzePacket(ctx *Context, pb *packet.Buffer, data []byte) error {
	if len(data) < 40 {
		ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "IPv6: header shorter than 40 bytes")
		return packet.ErrTooShort
	}
	payloadLen := int(binary.BigEndian.Uint16(data[4:6]))
	nextHeader := data[6]
	src, _ := netip.AddrFromSlice(data[8:24])
	dst, _ := netip.AddrFromSlice(data[24:40])

	totalLen := 40 + payloadLen
	if totalLen > len(data) || payloadLen == 0 {
		totalLen = len(data)
	}

	headerLen := 40
	var id uint32
	var moreFrags bool
	var fragOffset int
	isFragment := nextHeader == ipv6FragmentExtHeader

	if isFragment {
		if len(data) < headerLen+8 {
			ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "IPv6: truncated fragment header")
			return packet.ErrTooShort
		}
		fragHdr := data[headerLen : headerLen+8]
		nextHeader = fragHdr[0]
		offsetFlags := binary.BigEndian.Uint16(fragHdr[2:4])
		fragOffset = int(offsetFlags&0xFFF8) * 1
		moreFrags = offsetFlags&0x1 != 0
		id = binary.BigEndian.Uint32(fragHdr[4:8])
		headerLen += 8
	}

	hdr := &packet.IPHeader{
		Version:       6,
		SrcIP:         src,
		DstIP:         dst,
		Protocol:      nextHeader,
		TotalLen:      totalLen,
		HeaderLen:     headerLen,
		ID:            id,
		MoreFragments: moreFrags,
		FragOffset:    fragOffset,
		Raw:           append([]byte(nil), data[:headerLen]...),
	}
	pb.Keys.SetIPHdr(hdr)
	pb.L3Proto = packet.L3IPv6

	return dispatchIP(ctx, pb, &a.BaseAnalyzer, hdr, data[headerLen:totalLen])
}

// dispatchIP folds a fragment into the shared fragment.Manager if hdr
// describes one, then forwards the (possibly reassembled) datagram to
// whichever tunnel successor is registered for hdr.Protocol, or
// delivers it as an ordinary terminal datagram if none is.
func dispatchIP(ctx *Context, pb *packet.Buffer, base *BaseAnalyzer, hdr *packet.IPHeader, payload []byte) error {
	if hdr.IsFragment() {
		key := fragment.Key{Src: hdr.SrcIP, Dst: hdr.DstIP, ID: hdr.ID}
		reassembled, complete := ctx.Frags.NextFragment(pb.Timestamp, key, hdr, payload)
		if !complete {
			return nil
		}
		payload = reassembled[hdr.HeaderLen:]
	}

	succ, ok := base.Successor(int(hdr.Protocol))
	if !ok {
		ctx.Disp.Deliver(hdr, payload, pb.Keys.Encap)
		return nil
	}
	return succ.AnalyzePacket(ctx, pb, payload)
}
