package analyzer

import (
	"encoding/binary"

	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
)

const (
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// EthernetAnalyzer is the root analyzer for captures with link-layer
// framing: it strips (possibly QinQ-nested) VLAN tags, records the
// decoded fields on pb.Ethernet, and dispatches by EtherType.
type EthernetAnalyzer struct {
	BaseAnalyzer
}

// NewEthernetAnalyzer returns an EthernetAnalyzer with ipv4 and ipv6 as
// its 0x0800/0x86DD successors.
func NewEthernetAnalyzer(ipv4, ipv6 Analyzer) *EthernetAnalyzer {
	a := &EthernetAnalyzer{BaseAnalyzer: NewBase("Ethernet")}
	if ipv4 != nil {
		a.AddSuccessor(etherTypeIPv4, ipv4)
	}
	if ipv6 != nil {
		a.AddSuccessor(etherTypeIPv6, ipv6)
	}
	return a
}

func (a *EthernetAnalyzer) AnalyzePacket(ctx *Context, pb *packet.Buffer, data []byte) error {
	if len(data) < ethernetHeaderLen {
		ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "Ethernet: frame shorter than a header")
		return packet.ErrTooShort
	}

	copy(pb.Ethernet.DstMAC[:], data[0:6])
	copy(pb.Ethernet.SrcMAC[:], data[6:12])

	etherType := binary.BigEndian.Uint16(data[12:14])
	offset := ethernetHeaderLen

	pb.Ethernet.HasOuter = false
	pb.Ethernet.HasInner = false
	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(data) < offset+vlanHeaderLen {
			ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "Ethernet: truncated VLAN tag")
			return packet.ErrTooShort
		}
		tci := binary.BigEndian.Uint16(data[offset : offset+2])
		vlanID := tci & 0x0FFF
		if !pb.Ethernet.HasOuter {
			pb.Ethernet.OuterVLAN = vlanID
			pb.Ethernet.HasOuter = true
		} else {
			pb.Ethernet.InnerVLAN = vlanID
			pb.Ethernet.HasInner = true
		}
		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	pb.Ethernet.EtherType = etherType
	pb.HdrSize = offset
	pb.L2Valid = true

	return a.ForwardPacket(ctx, int(etherType), pb, data[offset:])
}
