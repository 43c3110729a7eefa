package analyzer

import (
	"encoding/binary"

	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
)

const (
	udpHeaderLen = 8

	vxlanPort  = 4789
	genevePort = 6081
)

// UDPAnalyzer decodes just enough of a UDP header to look up its
// destination port, and lifts to a tunnel successor (VXLAN, Geneve) by
// port. Ordinary UDP traffic — the overwhelming majority of it — is
// delivered as a terminal datagram exactly like TCP or ICMP.
type UDPAnalyzer struct {
	BaseAnalyzer
}

// NewUDPAnalyzer builds a UDPAnalyzer. Wire vxlan and geneve successors
// with AddSuccessor(vxlanPort, ...) / AddSuccessor(genevePort, ...).
func NewUDPAnalyzer() *UDPAnalyzer {
	return &UDPAnalyzer{BaseAnalyzer: NewBase("UDP")}
}

func (a *UDPAnalyzer) AnalyzePacket(ctx *Context, pb *packet.Buffer, data []byte) error {
	if len(data) < udpHeaderLen {
		ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "UDP: header shorter than 8 bytes")
		return packet.ErrTooShort
	}
	dstPort := binary.BigEndian.Uint16(data[2:4])
	payload := data[udpHeaderLen:]

	succ, ok := a.Successor(int(dstPort))
	if !ok {
		hdr, _ := pb.Keys.GetIPHdr()
		ctx.Disp.Deliver(hdr, payload, pb.Keys.Encap)
		return nil
	}
	return succ.AnalyzePacket(ctx, pb, payload)
}
