package tunnel

import (
	"net/netip"

	"firestige.xyz/packetcore/internal/metrics"
	"firestige.xyz/packetcore/pkg/analyzer"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
)

const (
	vxlanHeaderLen = 8
	vxlanIFlag     = 0x08
)

// VXLANAnalyzer decapsulates a VXLAN header carried over UDP into a
// synthetic Ethernet frame. Unlike GRE and IPTunnel, VXLAN reports its
// own malformations through the free-text ProtocolViolation channel
// rather than the controlled weird vocabulary: header truncation, a
// missing I flag, and inner frame/IP failures are connection-level
// anomalies in the source, not packet_analysis weirds. Depth is the
// one exception, reported as tunnel_depth — a name distinct from
// IPTunnel's exceeded_tunnel_max_depth because VXLAN checks its own
// encapsulation limit independently rather than sharing IPTunnel's.
type VXLANAnalyzer struct {
	analyzer.BaseAnalyzer
	cfg Config
}

// NewVXLANAnalyzer returns a VXLANAnalyzer.
func NewVXLANAnalyzer(cfg Config) *VXLANAnalyzer {
	return &VXLANAnalyzer{BaseAnalyzer: analyzer.NewBase("VXLAN"), cfg: cfg.withDefaults()}
}

func (a *VXLANAnalyzer) AnalyzePacket(ctx *analyzer.Context, pb *packet.Buffer, data []byte) error {
	if !a.cfg.EnableVXLAN {
		ctx.Disp.ProtocolViolation(a.Name(), "VXLAN analyzer disabled", pb)
		return nil
	}
	if len(data) < vxlanHeaderLen {
		ctx.Disp.ProtocolViolation(a.Name(), "VXLAN header truncation", pb)
		return nil
	}
	if data[0]&vxlanIFlag == 0 {
		ctx.Disp.ProtocolViolation(a.Name(), "VXLAN 'I' flag not set", pb)
		return nil
	}

	encap := pb.Keys.Encap
	if encap.Depth() >= a.cfg.MaxDepth {
		hdr, _ := pb.Keys.GetIPHdr()
		ctx.Disp.Weird(sessions.WeirdTunnelDepth, hdr, encap, "")
		return nil
	}

	vni := uint32(data[4])<<16 | uint32(data[5])<<8 | uint32(data[6])

	var srcIP, dstIP netip.Addr
	if outerHdr, ok := pb.Keys.GetIPHdr(); ok && outerHdr != nil {
		srcIP, dstIP = outerHdr.SrcIP, outerHdr.DstIP
	}
	hop := packet.NewEncapsulatingConn(srcIP, dstIP, packet.TunnelVXLAN)
	newEncap := encap.Extend(hop)
	metrics.ObserveTunnelDepth(newEncap.Depth())

	innerFrame := data[vxlanHeaderLen:]
	inner := packet.NewOwned(innerFrame, pb.Timestamp, packet.LinkEthernet, len(innerFrame))
	inner.Keys.Encap = newEncap

	if err := ctx.ProcessInner(inner); err != nil {
		return err
	}

	if !inner.L2Valid {
		ctx.Disp.ProtocolViolation(a.Name(), "VXLAN inner frame invalid", pb)
		return nil
	}
	innerHdr, ok := inner.Keys.GetIPHdr()
	if !ok || innerHdr == nil {
		ctx.Disp.ProtocolViolation(a.Name(), "VXLAN inner IP invalid", pb)
		return nil
	}

	ctx.Disp.Event(sessions.EventVXLANPacket, hop, innerHdr, vni)
	return nil
}
