package tunnel

import (
	"net/netip"

	"firestige.xyz/packetcore/internal/metrics"
	"firestige.xyz/packetcore/pkg/analyzer"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
)

const geneveHeaderLen = 8

// GeneveAnalyzer decapsulates a Geneve header into a synthetic
// Ethernet frame. Geneve is not in the source's packet_analysis tree
// this spec was drawn from, but the teacher already carries a
// simplified Geneve decoder alongside its VXLAN one, so this analyzer
// generalizes that: only the fixed 8-byte header plus its variable
// options length are validated, options themselves are skipped
// unparsed, and depth/malformation reporting matches VXLAN's — a
// ProtocolViolation channel rather than a named weird, since neither
// the source nor the teacher gives Geneve its own weird vocabulary.
type GeneveAnalyzer struct {
	analyzer.BaseAnalyzer
	cfg Config
}

// NewGeneveAnalyzer returns a GeneveAnalyzer.
func NewGeneveAnalyzer(cfg Config) *GeneveAnalyzer {
	return &GeneveAnalyzer{BaseAnalyzer: analyzer.NewBase("Geneve"), cfg: cfg.withDefaults()}
}

func (a *GeneveAnalyzer) AnalyzePacket(ctx *analyzer.Context, pb *packet.Buffer, data []byte) error {
	if !a.cfg.EnableGeneve {
		ctx.Disp.ProtocolViolation(a.Name(), "Geneve analyzer disabled", pb)
		return nil
	}
	if len(data) < geneveHeaderLen {
		ctx.Disp.ProtocolViolation(a.Name(), "Geneve header truncation", pb)
		return nil
	}

	version := data[0] >> 6
	if version != 0 {
		ctx.Disp.ProtocolViolation(a.Name(), "Geneve unsupported version", pb)
		return nil
	}
	optLen := int(data[0] & 0x3F)
	headerLen := geneveHeaderLen + optLen*4
	if len(data) < headerLen {
		ctx.Disp.ProtocolViolation(a.Name(), "Geneve header truncation", pb)
		return nil
	}

	encap := pb.Keys.Encap
	if encap.Depth() >= a.cfg.MaxDepth {
		hdr, _ := pb.Keys.GetIPHdr()
		ctx.Disp.Weird(sessions.WeirdTunnelDepth, hdr, encap, "")
		return nil
	}

	var srcIP, dstIP netip.Addr
	if outerHdr, ok := pb.Keys.GetIPHdr(); ok && outerHdr != nil {
		srcIP, dstIP = outerHdr.SrcIP, outerHdr.DstIP
	}
	hop := packet.NewEncapsulatingConn(srcIP, dstIP, packet.TunnelGeneve)
	newEncap := encap.Extend(hop)
	metrics.ObserveTunnelDepth(newEncap.Depth())

	innerFrame := data[headerLen:]
	inner := packet.NewOwned(innerFrame, pb.Timestamp, packet.LinkEthernet, len(innerFrame))
	inner.Keys.Encap = newEncap

	if err := ctx.ProcessInner(inner); err != nil {
		return err
	}

	if !inner.L2Valid {
		ctx.Disp.ProtocolViolation(a.Name(), "Geneve inner frame invalid", pb)
		return nil
	}
	if _, ok := inner.Keys.GetIPHdr(); !ok {
		ctx.Disp.ProtocolViolation(a.Name(), "Geneve inner IP invalid", pb)
		return nil
	}

	return nil
}
