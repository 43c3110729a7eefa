package analyzer

import (
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
)

// RawIPAnalyzer is the root analyzer for captures with no link-layer
// framing (DLT_RAW-style sources, and synthetic inner frames a tunnel
// analyzer builds for a raw-IP inner packet): it looks at the version
// nibble and dispatches straight to IPv4 or IPv6.
type RawIPAnalyzer struct {
	BaseAnalyzer
	ipv4 Analyzer
	ipv6 Analyzer
}

// NewRawIPAnalyzer builds a RawIPAnalyzer dispatching to ipv4 or ipv6
// by the first nibble of the captured bytes.
func NewRawIPAnalyzer(ipv4, ipv6 Analyzer) *RawIPAnalyzer {
	return &RawIPAnalyzer{BaseAnalyzer: NewBase("RawIP"), ipv4: ipv4, ipv6: ipv6}
}

func (a *RawIPAnalyzer) AnalyzePacket(ctx *Context, pb *packet.Buffer, data []byte) error {
	if len(data) < 1 {
		ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "RawIP: empty payload")
		return packet.ErrTooShort
	}
	switch data[0] >> 4 {
	case 4:
		if a.ipv4 == nil {
			ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "RawIP: no IPv4 successor wired")
			return nil
		}
		return a.ipv4.AnalyzePacket(ctx, pb, data)
	case 6:
		if a.ipv6 == nil {
			ctx.Disp.WeirdPacket(sessions.WeirdNoSuccessor, pb, "RawIP: no IPv6 successor wired")
			return nil
		}
		return a.ipv6.AnalyzePacket(ctx, pb, data)
	default:
		ctx.Disp.WeirdPacket(sessions.WeirdInvalidInnerIPVersion, pb, "")
		return nil
	}
}
