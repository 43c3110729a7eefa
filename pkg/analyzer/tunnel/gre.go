// Package tunnel implements the GRE, IP-in-IP, VXLAN, and Geneve
// tunnel analyzers: each strips its wire header, pushes an
// EncapsulatingConn onto the packet's encapsulation stack, and
// re-enters the pipeline with the inner payload.
package tunnel

import (
	"fmt"
	"time"

	"firestige.xyz/packetcore/pkg/analyzer"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
)

// Config bounds and enables the tunnel analyzers, mirroring the
// process-wide Tunnel::* options the source reads from configuration.
type Config struct {
	EnableGRE       bool
	EnableIP        bool
	EnableVXLAN     bool
	EnableGeneve    bool
	MaxDepth        int
	IPTunnelTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 8
	}
	if c.IPTunnelTimeout <= 0 {
		c.IPTunnelTimeout = 24 * time.Hour
	}
	return c
}

const (
	greFlagChecksum = 0x8000
	greFlagRouting  = 0x4000
	greFlagKey      = 0x2000
	greFlagSeq      = 0x1000
	greFlagReserved = 0x0078
	greFlagAck      = 0x0080

	greProtoTEB       = 0x6558
	greProtoERSPAN2   = 0x88be
	greProtoERSPAN3   = 0x22eb
	greProtoEnhanced  = 0x880b
	pppProtoIPv4      = 0x0021
	pppProtoIPv6      = 0x0057

	ipProtoIPv4 = 4
	ipProtoIPv6 = 41
)

func greHeaderLen(flags uint16) int {
	n := 4
	if flags&greFlagChecksum != 0 {
		n += 4
	}
	if flags&greFlagKey != 0 {
		n += 4
	}
	if flags&greFlagSeq != 0 {
		n += 4
	}
	if flags&greFlagAck != 0 {
		n += 4
	}
	return n
}

// GREAnalyzer decapsulates GRE (versions 0 and 1/PPTP), including the
// transparent-ethernet-bridging and ERSPAN II/III variants of version
// 0, and always hands its result to the same next analyzer: GRE is
// just an IP tunnel carrier once its own header is stripped.
type GREAnalyzer struct {
	analyzer.BaseAnalyzer
	cfg  Config
	next analyzer.Analyzer
}

// NewGREAnalyzer returns a GREAnalyzer that forwards every successfully
// decapsulated packet to next (ordinarily the IPTunnelAnalyzer).
func NewGREAnalyzer(cfg Config, next analyzer.Analyzer) *GREAnalyzer {
	return &GREAnalyzer{BaseAnalyzer: analyzer.NewBase("GRE"), cfg: cfg.withDefaults(), next: next}
}

func (a *GREAnalyzer) AnalyzePacket(ctx *analyzer.Context, pb *packet.Buffer, data []byte) error {
	hdr, _ := pb.Keys.GetIPHdr()
	encap := pb.Keys.Encap

	if !a.cfg.EnableGRE {
		ctx.Disp.Weird(sessions.WeirdGRETunnel, hdr, encap, "")
		return nil
	}
	if len(data) < 4 {
		ctx.Disp.Weird(sessions.WeirdTruncatedGRE, hdr, encap, "")
		return nil
	}

	flagsVer := be16(data[0:2])
	protoType := be16(data[2:4])
	greVersion := int(flagsVer & 0x0007)

	if greVersion != 0 && greVersion != 1 {
		ctx.Disp.Weird(sessions.WeirdUnknownGREVersion, hdr, encap, fmt.Sprintf("%d", greVersion))
		return nil
	}

	greLen := greHeaderLen(flagsVer)
	var ethLen, pppLen, erspanLen int
	linkType := packet.LinkRawIP

	if greVersion == 0 {
		switch protoType {
		case greProtoTEB:
			if len(data) <= greLen+14 {
				ctx.Disp.Weird(sessions.WeirdTruncatedGRE, hdr, encap, "")
				return nil
			}
			ethLen = 14
			linkType = packet.LinkEthernet
		case greProtoERSPAN2:
			if len(data) <= greLen+14+8 {
				ctx.Disp.Weird(sessions.WeirdTruncatedGRE, hdr, encap, "")
				return nil
			}
			erspanLen = 8
			ethLen = 14
			linkType = packet.LinkEthernet
		case greProtoERSPAN3:
			if len(data) <= greLen+14+12 {
				ctx.Disp.Weird(sessions.WeirdTruncatedGRE, hdr, encap, "")
				return nil
			}
			erspanLen = 12
			ethLen = 14
			linkType = packet.LinkEthernet
			flagsByte := data[greLen+erspanLen-1]
			if flagsByte&0x01 == 0x01 {
				if len(data) <= greLen+erspanLen+8+ethLen {
					ctx.Disp.Weird(sessions.WeirdTruncatedGRE, hdr, encap, "")
					return nil
				}
				erspanLen += 8
			}
		}
	} else if protoType != greProtoEnhanced {
		ctx.Disp.Weird(sessions.WeirdEGREProtocolType, hdr, encap, fmt.Sprintf("%d", protoType))
		return nil
	}

	if flagsVer&greFlagRouting != 0 {
		ctx.Disp.Weird(sessions.WeirdGRERouting, hdr, encap, "")
		return nil
	}
	if flagsVer&greFlagReserved != 0 {
		ctx.Disp.Weird(sessions.WeirdUnknownGREFlags, hdr, encap, "")
		return nil
	}
	if greVersion == 1 {
		pppLen = 4
	}
	if len(data) < greLen+pppLen+ethLen+erspanLen {
		ctx.Disp.Weird(sessions.WeirdTruncatedGRE, hdr, encap, "")
		return nil
	}

	var proto int
	hasProto := false
	if greVersion == 1 {
		pppProto := be16(data[greLen+2 : greLen+4])
		if pppProto != pppProtoIPv4 && pppProto != pppProtoIPv6 {
			ctx.Disp.Weird(sessions.WeirdNonIPPacketInEncap, hdr, encap, "")
			return nil
		}
		if pppProto == pppProtoIPv4 {
			proto = ipProtoIPv4
		} else {
			proto = ipProtoIPv6
		}
		hasProto = true
	}

	pb.Keys.SetTunnelType(packet.TunnelGRE)
	pb.Keys.SetGREVersion(greVersion)
	pb.Keys.SetGRELinkType(linkType)
	if hasProto {
		pb.Keys.SetProto(proto)
	}

	inner := data[greLen+pppLen+erspanLen:]
	if a.next == nil {
		ctx.Disp.Weird(sessions.WeirdNoSuccessor, hdr, encap, a.Name())
		return nil
	}
	return a.next.AnalyzePacket(ctx, pb, inner)
}

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
