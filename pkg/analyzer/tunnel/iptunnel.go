package tunnel

import (
	"net/netip"
	"time"

	"firestige.xyz/packetcore/internal/metrics"
	"firestige.xyz/packetcore/pkg/analyzer"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
	"firestige.xyz/packetcore/pkg/timer"
)

// endpointPair is the canonicalized (min, max) address pair an IP
// tunnel is keyed by, so both directions of one tunnel share one
// identity.
type endpointPair struct {
	lo, hi netip.Addr
}

func canonicalPair(a, b netip.Addr) endpointPair {
	if a.Compare(b) <= 0 {
		return endpointPair{lo: a, hi: b}
	}
	return endpointPair{lo: b, hi: a}
}

type tunnelEntry struct {
	conn       packet.EncapsulatingConn
	lastActive time.Time
	handle     timer.Handle
}

// IPTunnelAnalyzer decapsulates IP-in-IP and GRE-carried payloads. It
// is the only tunnel analyzer that tracks a long-lived identity map
// (ip_tunnels): the same physical tunnel, seen from either direction,
// shares one EncapsulatingConn UID across every packet that traverses
// it, with an inactivity timer that keeps the entry alive only while
// traffic continues.
type IPTunnelAnalyzer struct {
	analyzer.BaseAnalyzer
	cfg     Config
	timers  *timer.Manager
	tunnels map[endpointPair]*tunnelEntry
}

// NewIPTunnelAnalyzer returns an IPTunnelAnalyzer. timers is the
// pipeline's shared cooperative timer arena.
func NewIPTunnelAnalyzer(cfg Config, timers *timer.Manager) *IPTunnelAnalyzer {
	return &IPTunnelAnalyzer{
		BaseAnalyzer: analyzer.NewBase("IPTunnel"),
		cfg:          cfg.withDefaults(),
		timers:       timers,
		tunnels:      make(map[endpointPair]*tunnelEntry),
	}
}

func (a *IPTunnelAnalyzer) AnalyzePacket(ctx *analyzer.Context, pb *packet.Buffer, data []byte) error {
	hdr, ok := pb.Keys.GetIPHdr()
	if !ok || hdr == nil {
		return packet.ErrTooShort
	}
	encap := pb.Keys.Encap

	if !a.cfg.EnableIP {
		ctx.Disp.Weird(sessions.WeirdIPTunnel, hdr, encap, "")
		return nil
	}
	if encap.Depth() >= a.cfg.MaxDepth {
		ctx.Disp.Weird(sessions.WeirdExceededTunnelMaxDepth, hdr, encap, "")
		return nil
	}

	proto, _ := pb.Keys.GetProto()
	greVersion, hasGREVersion := pb.Keys.GetGREVersion()
	if !hasGREVersion {
		greVersion = -1
	}
	tunnelType, hasTunnelType := pb.Keys.GetTunnelType()
	if !hasTunnelType {
		tunnelType = packet.TunnelIP
	}
	greLinkType, hasGRELinkType := pb.Keys.GetGRELinkType()
	if !hasGRELinkType {
		greLinkType = packet.LinkRawIP
	}

	var innerLen int
	if greVersion != 0 {
		result, inner := ctx.Disp.ParseIPPacket(len(data), data, uint8(proto))
		switch result {
		case sessions.ParseInvalidVersion:
			ctx.Disp.Weird(sessions.WeirdInvalidInnerIPVersion, hdr, encap, "")
		case sessions.ParseTruncated:
			ctx.Disp.Weird(sessions.WeirdTruncatedInnerIP, hdr, encap, "")
		case sessions.ParseLengthMismatchAbove:
			ctx.Disp.Weird(sessions.WeirdInnerIPPayloadLenMismatch, hdr, encap, "")
		}
		if result != sessions.ParseOK {
			return nil
		}
		innerLen = inner.TotalLen
		if innerLen <= 0 || innerLen > len(data) {
			innerLen = len(data)
		}
	}

	pair := canonicalPair(hdr.SrcIP, hdr.DstIP)
	entry, exists := a.tunnels[pair]
	if !exists {
		ec := packet.NewEncapsulatingConn(hdr.SrcIP, hdr.DstIP, tunnelType)
		entry = &tunnelEntry{conn: ec, lastActive: pb.Timestamp}
		a.tunnels[pair] = entry
		entry.handle = a.scheduleTimeout(pair, pb.Timestamp.Add(a.cfg.IPTunnelTimeout))
	} else {
		entry.lastActive = pb.Timestamp
	}

	newEncap := encap.Extend(entry.conn)
	metrics.ObserveTunnelDepth(newEncap.Depth())

	if greVersion == 0 {
		inner := packet.NewOwned(data, pb.Timestamp, greLinkType, len(data))
		inner.Keys.Encap = newEncap
		return ctx.ProcessInner(inner)
	}

	inner := packet.NewOwned(data[:innerLen], pb.Timestamp, packet.LinkRawIP, innerLen)
	inner.Keys.Encap = newEncap
	return ctx.ProcessInner(inner)
}

// scheduleTimeout arms pair's inactivity timer for deadline. When it
// fires, it checks whether traffic since the last check pushed the
// entry's true expiry past this deadline: if so it reschedules for
// the new expiry, otherwise it erases the entry — matching the
// source's IPTunnelTimer::Dispatch reschedule-or-erase behavior.
func (a *IPTunnelAnalyzer) scheduleTimeout(pair endpointPair, deadline time.Time) timer.Handle {
	return a.timers.Schedule(deadline, func(expired bool) {
		entry, ok := a.tunnels[pair]
		if !ok {
			return
		}
		if expired {
			delete(a.tunnels, pair)
			return
		}
		next := entry.lastActive.Add(a.cfg.IPTunnelTimeout)
		if !next.After(deadline) {
			delete(a.tunnels, pair)
			return
		}
		entry.handle = a.scheduleTimeout(pair, next)
	})
}
