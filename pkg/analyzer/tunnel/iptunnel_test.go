package tunnel

import (
	"net/netip"
	"testing"
	"time"

	"firestige.xyz/packetcore/pkg/analyzer"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
	"firestige.xyz/packetcore/pkg/timer"
)

func ipTunnelHarness(rec *sessions.Recorder, tm *timer.Manager) (*analyzer.Context, *[]*packet.Buffer) {
	var captured []*packet.Buffer
	ctx := &analyzer.Context{
		Disp:   rec,
		Timers: tm,
		ProcessInner: func(pb *packet.Buffer) error {
			captured = append(captured, pb)
			return nil
		},
	}
	return ctx, &captured
}

func outerHdr(src, dst string) *packet.IPHeader {
	return &packet.IPHeader{Version: 4, SrcIP: netip.MustParseAddr(src), DstIP: netip.MustParseAddr(dst), Protocol: 4}
}

func TestIPTunnelDisabledRaisesWeird(t *testing.T) {
	rec := sessions.NewRecorder()
	tm := timer.NewManager()
	ctx, _ := ipTunnelHarness(rec, tm)
	a := NewIPTunnelAnalyzer(Config{EnableIP: false}, tm)

	pb := packet.NewBorrowed([]byte{0x45, 0, 0, 20}, time.Unix(0, 0), packet.LinkRawIP, 4)
	pb.Keys.SetIPHdr(outerHdr("10.0.0.1", "10.0.0.2"))

	if err := a.AnalyzePacket(ctx, pb, pb.Data()); err != nil {
		t.Fatalf("AnalyzePacket: %v", err)
	}
	if got := rec.Count(sessions.WeirdIPTunnel); got != 1 {
		t.Errorf("expected 1 IP_tunnel weird, got %d (%v)", got, rec.Weirds)
	}
}

func TestIPTunnelDepthLimitRaisesWeird(t *testing.T) {
	rec := sessions.NewRecorder()
	tm := timer.NewManager()
	ctx, _ := ipTunnelHarness(rec, tm)
	a := NewIPTunnelAnalyzer(Config{EnableIP: true, MaxDepth: 1}, tm)

	pb := packet.NewBorrowed([]byte{0x45, 0, 0, 20}, time.Unix(0, 0), packet.LinkRawIP, 4)
	pb.Keys.SetIPHdr(outerHdr("10.0.0.1", "10.0.0.2"))
	pb.Keys.Encap = pb.Keys.Encap.Extend(packet.NewEncapsulatingConn(
		netip.MustParseAddr("1.1.1.1"), netip.MustParseAddr("2.2.2.2"), packet.TunnelGRE))

	if err := a.AnalyzePacket(ctx, pb, pb.Data()); err != nil {
		t.Fatalf("AnalyzePacket: %v", err)
	}
	if got := rec.Count(sessions.WeirdExceededTunnelMaxDepth); got != 1 {
		t.Errorf("expected 1 exceeded_tunnel_max_depth weird, got %d (%v)", got, rec.Weirds)
	}
}

func TestIPTunnelGREVersion0SkipsParseAndReenters(t *testing.T) {
	rec := sessions.NewRecorder()
	rec.ParseFunc = func(length int, data []byte, proto uint8) (sessions.ParseResult, *packet.IPHeader) {
		t.Fatal("ParseIPPacket must not be called when gre_version == 0")
		return sessions.ParseInvalidVersion, nil
	}
	tm := timer.NewManager()
	ctx, captured := ipTunnelHarness(rec, tm)
	a := NewIPTunnelAnalyzer(Config{EnableIP: true, MaxDepth: 8}, tm)

	data := []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0x08, 0x00}
	pb := packet.NewBorrowed(data, time.Unix(0, 0), packet.LinkRawIP, len(data))
	pb.Keys.SetIPHdr(outerHdr("10.0.0.1", "10.0.0.2"))
	pb.Keys.SetGREVersion(0)
	pb.Keys.SetGRELinkType(packet.LinkEthernet)

	if err := a.AnalyzePacket(ctx, pb, data); err != nil {
		t.Fatalf("AnalyzePacket: %v", err)
	}
	if len(rec.Weirds) != 0 {
		t.Fatalf("expected no weirds, got %v", rec.Weirds)
	}
	if len(*captured) != 1 {
		t.Fatalf("expected 1 re-entry, got %d", len(*captured))
	}
	inner := (*captured)[0]
	if inner.LinkType != packet.LinkEthernet {
		t.Errorf("expected inner LinkType Ethernet, got %v", inner.LinkType)
	}
	if inner.Keys.Encap.Depth() != 1 {
		t.Errorf("expected inner encap depth 1, got %d", inner.Keys.Encap.Depth())
	}
}

func TestIPTunnelInvalidInnerVersionRaisesWeird(t *testing.T) {
	rec := sessions.NewRecorder()
	rec.ParseFunc = func(length int, data []byte, proto uint8) (sessions.ParseResult, *packet.IPHeader) {
		return sessions.ParseInvalidVersion, nil
	}
	tm := timer.NewManager()
	ctx, _ := ipTunnelHarness(rec, tm)
	a := NewIPTunnelAnalyzer(Config{EnableIP: true, MaxDepth: 8}, tm)

	pb := packet.NewBorrowed([]byte{0x00}, time.Unix(0, 0), packet.LinkRawIP, 1)
	pb.Keys.SetIPHdr(outerHdr("10.0.0.1", "10.0.0.2"))

	a.AnalyzePacket(ctx, pb, pb.Data())
	if got := rec.Count(sessions.WeirdInvalidInnerIPVersion); got != 1 {
		t.Errorf("expected 1 invalid_inner_IP_version weird, got %d (%v)", got, rec.Weirds)
	}
}

func TestIPTunnelTruncatedInnerRaisesWeird(t *testing.T) {
	rec := sessions.NewRecorder()
	rec.ParseFunc = func(length int, data []byte, proto uint8) (sessions.ParseResult, *packet.IPHeader) {
		return sessions.ParseTruncated, nil
	}
	tm := timer.NewManager()
	ctx, _ := ipTunnelHarness(rec, tm)
	a := NewIPTunnelAnalyzer(Config{EnableIP: true, MaxDepth: 8}, tm)

	pb := packet.NewBorrowed([]byte{0x45}, time.Unix(0, 0), packet.LinkRawIP, 1)
	pb.Keys.SetIPHdr(outerHdr("10.0.0.1", "10.0.0.2"))

	a.AnalyzePacket(ctx, pb, pb.Data())
	if got := rec.Count(sessions.WeirdTruncatedInnerIP); got != 1 {
		t.Errorf("expected 1 truncated_inner_IP weird, got %d (%v)", got, rec.Weirds)
	}
}

func TestIPTunnelInnerLengthMismatchRaisesWeird(t *testing.T) {
	rec := sessions.NewRecorder()
	rec.ParseFunc = func(length int, data []byte, proto uint8) (sessions.ParseResult, *packet.IPHeader) {
		return sessions.ParseLengthMismatchAbove, nil
	}
	tm := timer.NewManager()
	ctx, _ := ipTunnelHarness(rec, tm)
	a := NewIPTunnelAnalyzer(Config{EnableIP: true, MaxDepth: 8}, tm)

	pb := packet.NewBorrowed([]byte{0x45}, time.Unix(0, 0), packet.LinkRawIP, 1)
	pb.Keys.SetIPHdr(outerHdr("10.0.0.1", "10.0.0.2"))

	a.AnalyzePacket(ctx, pb, pb.Data())
	if got := rec.Count(sessions.WeirdInnerIPPayloadLenMismatch); got != 1 {
		t.Errorf("expected 1 inner_IP_payload_length_mismatch weird, got %d (%v)", got, rec.Weirds)
	}
}

func TestIPTunnelSameEndpointsShareUIDRegardlessOfDirection(t *testing.T) {
	rec := sessions.NewRecorder()
	tm := timer.NewManager()
	a := NewIPTunnelAnalyzer(Config{EnableIP: true, MaxDepth: 8}, tm)

	data := []byte{0x45, 0, 0, 20, 0, 0, 0, 0, 64, 6, 0, 0, 10, 0, 0, 1, 10, 0, 0, 2}

	ctx1, captured1 := ipTunnelHarness(rec, tm)
	pb1 := packet.NewBorrowed(data, time.Unix(0, 0), packet.LinkRawIP, len(data))
	pb1.Keys.SetIPHdr(outerHdr("192.0.2.1", "192.0.2.2"))
	if err := a.AnalyzePacket(ctx1, pb1, data); err != nil {
		t.Fatalf("first direction: %v", err)
	}

	ctx2, captured2 := ipTunnelHarness(rec, tm)
	pb2 := packet.NewBorrowed(data, time.Unix(0, 0), packet.LinkRawIP, len(data))
	pb2.Keys.SetIPHdr(outerHdr("192.0.2.2", "192.0.2.1")) // reversed direction, same tunnel
	if err := a.AnalyzePacket(ctx2, pb2, data); err != nil {
		t.Fatalf("second direction: %v", err)
	}

	if len(*captured1) != 1 || len(*captured2) != 1 {
		t.Fatalf("expected both directions to re-enter, got %d and %d", len(*captured1), len(*captured2))
	}
	hop1, ok1 := (*captured1)[0].Keys.Encap.Innermost()
	hop2, ok2 := (*captured2)[0].Keys.Encap.Innermost()
	if !ok1 || !ok2 {
		t.Fatal("expected both packets to carry an encap hop")
	}
	if hop1.UID != hop2.UID {
		t.Errorf("expected shared UID across directions, got %v and %v", hop1.UID, hop2.UID)
	}
}
