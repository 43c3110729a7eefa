package tunnel

import (
	"net/netip"
	"testing"
	"time"

	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
)

func geneveFrame(optWords int, innerFrame []byte) []byte {
	hdr := make([]byte, geneveHeaderLen)
	hdr[0] = byte(optWords & 0x3F) // version 0, optLen in 4-byte words
	return append(append(hdr, make([]byte, optWords*4)...), innerFrame...)
}

func TestGeneveDisabledRaisesProtocolViolation(t *testing.T) {
	rec := sessions.NewRecorder()
	ctx := vxlanHarness(rec, decodedEthernetInner)
	a := NewGeneveAnalyzer(Config{EnableGeneve: false})

	data := geneveFrame(0, []byte{1, 2, 3, 4})
	pb := packet.NewBorrowed(data, time.Unix(0, 0), packet.LinkRawIP, len(data))
	a.AnalyzePacket(ctx, pb, data)

	if len(rec.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d (%v)", len(rec.Violations), rec.Violations)
	}
}

func TestGeneveTruncatedHeaderRaisesProtocolViolation(t *testing.T) {
	rec := sessions.NewRecorder()
	ctx := vxlanHarness(rec, decodedEthernetInner)
	a := NewGeneveAnalyzer(Config{EnableGeneve: true})

	data := []byte{0, 0, 0}
	pb := packet.NewBorrowed(data, time.Unix(0, 0), packet.LinkRawIP, len(data))
	a.AnalyzePacket(ctx, pb, data)

	if len(rec.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d (%v)", len(rec.Violations), rec.Violations)
	}
}

func TestGeneveUnsupportedVersionRaisesProtocolViolation(t *testing.T) {
	rec := sessions.NewRecorder()
	ctx := vxlanHarness(rec, decodedEthernetInner)
	a := NewGeneveAnalyzer(Config{EnableGeneve: true})

	data := geneveFrame(0, []byte{1, 2, 3, 4})
	data[0] |= 0x40 // version 1
	pb := packet.NewBorrowed(data, time.Unix(0, 0), packet.LinkRawIP, len(data))
	a.AnalyzePacket(ctx, pb, data)

	if len(rec.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d (%v)", len(rec.Violations), rec.Violations)
	}
}

func TestGeneveOptionsTruncatedRaisesProtocolViolation(t *testing.T) {
	rec := sessions.NewRecorder()
	ctx := vxlanHarness(rec, decodedEthernetInner)
	a := NewGeneveAnalyzer(Config{EnableGeneve: true})

	hdr := make([]byte, geneveHeaderLen)
	hdr[0] = 0x02 // declares 2 option words, but none follow
	pb := packet.NewBorrowed(hdr, time.Unix(0, 0), packet.LinkRawIP, len(hdr))
	a.AnalyzePacket(ctx, pb, hdr)

	if len(rec.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d (%v)", len(rec.Violations), rec.Violations)
	}
}

func TestGeneveDepthLimitRaisesWeird(t *testing.T) {
	rec := sessions.NewRecorder()
	ctx := vxlanHarness(rec, decodedEthernetInner)
	a := NewGeneveAnalyzer(Config{EnableGeneve: true, MaxDepth: 1})

	data := geneveFrame(0, []byte{1, 2, 3, 4})
	pb := packet.NewBorrowed(data, time.Unix(0, 0), packet.LinkRawIP, len(data))
	pb.Keys.Encap = pb.Keys.Encap.Extend(packet.NewEncapsulatingConn(netip.Addr{}, netip.Addr{}, packet.TunnelGeneve))
	a.AnalyzePacket(ctx, pb, data)

	if got := rec.Count(sessions.WeirdTunnelDepth); got != 1 {
		t.Errorf("expected 1 tunnel_depth weird, got %d (%v)", got, rec.Weirds)
	}
}

func TestGeneveSuccessfulDecapsulationReentersPipeline(t *testing.T) {
	rec := sessions.NewRecorder()
	var seen *packet.Buffer
	ctx := vxlanHarness(rec, func(pb *packet.Buffer) {
		seen = pb
		decodedEthernetInner(pb)
	})
	a := NewGeneveAnalyzer(Config{EnableGeneve: true, MaxDepth: 8})

	innerFrame := []byte{9, 9, 9, 9}
	data := geneveFrame(1, innerFrame) // 1 option word (4 bytes) to skip unparsed
	pb := packet.NewBorrowed(data, time.Unix(0, 0), packet.LinkRawIP, len(data))
	a.AnalyzePacket(ctx, pb, data)

	if len(rec.Violations) != 0 {
		t.Fatalf("expected no violations, got %v", rec.Violations)
	}
	if seen == nil {
		t.Fatal("expected re-entry into the pipeline")
	}
	if string(seen.Data()) != string(innerFrame) {
		t.Errorf("inner frame = %x, want %x (options must be skipped)", seen.Data(), innerFrame)
	}
}

func TestGeneveInnerFrameInvalidRaisesProtocolViolation(t *testing.T) {
	rec := sessions.NewRecorder()
	ctx := vxlanHarness(rec, func(pb *packet.Buffer) {
		pb.L2Valid = false
	})
	a := NewGeneveAnalyzer(Config{EnableGeneve: true, MaxDepth: 8})

	data := geneveFrame(0, []byte{1, 2, 3, 4})
	pb := packet.NewBorrowed(data, time.Unix(0, 0), packet.LinkRawIP, len(data))
	a.AnalyzePacket(ctx, pb, data)

	if len(rec.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d (%v)", len(rec.Violations), rec.Violations)
	}
}
