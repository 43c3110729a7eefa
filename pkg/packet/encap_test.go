package packet

import (
	"net/netip"
	"testing"

	"github.com/google/uuid"
)

func TestEncapsulationStackNilDepthZero(t *testing.T) {
	var s *EncapsulationStack
	if s.Depth() != 0 {
		t.Errorf("expected depth 0 on nil stack, got %d", s.Depth())
	}
}

func TestEncapsulationStackExtendDoesNotMutateParent(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	dst := netip.MustParseAddr("10.0.0.2")

	base := (&EncapsulationStack{}).Extend(NewEncapsulatingConn(src, dst, TunnelGRE))
	if base.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", base.Depth())
	}

	extended := base.Extend(NewEncapsulatingConn(src, dst, TunnelVXLAN))
	if extended.Depth() != 2 {
		t.Errorf("expected depth 2, got %d", extended.Depth())
	}
	if base.Depth() != 1 {
		t.Errorf("Extend must not mutate the receiver, base depth changed to %d", base.Depth())
	}
}

func TestEncapsulationStackInnermost(t *testing.T) {
	var s *EncapsulationStack
	if _, ok := s.Innermost(); ok {
		t.Error("expected no innermost hop on nil stack")
	}

	addr := netip.MustParseAddr("192.168.1.1")
	s = s.Extend(NewEncapsulatingConn(addr, addr, TunnelIP))
	hop, ok := s.Innermost()
	if !ok || hop.Type != TunnelIP {
		t.Errorf("Innermost() = (%v, %v), want IP hop", hop, ok)
	}
}

func TestNewEncapsulatingConnMintsNonZeroUID(t *testing.T) {
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")

	hop := NewEncapsulatingConn(a, b, TunnelIP)
	// The UID identity rule (same tunnel, either direction, same UID)
	// is enforced by the IPTunnel analyzer's endpoint map, not by this
	// constructor — verified end-to-end in the tunnel package. Here we
	// just check a fresh UID is non-zero and stack-storable.
	if hop.UID == uuid.Nil {
		t.Error("expected non-zero UID")
	}
}
