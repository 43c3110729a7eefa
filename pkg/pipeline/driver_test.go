package pipeline

import (
	"encoding/binary"
	"testing"
	"time"

	"firestige.xyz/packetcore/pkg/analyzer/tunnel"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
)

const testEtherTypeIPv4 = 0x0800

func testEthFrame(payload []byte) []byte {
	f := make([]byte, 14+len(payload))
	copy(f[0:6], []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	copy(f[6:12], []byte{0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB})
	binary.BigEndian.PutUint16(f[12:14], testEtherTypeIPv4)
	copy(f[14:], payload)
	return f
}

func testIPv4Pkt(proto uint8, src, dst [4]byte, payload []byte) []byte {
	ihl := 20
	b := make([]byte, ihl+len(payload))
	b[0] = 0x45
	binary.BigEndian.PutUint16(b[2:4], uint16(len(b)))
	b[8] = 64
	b[9] = proto
	copy(b[12:16], src[:])
	copy(b[16:20], dst[:])
	copy(b[ihl:], payload)
	return b
}

func testGREv0TEB(inner []byte) []byte {
	hdr := []byte{0x00, 0x00, 0x65, 0x58}
	return append(hdr, inner...)
}

func testUDPPkt(dstPort uint16, payload []byte) []byte {
	b := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	binary.BigEndian.PutUint16(b[4:6], uint16(len(b)))
	copy(b[8:], payload)
	return b
}

func testVXLANPkt(iFlagSet bool, vni uint32, innerFrame []byte) []byte {
	b := make([]byte, 8+len(innerFrame))
	if iFlagSet {
		b[0] = 0x08
	}
	b[4] = byte(vni >> 16)
	b[5] = byte(vni >> 8)
	b[6] = byte(vni)
	copy(b[8:], innerFrame)
	return b
}

var (
	addrA = [4]byte{10, 0, 0, 1}
	addrB = [4]byte{10, 0, 0, 2}
)

func newTestDriver(maxDepth int) (*Driver, *sessions.Recorder) {
	rec := sessions.NewRecorder()
	cfg := Config{
		Tunnel: tunnel.Config{
			EnableGRE: true, EnableIP: true, EnableVXLAN: true, EnableGeneve: true,
			MaxDepth: maxDepth,
		},
		FragTimeout:       30 * time.Second,
		MaxFragments:      1000,
		MaxReassembleSize: 1 << 20,
	}
	return New(cfg, rec), rec
}

func TestVXLANMissingIFlagIsProtocolViolationNotDelivery(t *testing.T) {
	d, rec := newTestDriver(8)

	innerFrame := testEthFrame(testIPv4Pkt(6, addrA, addrB, []byte("payload")))
	vxlanData := testVXLANPkt(false, 100, innerFrame) // I flag clear
	udpData := testUDPPkt(vxlanPort, vxlanData)
	outer := testIPv4Pkt(protocolUDP, addrA, addrB, udpData)
	frame := testEthFrame(outer)

	pb := packet.NewBorrowed(frame, time.Unix(0, 0), packet.LinkEthernet, len(frame))
	if err := d.ProcessPacket(pb); err != nil {
		t.Fatalf("ProcessPacket: %v", err)
	}

	if len(rec.Deliveries) != 0 {
		t.Errorf("expected no delivery for a malformed VXLAN header, got %+v", rec.Deliveries)
	}
	if len(rec.Violations) == 0 {
		t.Error("expected a protocol violation for the missing VXLAN 'I' flag")
	}
}

func TestVXLANWellFormedPacketDeliversInnerDatagram(t *testing.T) {
	d, rec := newTestDriver(8)

	payload := []byte("hello-through-vxlan")
	innerFrame := testEthFrame(testIPv4Pkt(6, addrA, addrB, payload))
	vxlanData := testVXLANPkt(true, 100, innerFrame)
	udpData := testUDPPkt(vxlanPort, vxlanData)
	outer := testIPv4Pkt(protocolUDP, addrA, addrB, udpData)
	frame := testEthFrame(outer)

	pb := packet.NewBorrowed(frame, time.Unix(0, 0), packet.LinkEthernet, len(frame))
	if err := d.ProcessPacket(pb); err != nil {
		t.Fatalf("ProcessPacket: %v", err)
	}

	if len(rec.Violations) != 0 {
		t.Fatalf("expected no violations, got %v", rec.Violations)
	}
	if len(rec.Deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(rec.Deliveries))
	}
	if string(rec.Deliveries[0].Payload) != string(payload) {
		t.Errorf("delivered payload = %q, want %q", rec.Deliveries[0].Payload, payload)
	}
	if rec.Deliveries[0].Encap.Depth() != 1 {
		t.Errorf("expected encap depth 1 after one VXLAN hop, got %d", rec.Deliveries[0].Encap.Depth())
	}
}

// greWrap builds the Ethernet frame a GRE(TEB)-in-IPv4 hop carries: an
// Ethernet frame whose payload is an IPv4 datagram (protocol 47) whose
// payload is a GRE(v0, TEB) header wrapping innerEthFrame.
func greWrap(innerEthFrame []byte) []byte {
	grePayload := testGREv0TEB(innerEthFrame)
	ip := testIPv4Pkt(protocolGRE, addrA, addrB, grePayload)
	return testEthFrame(ip)
}

func TestGREDepthOverflowRaisesExceededWeird(t *testing.T) {
	d, rec := newTestDriver(2)

	// Three nested GRE tunnels: each hop's IPTunnel re-entry adds one
	// to the encap depth before decoding the next hop's Ethernet/IP/GRE
	// layer. The third hop's IPTunnel sees depth 2 (from hops one and
	// two) and refuses to add a third.
	innermost := testEthFrame(testIPv4Pkt(6, addrA, addrB, []byte("deep-payload")))
	hopC := greWrap(innermost)
	hopB := greWrap(hopC)
	frame := greWrap(hopB)

	pb := packet.NewBorrowed(frame, time.Unix(0, 0), packet.LinkEthernet, len(frame))
	if err := d.ProcessPacket(pb); err != nil {
		t.Fatalf("ProcessPacket: %v", err)
	}

	if got := rec.Count(sessions.WeirdExceededTunnelMaxDepth); got != 1 {
		t.Errorf("expected 1 exceeded_tunnel_max_depth weird, got %d (%v)", got, rec.Weirds)
	}
	if len(rec.Deliveries) != 0 {
		t.Errorf("expected no delivery once the tunnel stack exceeds max depth, got %+v", rec.Deliveries)
	}
}

func TestGREOneHopDeliversWithEncapDepthOne(t *testing.T) {
	d, rec := newTestDriver(8)

	payload := []byte("single-gre-hop")
	inner := testEthFrame(testIPv4Pkt(6, addrA, addrB, payload))
	frame := greWrap(inner)

	pb := packet.NewBorrowed(frame, time.Unix(0, 0), packet.LinkEthernet, len(frame))
	if err := d.ProcessPacket(pb); err != nil {
		t.Fatalf("ProcessPacket: %v", err)
	}

	if len(rec.Weirds) != 0 {
		t.Fatalf("expected no weirds, got %v", rec.Weirds)
	}
	if len(rec.Deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(rec.Deliveries))
	}
	if string(rec.Deliveries[0].Payload) != string(payload) {
		t.Errorf("delivered payload = %q, want %q", rec.Deliveries[0].Payload, payload)
	}
	if rec.Deliveries[0].Encap.Depth() != 1 {
		t.Errorf("expected encap depth 1, got %d", rec.Deliveries[0].Encap.Depth())
	}
}

func TestIPTunnelSameEndpointsShareUIDAcrossPackets(t *testing.T) {
	d, rec := newTestDriver(8)

	payload := []byte("ipip-payload")
	innerA := testIPv4Pkt(6, addrA, addrB, payload)
	outerA := testIPv4Pkt(protocolIPIP, addrA, addrB, innerA)
	frameA := testEthFrame(outerA)

	innerB := testIPv4Pkt(6, addrB, addrA, payload)
	outerB := testIPv4Pkt(protocolIPIP, addrB, addrA, innerB) // reversed direction, same tunnel
	frameB := testEthFrame(outerB)

	pbA := packet.NewBorrowed(frameA, time.Unix(0, 0), packet.LinkEthernet, len(frameA))
	if err := d.ProcessPacket(pbA); err != nil {
		t.Fatalf("first direction: %v", err)
	}
	pbB := packet.NewBorrowed(frameB, time.Unix(0, 0), packet.LinkEthernet, len(frameB))
	if err := d.ProcessPacket(pbB); err != nil {
		t.Fatalf("second direction: %v", err)
	}

	if len(rec.Deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(rec.Deliveries))
	}
	hopA, okA := rec.Deliveries[0].Encap.Innermost()
	hopB, okB := rec.Deliveries[1].Encap.Innermost()
	if !okA || !okB {
		t.Fatal("expected both deliveries to carry an encap hop")
	}
	if hopA.UID != hopB.UID {
		t.Errorf("expected the same tunnel UID regardless of direction, got %v and %v", hopA.UID, hopB.UID)
	}
}
