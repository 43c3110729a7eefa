package packet

import "testing"

func TestKeyStoreOptionalFields(t *testing.T) {
	var k KeyStore

	if _, ok := k.GetProto(); ok {
		t.Error("expected Proto unset on zero-value KeyStore")
	}

	k.SetProto(47)
	proto, ok := k.GetProto()
	if !ok || proto != 47 {
		t.Errorf("GetProto() = (%d, %v), want (47, true)", proto, ok)
	}

	if _, ok := k.GetTunnelType(); ok {
		t.Error("expected TunnelType unset before SetTunnelType")
	}
	k.SetTunnelType(TunnelGRE)
	tt, ok := k.GetTunnelType()
	if !ok || tt != TunnelGRE {
		t.Errorf("GetTunnelType() = (%v, %v), want (%v, true)", tt, ok, TunnelGRE)
	}
}

func TestKeyStoreReset(t *testing.T) {
	var k KeyStore
	k.SetProto(6)
	k.SetGREVersion(1)
	k.Reset()

	if _, ok := k.GetProto(); ok {
		t.Error("expected Proto cleared after Reset")
	}
	if _, ok := k.GetGREVersion(); ok {
		t.Error("expected GREVersion cleared after Reset")
	}
}

func TestKeyStoreIPHdrNilOk(t *testing.T) {
	var k KeyStore
	if h, ok := k.GetIPHdr(); ok || h != nil {
		t.Errorf("expected (nil, false), got (%v, %v)", h, ok)
	}
	hdr := &IPHeader{Version: 4}
	k.SetIPHdr(hdr)
	got, ok := k.GetIPHdr()
	if !ok || got != hdr {
		t.Errorf("GetIPHdr() = (%v, %v), want (%v, true)", got, ok, hdr)
	}
}
