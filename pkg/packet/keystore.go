package packet

// KeyStore is the analyzer-to-analyzer side channel for one packet's
// lifetime. The source this spec is drawn from used a string-keyed
// heterogeneous map with runtime type assertions; here every field the
// analyzers actually pass down is named and typed, so a missing value
// is a normal zero-value/ok check instead of a failed cast.
type KeyStore struct {
	Encap *EncapsulationStack

	IPHdr    *IPHeader
	hasIPHdr bool

	Proto    int
	hasProto bool

	TunnelType    TunnelType
	hasTunnelType bool

	GREVersion    int
	hasGREVersion bool

	GRELinkType    LinkType
	hasGRELinkType bool

	EncapInnerIP    *IPHeader
	hasEncapInnerIP bool
}

// SetIPHdr / IPHdr: current IP header view.
func (k *KeyStore) SetIPHdr(h *IPHeader) { k.IPHdr = h; k.hasIPHdr = h != nil }
func (k *KeyStore) GetIPHdr() (*IPHeader, bool) {
	return k.IPHdr, k.hasIPHdr
}

// SetProto / Proto: inner protocol number carried down from a tunnel
// or IP analyzer to whichever analyzer strips the next layer.
func (k *KeyStore) SetProto(p int) { k.Proto = p; k.hasProto = true }
func (k *KeyStore) GetProto() (int, bool) {
	return k.Proto, k.hasProto
}

func (k *KeyStore) SetTunnelType(t TunnelType) { k.TunnelType = t; k.hasTunnelType = true }
func (k *KeyStore) GetTunnelType() (TunnelType, bool) {
	return k.TunnelType, k.hasTunnelType
}

func (k *KeyStore) SetGREVersion(v int) { k.GREVersion = v; k.hasGREVersion = true }
func (k *KeyStore) GetGREVersion() (int, bool) {
	return k.GREVersion, k.hasGREVersion
}

func (k *KeyStore) SetGRELinkType(l LinkType) { k.GRELinkType = l; k.hasGRELinkType = true }
func (k *KeyStore) GetGRELinkType() (LinkType, bool) {
	return k.GRELinkType, k.hasGRELinkType
}

func (k *KeyStore) SetEncapInnerIP(h *IPHeader) { k.EncapInnerIP = h; k.hasEncapInnerIP = h != nil }
func (k *KeyStore) GetEncapInnerIP() (*IPHeader, bool) {
	return k.EncapInnerIP, k.hasEncapInnerIP
}

// Reset clears every field, letting a KeyStore be reused across
// synthetic inner packets without reallocating.
func (k *KeyStore) Reset() {
	*k = KeyStore{}
}
