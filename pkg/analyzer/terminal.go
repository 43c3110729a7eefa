package analyzer

import "firestige.xyz/packetcore/pkg/packet"

// TerminalAnalyzer is an explicit dead end in the dispatch graph: it
// delivers whatever reaches it straight to the sessions collaborator
// without decoding anything further. Wiring one in as a successor
// documents "this protocol number is recognized and intentionally not
// decoded further" as distinct from an unregistered key, which
// ForwardPacket treats as an anomaly.
type TerminalAnalyzer struct {
	BaseAnalyzer
}

func NewTerminalAnalyzer(name string) *TerminalAnalyzer {
	return &TerminalAnalyzer{BaseAnalyzer: NewBase(name)}
}

func (a *TerminalAnalyzer) AnalyzePacket(ctx *Context, pb *packet.Buffer, data []byte) error {
	hdr, _ := pb.Keys.GetIPHdr()
	ctx.Disp.Deliver(hdr, data, pb.Keys.Encap)
	return nil
}
