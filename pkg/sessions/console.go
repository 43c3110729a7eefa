package sessions

import (
	"encoding/binary"
	"log/slog"
	"net/netip"

	"firestige.xyz/packetcore/pkg/packet"
)

// ConsoleDispatcher is a minimal, real Dispatcher: it decodes the inner
// IP header ParseIPPacket is asked to validate, and logs everything
// else through slog rather than handing it to a connection layer.
// It exists for standalone CLI use (replay/capture without a session
// tracker attached) the way the teacher's console reporter stands in
// for a real Kafka reporter during debugging.
type ConsoleDispatcher struct{}

// NewConsoleDispatcher returns a ConsoleDispatcher.
func NewConsoleDispatcher() *ConsoleDispatcher {
	return &ConsoleDispatcher{}
}

// ParseIPPacket decodes just enough of an IPv4 or IPv6 header to
// report truncation, an invalid version nibble, or a declared length
// that exceeds the captured bytes — the three failure modes a tunnel
// analyzer needs distinguished before it forwards an inner datagram.
func (d *ConsoleDispatcher) ParseIPPacket(length int, data []byte, proto uint8) (ParseResult, *packet.IPHeader) {
	if len(data) < 1 {
		return ParseTruncated, nil
	}
	version := data[0] >> 4
	switch version {
	case 4:
		if len(data) < 20 {
			return ParseTruncated, nil
		}
		ihl := int(data[0]&0x0F) * 4
		if ihl < 20 || len(data) < ihl {
			return ParseTruncated, nil
		}
		totalLen := int(binary.BigEndian.Uint16(data[2:4]))
		if totalLen > length {
			return ParseLengthMismatchAbove, nil
		}
		src, _ := netip.AddrFromSlice(data[12:16])
		dst, _ := netip.AddrFromSlice(data[16:20])
		return ParseOK, &packet.IPHeader{
			Version: 4, SrcIP: src, DstIP: dst, Protocol: data[9],
			TTL: data[8], TotalLen: totalLen, HeaderLen: ihl,
		}
	case 6:
		if len(data) < 40 {
			return ParseTruncated, nil
		}
		payloadLen := int(binary.BigEndian.Uint16(data[4:6]))
		totalLen := 40 + payloadLen
		if totalLen > length {
			return ParseLengthMismatchAbove, nil
		}
		src, _ := netip.AddrFromSlice(data[8:24])
		dst, _ := netip.AddrFromSlice(data[24:40])
		return ParseOK, &packet.IPHeader{
			Version: 6, SrcIP: src, DstIP: dst, Protocol: data[6],
			TotalLen: totalLen, HeaderLen: 40,
		}
	default:
		return ParseInvalidVersion, nil
	}
}

func (d *ConsoleDispatcher) Deliver(hdr *packet.IPHeader, payload []byte, encap *packet.EncapsulationStack) {
	slog.Info("deliver", "src", hdr.SrcIP, "dst", hdr.DstIP, "proto", hdr.Protocol,
		"bytes", len(payload), "encap_depth", encap.Depth())
}

func (d *ConsoleDispatcher) Weird(name string, hdr *packet.IPHeader, encap *packet.EncapsulationStack, detail string) {
	slog.Warn("weird", "name", name, "detail", detail)
}

func (d *ConsoleDispatcher) WeirdPacket(name string, pb *packet.Buffer, detail string) {
	slog.Warn("weird", "name", name, "detail", detail)
}

func (d *ConsoleDispatcher) ProtocolViolation(analyzer, reason string, pb *packet.Buffer) {
	slog.Warn("protocol_violation", "analyzer", analyzer, "reason", reason)
}

func (d *ConsoleDispatcher) Event(name string, args ...any) {
	slog.Info("event", append([]any{"name", name}, args...)...)
}
