package sessions

import "firestige.xyz/packetcore/pkg/packet"

// WeirdRecord captures one Weird/WeirdPacket call for assertions.
type WeirdRecord struct {
	Name   string
	Detail string
}

// Delivery captures one Deliver call.
type Delivery struct {
	Hdr     *packet.IPHeader
	Payload []byte
	Encap   *packet.EncapsulationStack
}

// Violation captures one ProtocolViolation call.
type Violation struct {
	Analyzer string
	Reason   string
}

// EventRecord captures one Event call.
type EventRecord struct {
	Name string
	Args []any
}

// Recorder is a Dispatcher test double that records everything it is
// told instead of acting on it, used across the analyzer, tunnel, and
// pipeline test suites the way the teacher's mock plugins stand in for
// real Capturer/Reporter implementations.
type Recorder struct {
	Weirds     []WeirdRecord
	Deliveries []Delivery
	Events     []EventRecord
	Violations []Violation

	// ParseFunc lets a test control ParseIPPacket's outcome; if nil,
	// ParseIPPacket reports ParseTruncated for empty data,
	// ParseInvalidVersion for a version nibble other than 4 or 6, and
	// otherwise succeeds with a minimal IPHeader (that version, proto,
	// and TotalLen set to length).
	ParseFunc func(length int, data []byte, proto uint8) (ParseResult, *packet.IPHeader)
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ParseIPPacket(length int, data []byte, proto uint8) (ParseResult, *packet.IPHeader) {
	if r.ParseFunc != nil {
		return r.ParseFunc(length, data, proto)
	}
	if len(data) < 1 {
		return ParseTruncated, nil
	}
	version := data[0] >> 4
	if version != 4 && version != 6 {
		return ParseInvalidVersion, nil
	}
	return ParseOK, &packet.IPHeader{Version: version, Protocol: proto, TotalLen: length}
}

func (r *Recorder) Deliver(hdr *packet.IPHeader, payload []byte, encap *packet.EncapsulationStack) {
	r.Deliveries = append(r.Deliveries, Delivery{Hdr: hdr, Payload: payload, Encap: encap})
}

func (r *Recorder) Weird(name string, hdr *packet.IPHeader, encap *packet.EncapsulationStack, detail string) {
	r.Weirds = append(r.Weirds, WeirdRecord{Name: name, Detail: detail})
}

func (r *Recorder) WeirdPacket(name string, pb *packet.Buffer, detail string) {
	r.Weirds = append(r.Weirds, WeirdRecord{Name: name, Detail: detail})
}

func (r *Recorder) ProtocolViolation(analyzer, reason string, pb *packet.Buffer) {
	r.Violations = append(r.Violations, Violation{Analyzer: analyzer, Reason: reason})
}

func (r *Recorder) Event(name string, args ...any) {
	r.Events = append(r.Events, EventRecord{Name: name, Args: args})
}

// Count returns how many times weird name was recorded.
func (r *Recorder) Count(name string) int {
	n := 0
	for _, w := range r.Weirds {
		if w.Name == name {
			n++
		}
	}
	return n
}
