package packet

import (
	"sync"
	"time"
)

// bufPool recycles owned byte slices used for synthetic inner packets
// (tunnel re-entry, VXLAN/GRE decapsulation). Borrowed buffers, which
// point straight into the capture source's ring, are never pooled.
var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 2048)
		return &b
	},
}

// AcquireOwned returns a zero-length byte slice with at least
// capacity n, drawn from the shared pool.
func AcquireOwned(n int) []byte {
	bp := bufPool.Get().(*[]byte)
	b := *bp
	if cap(b) < n {
		b = make([]byte, 0, n)
	}
	return b[:0]
}

// EthernetView holds the L2 fields decoded from an Ethernet frame.
// Valid only when Buffer.LinkType == LinkEthernet and Buffer.L2Valid.
type EthernetView struct {
	SrcMAC     [6]byte
	DstMAC     [6]byte
	EtherType  uint16
	OuterVLAN  uint16
	InnerVLAN  uint16
	HasOuter   bool
	HasInner   bool
}

// Buffer is the PacketBuffer of the spec: it owns or borrows one
// captured frame, carries its timestamp and decoded L2/L3 metadata,
// and holds the KeyStore analyzers use to pass context to each other
// within one packet's lifetime.
type Buffer struct {
	Timestamp time.Time
	LinkType  LinkType

	WireLen int // on-wire length
	CapLen  int // captured length, <= WireLen

	data  []byte
	owned bool

	released bool
	mu       sync.Mutex

	HdrSize int // bytes consumed by the link-layer decode

	Ethernet EthernetView
	L3Proto  L3Proto

	L2Valid        bool
	L2Checksummed  bool
	L3Checksummed  bool
	SessionAnalysis bool
	DumpPacket     bool

	Tag string

	Keys KeyStore
}

// NewBorrowed wraps data the caller still owns (e.g. a slice pointing
// into the capture source's ring buffer); Release is then a no-op
// beyond marking the buffer used.
func NewBorrowed(data []byte, ts time.Time, linkType LinkType, wireLen int) *Buffer {
	return &Buffer{
		Timestamp: ts,
		LinkType:  linkType,
		WireLen:   wireLen,
		CapLen:    len(data),
		data:      data,
		owned:     false,
	}
}

// NewOwned copies src into a pooled buffer the PacketBuffer is
// responsible for releasing exactly once. Tunnel analyzers use this
// to build synthetic inner frames that must outlive the outer frame's
// backing storage.
func NewOwned(src []byte, ts time.Time, linkType LinkType, wireLen int) *Buffer {
	b := AcquireOwned(len(src))
	b = append(b, src...)
	return &Buffer{
		Timestamp: ts,
		LinkType:  linkType,
		WireLen:   wireLen,
		CapLen:    len(b),
		data:      b,
		owned:     true,
	}
}

// Data returns the captured bytes. The slice must not be retained
// past the buffer's Release.
func (b *Buffer) Data() []byte { return b.data }

// Owned reports whether this buffer's backing array is its own copy.
func (b *Buffer) Owned() bool { return b.owned }

// Release returns an owned backing array to the pool. It is safe to
// call multiple times; only the first call has any effect, matching
// the invariant that an owned buffer is freed exactly once.
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released || !b.owned {
		b.released = true
		return
	}
	b.released = true
	buf := b.data[:0]
	bufPool.Put(&buf)
	b.data = nil
}

// TimestampUnix returns the capture timestamp as a seconds.microseconds
// double, the form the spec's PacketBuffer carries alongside the
// structured time.Time.
func (b *Buffer) TimestampUnix() float64 {
	return float64(b.Timestamp.UnixMicro()) / 1e6
}
