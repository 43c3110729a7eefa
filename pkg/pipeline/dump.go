package pipeline

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/packetcore/pkg/packet"
)

// DumpWriter frames captured frames into a pcap trace, the same
// "wrap one io.Writer, guard it with a mutex" shape the log package
// takes for its rotated file output. It is the trace-writer sink
// ProcessPacket writes to when a frame arrives with DumpPacket set.
type DumpWriter struct {
	closer io.Closer

	mu sync.Mutex
	w  *pcapgo.Writer
}

// NewDumpWriter opens dst for pcap output and writes the file header
// once, up front. linkType selects the header's declared link type;
// frames of a different LinkType are still written as raw bytes, the
// same way the source side already tolerates a link-type mismatch.
func NewDumpWriter(dst io.WriteCloser, linkType packet.LinkType) (*DumpWriter, error) {
	w := pcapgo.NewWriter(dst)
	if err := w.WriteFileHeader(65535, pcapLinkType(linkType)); err != nil {
		return nil, fmt.Errorf("pipeline: write pcap file header: %w", err)
	}
	return &DumpWriter{closer: dst, w: w}, nil
}

// WritePacket appends pb's captured bytes as one pcap record.
func (d *DumpWriter) WritePacket(pb *packet.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	data := pb.Data()
	ci := gopacket.CaptureInfo{
		Timestamp:     pb.Timestamp,
		CaptureLength: len(data),
		Length:        pb.WireLen,
	}
	return d.w.WritePacket(ci, data)
}

// Close closes the underlying destination.
func (d *DumpWriter) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closer.Close()
}

func pcapLinkType(lt packet.LinkType) layers.LinkType {
	switch lt {
	case packet.LinkEthernet:
		return layers.LinkTypeEthernet
	case packet.LinkRawIP:
		return layers.LinkTypeRaw
	default:
		return layers.LinkTypeEthernet
	}
}
