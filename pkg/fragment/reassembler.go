package fragment

import (
	"bytes"
	"container/list"
	"time"

	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
	"firestige.xyz/packetcore/pkg/timer"
)

// block is one contiguous run of reassembled bytes, positioned relative
// to the start of the fragmentable payload (offset 0, not the start of
// the IP header).
type block struct {
	offset  int
	length  int
	payload []byte
}

// Reassembler accumulates the fragments of a single datagram, identified
// by one Key, using the same right-trimming BSD policy as ordinary
// kernel IP reassembly: an existing fragment's bytes always win over an
// arriving fragment's overlapping bytes. Nothing here touches a clock;
// expiry is driven entirely by the timer the owning Manager schedules
// on the shared timer arena.
type Reassembler struct {
	key  Key
	disp sessions.Dispatcher

	blocks        list.List // list of *block, sorted by offset ascending
	highest       int       // highest byte position seen so far
	current       int       // total unique bytes accumulated
	finalReceived bool      // true once the fragment with MoreFragments=false arrived

	header   []byte // header bytes captured from the offset-0 fragment
	hdrProto uint8  // protocol/next-header carried by the header
	hasHdr   bool

	lastSeen time.Time
	handle   timer.Handle
	done     bool
}

func newReassembler(key Key, disp sessions.Dispatcher) *Reassembler {
	return &Reassembler{key: key, disp: disp}
}

// AddFragment folds in one fragment's payload at hdr.FragOffset. It
// returns the reassembled datagram and true once every hole is filled.
func (r *Reassembler) AddFragment(now time.Time, hdr *packet.IPHeader, payload []byte) (reassembled []byte, complete bool) {
	r.lastSeen = now

	if hdr.FragOffset == 0 && !r.hasHdr {
		r.header = append([]byte(nil), hdr.Raw...)
		r.hdrProto = hdr.Protocol
		r.hasHdr = true
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)

	frag := &block{offset: hdr.FragOffset, length: len(stored), payload: stored}
	if !hdr.MoreFragments {
		r.finalReceived = true
		if end := frag.offset + frag.length; end > r.highest {
			r.highest = end
		}
	}

	if conflict := r.insertBSDRight(frag); conflict {
		r.disp.Weird(sessions.WeirdFragmentOverlap, hdr, nil, "")
		r.disp.Weird(sessions.WeirdFragmentInconsistency, hdr, nil, "")
	}

	if r.finalReceived && r.current >= r.highest {
		r.done = true
		return r.build(), true
	}
	return nil, false
}

// insertBSDRight inserts frag into the sorted block list, trimming its
// bytes against whatever the list already holds. It reports whether the
// overlap it trimmed away had content that disagreed with what is
// already stored, which is the only case the spec asks to be reported.
func (r *Reassembler) insertBSDRight(frag *block) bool {
	fragEnd := frag.offset + frag.length
	if fragEnd > r.highest && !r.finalReceived {
		r.highest = fragEnd
	}

	var insertBefore *list.Element
	for e := r.blocks.Front(); e != nil; e = e.Next() {
		existing := e.Value.(*block)
		if existing.offset >= frag.offset {
			insertBefore = e
			break
		}
	}

	conflict := false

	startAt := frag.offset
	if insertBefore != nil {
		if prev := insertBefore.Prev(); prev != nil {
			prevBlk := prev.Value.(*block)
			if prevEnd := prevBlk.offset + prevBlk.length; prevEnd > startAt {
				if overlapDiffers(prevBlk, frag, startAt, min(prevEnd, fragEnd)) {
					conflict = true
				}
				startAt = prevEnd
			}
		}
	} else if r.blocks.Len() > 0 {
		lastBlk := r.blocks.Back().Value.(*block)
		if lastEnd := lastBlk.offset + lastBlk.length; lastEnd > startAt {
			if overlapDiffers(lastBlk, frag, startAt, min(lastEnd, fragEnd)) {
				conflict = true
			}
			startAt = lastEnd
		}
	}

	endAt := fragEnd
	if insertBefore != nil {
		nextBlk := insertBefore.Value.(*block)
		if nextBlk.offset < endAt {
			nextEnd := nextBlk.offset + nextBlk.length
			if overlapDiffers(nextBlk, frag, nextBlk.offset, min(endAt, nextEnd)) {
				conflict = true
			}
			endAt = nextBlk.offset
		}
	}

	if startAt >= endAt {
		return conflict // fully covered by what we already have — discard
	}

	trimOff := startAt - frag.offset
	trimEnd := endAt - frag.offset
	trimmed := &block{offset: startAt, length: endAt - startAt, payload: frag.payload[trimOff:trimEnd]}

	if insertBefore != nil {
		r.blocks.InsertBefore(trimmed, insertBefore)
	} else {
		r.blocks.PushBack(trimmed)
	}
	r.current += trimmed.length
	return conflict
}

// overlapDiffers compares the [lo,hi) slice of an already-stored block
// against the same absolute range in an arriving fragment. Callers must
// clamp [lo,hi) to lie within both blocks' extents; a fragment fully
// contained in an existing block otherwise slices out of range.
func overlapDiffers(existing, incoming *block, lo, hi int) bool {
	e := existing.payload[lo-existing.offset : hi-existing.offset]
	i := incoming.payload[lo-incoming.offset : hi-incoming.offset]
	return !bytes.Equal(e, i)
}

// build concatenates the captured header with every stored block in
// offset order, producing the reassembled datagram.
func (r *Reassembler) build() []byte {
	out := make([]byte, len(r.header)+r.highest)
	copy(out, r.header)
	for e := r.blocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)
		copy(out[len(r.header)+b.offset:], b.payload)
	}
	return out
}

// FragmentCount reports how many disjoint blocks are currently held,
// used by Manager to enforce Config.MaxFragmentsPerDatagram.
func (r *Reassembler) FragmentCount() int {
	return r.blocks.Len()
}

// MemoryAllocation reports the number of reassembled bytes currently
// buffered for this datagram.
func (r *Reassembler) MemoryAllocation() int {
	return r.current + len(r.header)
}
