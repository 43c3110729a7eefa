package fragment

import (
	"time"

	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/sessions"
	"firestige.xyz/packetcore/pkg/timer"
)

// Config bounds how much state the fragment table is allowed to hold,
// mirroring the tunables the analysis core exposes for reassembly.
type Config struct {
	MaxFragmentsPerDatagram int           // per-datagram fragment count before the datagram is abandoned
	MaxReassembleSize       int           // largest reassembled datagram the manager will build
	Timeout                 time.Duration // inactivity before an incomplete datagram is expired
}

func (c Config) withDefaults() Config {
	if c.MaxFragmentsPerDatagram <= 0 {
		c.MaxFragmentsPerDatagram = 8192
	}
	if c.MaxReassembleSize <= 0 {
		c.MaxReassembleSize = 65535
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Manager owns every in-flight Reassembler, keyed by datagram identity,
// and schedules each one's inactivity expiry on the shared timer arena
// rather than a goroutine per flow.
type Manager struct {
	cfg     Config
	disp    sessions.Dispatcher
	timers  *timer.Manager
	flows   map[Key]*Reassembler
	maxSeen int // high-water mark of len(flows), tracked in NextFragment
}

// NewManager returns an empty fragment table. timers is the pipeline's
// shared cooperative timer arena; disp receives weirds raised while
// reassembling.
func NewManager(cfg Config, timers *timer.Manager, disp sessions.Dispatcher) *Manager {
	return &Manager{
		cfg:    cfg.withDefaults(),
		disp:   disp,
		timers: timers,
		flows:  make(map[Key]*Reassembler),
	}
}

// NextFragment folds one fragment into its datagram's reassembler,
// creating the reassembler on first sight of key. It returns the
// reassembled datagram and true once the last hole is filled; the entry
// is removed from the table before this call returns in that case.
func (m *Manager) NextFragment(now time.Time, key Key, hdr *packet.IPHeader, payload []byte) (reassembled []byte, complete bool) {
	r, ok := m.flows[key]
	if !ok {
		r = newReassembler(key, m.disp)
		m.flows[key] = r
		if n := len(m.flows); n > m.maxSeen {
			m.maxSeen = n
		}
		r.handle = m.timers.Schedule(now.Add(m.cfg.Timeout), func(expired bool) {
			m.expire(key)
		})
	} else {
		m.timers.Cancel(r.handle)
		r.handle = m.timers.Schedule(now.Add(m.cfg.Timeout), func(expired bool) {
			m.expire(key)
		})
	}

	if r.FragmentCount() >= m.cfg.MaxFragmentsPerDatagram {
		m.disp.Weird(sessions.WeirdFragmentProtocolViolation, hdr, nil, "fragment count exceeded")
		m.Remove(key)
		return nil, false
	}

	out, done := r.AddFragment(now, hdr, payload)
	if done {
		m.Remove(key)
		if len(out) > m.cfg.MaxReassembleSize {
			m.disp.Weird(sessions.WeirdFragmentProtocolViolation, hdr, nil, "reassembled size exceeded")
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// expire fires when a datagram's inactivity timer reaches its deadline
// with reassembly still incomplete. A datagram that expired mid-way is
// a protocol violation, not silently discarded: no partial datagram is
// ever delivered upward.
func (m *Manager) expire(key Key) {
	r, ok := m.flows[key]
	if !ok || r.done {
		return
	}
	delete(m.flows, key)
	m.disp.Weird(sessions.WeirdFragmentProtocolViolation, nil, nil, "fragment reassembly timed out")
}

// Remove drops key's reassembler and cancels its timer. Calling Remove
// twice for the same key, or for a key never seen, is a no-op — the
// completion path and a scoped Tracker's deferred release both call it
// unconditionally.
func (m *Manager) Remove(key Key) {
	r, ok := m.flows[key]
	if !ok {
		return
	}
	m.timers.Cancel(r.handle)
	delete(m.flows, key)
}

// Clear drops every in-flight reassembler and cancels its timer.
func (m *Manager) Clear() {
	for key := range m.flows {
		m.Remove(key)
	}
}

// Size reports how many datagrams are currently mid-reassembly.
func (m *Manager) Size() int {
	return len(m.flows)
}

// MaxFragments reports the high-water mark of the reassembler table's
// size: the largest number of datagrams ever mid-reassembly at once,
// tracked in NextFragment. This is an observability counter, distinct
// from Config.MaxFragmentsPerDatagram's per-datagram cap.
func (m *Manager) MaxFragments() int {
	return m.maxSeen
}

// MemoryAllocation sums the buffered bytes held across every in-flight
// reassembler, the way the source this is drawn from tracks total
// fragment memory for its size-based eviction policy.
func (m *Manager) MemoryAllocation() int {
	total := 0
	for _, r := range m.flows {
		total += r.MemoryAllocation()
	}
	return total
}
