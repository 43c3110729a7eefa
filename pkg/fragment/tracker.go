package fragment

// Tracker scopes the removal of a completed datagram's reassembler to
// the block of code that dispatches it onward. It exists because
// Remove must run once reassembly finishes and once more on any error
// path out of dispatch, and Remove is defined to tolerate exactly that:
// calling it twice, or on a key already gone, is a no-op.
//
// Tracker does not wrap NextFragment itself — only the completion path,
// after AddFragment has reported done=true. Wrapping every fragment
// arrival would remove an in-progress reassembler after its very first
// fragment instead of leaving it to accumulate.
type Tracker struct {
	m   *Manager
	key Key
}

// Track returns a Tracker bound to a datagram that just completed
// reassembly. Its Release is meant to be deferred around whatever code
// forwards the reassembled bytes onward.
func Track(m *Manager, key Key) Tracker {
	return Tracker{m: m, key: key}
}

// Release removes the tracked datagram's reassembler, if it is still
// present. Safe to call more than once.
func (t Tracker) Release() {
	t.m.Remove(t.key)
}
