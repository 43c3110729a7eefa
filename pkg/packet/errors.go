// Package packet defines the core packet-analysis data model: the
// PacketBuffer an analyzer chain walks, its typed key store, and the
// encapsulation stack a tunnel hop pushes onto it. Its only dependency
// outside the standard library is github.com/google/uuid, for
// EncapsulatingConn identity; like the teacher's "core" package, it
// keeps the shared value types free of any wire-format or transport
// library.
package packet

import "errors"

// Sentinel errors, in the style of the teacher's ADR-021 error pattern.
var (
	ErrTooShort       = errors.New("otus: packet too short")
	ErrUnsupportedL3  = errors.New("otus: unsupported L3 protocol")
	ErrBufferReleased = errors.New("otus: buffer already released")
	ErrDepthExceeded  = errors.New("otus: encapsulation depth exceeded")
)
