// Package wire holds per-connection protocol state: streams, their roles,
// receive-buffer accumulators, and the bookkeeping RFC 9114 requires
// around the control and QPACK streams. It knows nothing about QUIC
// mechanics or application semantics — only stream identity and framing
// bookkeeping.
package wire

import (
	"sync"

	"github.com/nine114/h3d/internal/transport"
)

// Role classifies a stream by its first-observed purpose.
type Role int

const (
	RoleUnknown Role = iota
	RoleRequest
	RoleControl
	RoleQPACKEncoder
	RoleQPACKDecoder
)

// IsBidirectional reports whether id names a bidirectional QUIC stream
// (RFC 9000 §2.1: bit 0x2 of the stream id is the directionality bit).
func IsBidirectional(id uint64) bool { return id&0x2 == 0 }

// IsClientInitiated reports whether id was opened by the client
// (RFC 9000 §2.1: bit 0x1 is the initiator bit, 0 = client).
func IsClientInitiated(id uint64) bool { return id&0x1 == 0 }

// Stream is one per-connection stream's protocol state.
type Stream struct {
	ID   uint64
	Role Role

	mu       sync.Mutex
	handle   transport.Stream
	terminal bool
}

// NewStream creates unbound stream state for id; Role starts Unknown and
// is set once the stream's purpose is determined (a request stream is
// known immediately from its id's bidirectionality; a unidirectional
// stream's role is known only once its first byte arrives).
func NewStream(id uint64) *Stream {
	role := RoleUnknown
	if IsBidirectional(id) {
		role = RoleRequest
	}
	return &Stream{ID: id, Role: role}
}

// Bind attaches the transport handle once this endpoint has one — either
// because it opened the stream itself, or because the first inbound event
// revealed it.
func (s *Stream) Bind(h transport.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

// Handle returns the bound transport handle, or nil if none yet.
func (s *Stream) Handle() transport.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// ReadyToSend is true iff a transport handle has been bound.
func (s *Stream) ReadyToSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Terminate marks the stream as finished: FIN-processed, reset,
// stop-sending, or the owning connection was destroyed.
func (s *Stream) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminal = true
}

// IsTerminal reports whether Terminate was called.
func (s *Stream) IsTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}
