// Package transport defines the boundary between the HTTP/3 engine and the
// QUIC transport that carries it. The engine never touches QUIC packets,
// congestion control, or TLS directly — it consumes a Capability that
// delivers Events and accepts outbound writes against opaque Conn/Stream
// handles. internal/quictransport is the concrete adapter over
// github.com/quic-go/quic-go; this package only names the seam.
package transport

import "context"

// Conn is an opaque reference to one QUIC connection. The engine never
// inspects it; it only passes it back to Capability methods.
type Conn interface {
	// ID returns a string unique for the connection's lifetime, suitable
	// for logging.
	ID() string
}

// Stream is an opaque reference to one QUIC stream, bidirectional or
// unidirectional.
type Stream interface {
	// ID returns the QUIC stream ID (RFC 9000 §2.1 — parity/initiator
	// bits included).
	ID() uint64
}

// EventKind enumerates the transport-to-engine event vocabulary (spec
// §4.8).
type EventKind int

const (
	EventConnectionEstablished EventKind = iota
	EventConnectionClosed
	EventSendComplete
	EventReceive
	EventReceiveFin
	EventStreamReset
	EventStopSending
)

// Event is one transport occurrence, handed to the engine's event
// dispatcher. Stream is nil for connection-scoped events
// (ConnectionEstablished, ConnectionClosed).
type Event struct {
	Kind   EventKind
	Conn   Conn
	Stream Stream
	Data   []byte // payload for Receive/ReceiveFin
}

// Capability is everything the engine needs from a transport: a stream of
// inbound events, and outbound operations against the opaque handles those
// events carry.
type Capability interface {
	// Events returns the channel the engine reads transport occurrences
	// from. Closed when the transport shuts down.
	Events() <-chan Event

	// OpenUniStream opens a new unidirectional stream on conn, used for
	// this endpoint's outbound control stream.
	OpenUniStream(ctx context.Context, conn Conn) (Stream, error)

	// Write sends p on stream. If fin is true, the send side is closed
	// after p is written.
	Write(stream Stream, p []byte, fin bool) error

	// ResetStream aborts the send side of stream with an HTTP/3 error
	// code (RFC 9114 §8.1).
	ResetStream(stream Stream, code uint64) error

	// StopSendingStream requests the peer stop sending on stream with an
	// HTTP/3 error code.
	StopSendingStream(stream Stream, code uint64) error

	// CloseConnection closes conn with an HTTP/3 connection-level error
	// code and a short diagnostic reason.
	CloseConnection(conn Conn, code uint64, reason string) error

	// RejectConnection closes a just-established connection before the
	// engine has admitted it (spec §4.8 ConnectionEstablished admission
	// control), using H3_EXCESSIVE_LOAD.
	RejectConnection(conn Conn, code uint64, reason string) error
}
