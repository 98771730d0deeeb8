package wire

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/transport"
)

// MaxGoAwayStreamID is the sentinel stream id this engine sends in its
// first, graceful-shutdown-initiating GOAWAY: (2^62) - 4, the largest
// client-initiated bidirectional stream id a compliant peer can still
// legally have opened (RFC 9114 §5.2).
const MaxGoAwayStreamID = (uint64(1) << 62) - 4

// Connection holds all per-QUIC-connection protocol state: the stream
// table, the peer's control/QPACK stream bookkeeping, and this endpoint's
// outbound control stream.
type Connection struct {
	Handle transport.Conn

	mu               sync.RWMutex
	streams          map[uint64]*Stream
	buffers          map[uint64][]byte
	cancelled        map[uint64]bool
	hasPeerControl   bool
	peerControlID    uint64
	outboundControl  transport.Stream
	established      bool
	goawaySent       bool
	closed           bool
}

// NewConnection creates empty state for a freshly established connection.
func NewConnection(handle transport.Conn) *Connection {
	return &Connection{
		Handle:    handle,
		streams:   make(map[uint64]*Stream),
		buffers:   make(map[uint64][]byte),
		cancelled: make(map[uint64]bool),
	}
}

// SetEstablished marks the connection as admitted and running.
func (c *Connection) SetEstablished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.established = true
}

// Established reports whether the connection passed admission control.
func (c *Connection) Established() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.established
}

// SetOutboundControl records this endpoint's own outbound control stream
// handle, opened once at connection establishment.
func (c *Connection) SetOutboundControl(h transport.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outboundControl = h
}

// OutboundControl returns this endpoint's outbound control stream handle,
// or nil if it has not been opened yet.
func (c *Connection) OutboundControl() transport.Stream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outboundControl
}

// MarkGoAwaySent records that this endpoint has sent its GOAWAY; the
// lifecycle controller uses this to avoid sending a second one.
func (c *Connection) MarkGoAwaySent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goawaySent = true
}

// GoAwaySent reports whether this endpoint has already sent GOAWAY.
func (c *Connection) GoAwaySent() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.goawaySent
}

// StreamOrCreate returns the existing Stream for id, creating one if this
// is the first time the connection has seen it.
func (c *Connection) StreamOrCreate(id uint64) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.streams[id]; ok {
		return s
	}
	s := NewStream(id)
	c.streams[id] = s
	return s
}

// Stream returns the Stream for id, if the connection has seen it.
func (c *Connection) Stream(id uint64) (*Stream, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.streams[id]
	return s, ok
}

// RemoveStream drops id's state and receive buffer. No engine path calls
// it: per-stream state is kept until the Connection itself is discarded.
func (c *Connection) RemoveStream(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, id)
	delete(c.buffers, id)
}

// BufferData appends chunk to id's receive accumulator.
func (c *Connection) BufferData(id uint64, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers[id] = append(c.buffers[id], chunk...)
}

// CompleteStream appends tail, returns the full accumulated byte
// sequence, and removes the accumulator — the "FIN observed" handoff from
// receive buffering to request assembly.
func (c *Connection) CompleteStream(id uint64, tail []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	full := append(c.buffers[id], tail...)
	delete(c.buffers, id)
	return full
}

// PeekBuffer returns id's current receive accumulator without clearing it,
// for the control stream's incremental frame parsing (unlike a request
// stream, the control stream is never expected to FIN).
func (c *Connection) PeekBuffer(id uint64) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffers[id]
}

// TrimBuffer drops the first n bytes of id's accumulator once the caller
// has parsed n bytes' worth of complete frames out of it.
func (c *Connection) TrimBuffer(id uint64, n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.buffers[id]
	if n >= len(b) {
		delete(c.buffers, id)
		return
	}
	c.buffers[id] = append([]byte(nil), b[n:]...)
}

// Close marks the connection as torn down. Work items already queued
// against it become no-ops once a worker observes this.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// IsClosed reports whether Close was called.
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// MarkCancelled records id in the per-connection cancellation set.
func (c *Connection) MarkCancelled(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled[id] = true
}

// IsCancelled reports whether id has been cancelled (peer RESET_STREAM or
// STOP_SENDING).
func (c *Connection) IsCancelled(id uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancelled[id]
}

// RegisterUnidirectional classifies a peer-initiated unidirectional
// stream by its first byte (RFC 9114 §6.2) and updates connection-scope
// bookkeeping. A second peer control stream is a fatal connection error.
func (c *Connection) RegisterUnidirectional(id uint64, streamType byte) (Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var role Role
	switch streamType {
	case 0x00:
		if c.hasPeerControl {
			return RoleUnknown, errors.Wrap(h3err.ErrConnectionFatal, "wire: second peer control stream")
		}
		c.hasPeerControl = true
		c.peerControlID = id
		role = RoleControl
	case 0x02:
		role = RoleQPACKEncoder
	case 0x03:
		role = RoleQPACKDecoder
	default:
		// RFC 9114 §9: unknown unidirectional stream types must be
		// tolerated and their contents ignored.
		role = RoleUnknown
	}

	if s, ok := c.streams[id]; ok {
		s.Role = role
	} else {
		s = NewStream(id)
		s.Role = role
		c.streams[id] = s
	}
	return role, nil
}

// PeerControlStreamID returns the peer's control stream id and whether one
// has been seen yet.
func (c *Connection) PeerControlStreamID() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerControlID, c.hasPeerControl
}

// Streams returns a snapshot slice of all known streams, for shutdown
// broadcast and diagnostics.
func (c *Connection) Streams() []*Stream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		out = append(out, s)
	}
	return out
}
