// Package h3frame reads and writes the HTTP/3 frame envelope (RFC 9114
// §7.2): a varint type, a varint length, and a payload of that many bytes.
package h3frame

import (
	"github.com/pkg/errors"

	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/varint"
)

// Type is an HTTP/3 frame type (RFC 9114 §7.2).
type Type uint64

const (
	TypeData       Type = 0x00
	TypeHeaders    Type = 0x01
	TypeCancelPush Type = 0x03
	TypeSettings   Type = 0x04
	TypeGoaway     Type = 0x07
	TypeMaxPushID  Type = 0x0d
)

// controlOnlyTypes MUST NOT appear on a request stream; RFC 9114 §7.2.4,
// §7.2.6, §7.2.7.
var controlOnlyTypes = map[Type]bool{
	TypeSettings:   true,
	TypeGoaway:     true,
	TypeCancelPush: true,
	TypeMaxPushID:  true,
}

// IsControlOnly reports whether t must never appear on a request stream.
func IsControlOnly(t Type) bool { return controlOnlyTypes[t] }

// Frame is one decoded frame envelope.
type Frame struct {
	Type    Type
	Payload []byte
}

// Build encodes a complete frame envelope: varint(type) ‖ varint(len) ‖ payload.
func Build(t Type, payload []byte) []byte {
	buf := varint.Encode(uint64(t))
	buf = varint.Append(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// ParseFrames decodes as many complete frames as buf holds, stopping
// cleanly at the first under-run (a type/length varint or payload that
// isn't fully present yet) rather than raising — callers decide whether
// more bytes may still arrive. It returns the decoded frames and the
// number of bytes consumed, which is always < len(buf) only when trailing
// bytes belong to a frame still in flight.
func ParseFrames(buf []byte) (frames []Frame, consumed int) {
	off := 0
	for {
		rest := buf[off:]
		typ, n1 := varint.Decode(rest)
		if n1 == 0 {
			break
		}
		length, n2 := varint.Decode(rest[n1:])
		if n2 == 0 {
			break
		}
		need := n1 + n2 + int(length)
		if need > len(rest) {
			break
		}
		payload := rest[n1+n2 : need]
		frames = append(frames, Frame{Type: Type(typ), Payload: payload})
		off += need
	}
	return frames, off
}

// ControlPrelude builds the bytes this endpoint writes as the first thing
// on its outbound control stream: the 0x00 stream-type byte, followed by
// an empty SETTINGS frame (this engine advertises no settings).
func ControlPrelude() []byte {
	buf := []byte{0x00}
	return append(buf, Build(TypeSettings, nil)...)
}

// BuildGoAway encodes a GOAWAY frame carrying a single varint stream ID.
func BuildGoAway(streamID uint64) []byte {
	return Build(TypeGoaway, varint.Encode(streamID))
}

// ParseGoAway decodes a GOAWAY frame's payload: exactly one varint and
// nothing else.
func ParseGoAway(payload []byte) (uint64, error) {
	v, n := varint.Decode(payload)
	if n == 0 || n != len(payload) {
		return 0, errors.Wrap(h3err.ErrProtocolViolation, "h3frame: malformed GOAWAY payload")
	}
	return v, nil
}

// ParseMaxPushID decodes a MAX_PUSH_ID frame's payload: exactly one varint.
// This engine never sends pushes, but must still parse a peer's frame to
// stay frame-aligned on the control stream.
func ParseMaxPushID(payload []byte) (uint64, error) {
	v, n := varint.Decode(payload)
	if n == 0 || n != len(payload) {
		return 0, errors.Wrap(h3err.ErrProtocolViolation, "h3frame: malformed MAX_PUSH_ID payload")
	}
	return v, nil
}
