// Package varint implements the RFC 9000 §16 variable-length integer
// encoding used throughout QUIC and HTTP/3: frame types and lengths, QPACK
// prefix continuations, and stream/push IDs all ride on this codec.
package varint

import "encoding/binary"

// MaxValue is the largest value encodable in 8 bytes: 2^62 - 1.
const MaxValue = (uint64(1) << 62) - 1

// Encode returns the minimal-width RFC 9000 varint encoding of v.
// v must be <= MaxValue; callers that might exceed it (none in this engine
// do) must check before calling.
func Encode(v uint64) []byte {
	switch {
	case v <= 63:
		return []byte{byte(v)}
	case v <= 16383:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(v))
		buf[0] |= 0x40
		return buf
	case v <= 1073741823:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(v))
		buf[0] |= 0x80
		return buf
	default:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, v)
		buf[0] |= 0xc0
		return buf
	}
}

// Append encodes v and appends it to dst, returning the extended slice.
func Append(dst []byte, v uint64) []byte {
	return append(dst, Encode(v)...)
}

// Decode reads one varint starting at buf[0]. It returns (0, 0) if buf is
// empty or shorter than the width declared by the two-bit prefix — callers
// treat that as "need more bytes", never as a hard parse error, per spec.
func Decode(buf []byte) (value uint64, n int) {
	if len(buf) == 0 {
		return 0, 0
	}
	width := 1 << (buf[0] >> 6)
	if len(buf) < width {
		return 0, 0
	}
	first := uint64(buf[0] & 0x3f)
	switch width {
	case 1:
		return first, 1
	case 2:
		return first<<8 | uint64(buf[1]), 2
	case 4:
		return first<<24 | uint64(buf[1])<<16 | uint64(buf[2])<<8 | uint64(buf[3]), 4
	default: // 8
		v := first << 56
		for i := 1; i < 8; i++ {
			v |= uint64(buf[i]) << uint(8*(7-i))
		}
		return v, 8
	}
}

// Width returns the number of bytes Encode(v) would produce.
func Width(v uint64) int {
	switch {
	case v <= 63:
		return 1
	case v <= 16383:
		return 2
	case v <= 1073741823:
		return 4
	default:
		return 8
	}
}
