// Package qpack implements the RFC 9204 static-table-only header
// compression this engine uses on every request and response: no dynamic
// table, no blocking, the wire format x/net/internal/http3 implements for
// a similar static-only mode, adapted to this engine's own Huffman package
// rather than golang.org/x/net/http2/hpack's.
package qpack

import "github.com/nine114/h3d/internal/huffman"

// HeaderField is one decoded or to-be-encoded (name, value) pair. Names
// are expected lowercase by convention; this package does not lower-case
// for callers.
type HeaderField struct {
	Name  string
	Value string
}

// EncodeFieldSection encodes fields as a complete QPACK field section: the
// 2-byte required-insert-count/delta-base prefix (always zero, since this
// engine never uses the dynamic table) followed by one field line per
// field, in order.
func EncodeFieldSection(fields []HeaderField) []byte {
	buf := make([]byte, 0, 64+16*len(fields))
	buf = append(buf, 0x00, 0x00) // RIC=0, S=0, Delta Base=0
	for _, f := range fields {
		buf = encodeFieldLine(buf, f)
	}
	return buf
}

// DecodeFieldSection decodes a complete QPACK field section produced by
// EncodeFieldSection (or any compliant static-table-only encoder).
func DecodeFieldSection(buf []byte) ([]HeaderField, error) {
	if len(buf) < 2 {
		return nil, ErrDecompressionFailed
	}
	// This engine always emits RIC=0/Base=0 and never opens a dynamic
	// table, so any non-zero prefix here is tolerated but ignored, per
	// spec: decoders tolerate but ignore other prefix values given
	// RIC==0. We do not attempt to decode the prefix's own varint
	// encoding beyond its fixed 2-byte width, since RIC=0 never needs a
	// continuation byte.
	buf = buf[2:]

	var fields []HeaderField
	for len(buf) > 0 {
		f, n, err := decodeFieldLine(buf)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		buf = buf[n:]
	}
	return fields, nil
}

// encodeFieldLine picks, in order: a full indexed match, a name-only match
// within the first 16 static entries, or a fully literal line.
func encodeFieldLine(dst []byte, f HeaderField) []byte {
	if idx, ok := findFull(f.Name, f.Value); ok {
		return appendIndexedFieldLine(dst, idx)
	}
	if idx, ok := findName(f.Name); ok && idx < 16 {
		return appendLiteralWithNameRef(dst, idx, f.Value)
	}
	return appendLiteralWithLiteralName(dst, f.Name, f.Value)
}

// appendIndexedFieldLine: `1Txxxxxx`, T=1 (static table only).
func appendIndexedFieldLine(dst []byte, idx int) []byte {
	return appendPrefixInt(dst, 0b1100_0000, 6, uint64(idx))
}

// appendLiteralWithNameRef: `01NTxxxx` name index, then string literal value.
func appendLiteralWithNameRef(dst []byte, nameIdx int, value string) []byte {
	dst = appendPrefixInt(dst, 0b0101_0000, 4, uint64(nameIdx))
	return appendStringLiteral(dst, value)
}

// appendLiteralWithLiteralName: `001NHxxx` name length, name bytes, then
// string literal value.
func appendLiteralWithLiteralName(dst []byte, name, value string) []byte {
	dst = appendStringLiteralWithFlags(dst, 0b0010_0000, 3, name)
	return appendStringLiteral(dst, value)
}

func appendStringLiteral(dst []byte, s string) []byte {
	return appendStringLiteralWithFlags(dst, 0, 7, s)
}

// appendStringLiteralWithFlags appends an H-bit-prefixed string literal,
// choosing Huffman only when it is strictly shorter than the raw bytes.
func appendStringLiteralWithFlags(dst []byte, firstByteFlags byte, prefixLen uint8, s string) []byte {
	raw := []byte(s)
	enc := huffman.Encode(raw)
	hbit := byte(1) << prefixLen
	if len(enc) < len(raw) {
		dst = appendPrefixInt(dst, firstByteFlags|hbit, prefixLen, uint64(len(enc)))
		return append(dst, enc...)
	}
	dst = appendPrefixInt(dst, firstByteFlags, prefixLen, uint64(len(raw)))
	return append(dst, raw...)
}

// decodeFieldLine classifies buf[0] by leading-bit pattern and decodes one
// field line, returning the bytes consumed.
func decodeFieldLine(buf []byte) (HeaderField, int, error) {
	b := buf[0]
	switch {
	case b&0b1000_0000 != 0: // 1Txxxxxx: Indexed Field Line
		if b&0b0100_0000 == 0 { // T=0: dynamic table, never populated
			return HeaderField{}, 0, ErrDecompressionFailed
		}
		idx, n, err := readPrefixInt(buf, 6)
		if err != nil {
			return HeaderField{}, 0, err
		}
		ent, ok := lookupAt(idx)
		if !ok {
			return HeaderField{}, 0, ErrDecompressionFailed
		}
		return HeaderField{Name: ent.Name, Value: ent.Value}, n, nil

	case b&0b1100_0000 == 0b0100_0000: // 01NTxxxx: Literal with Name Reference
		if b&0b0001_0000 == 0 { // T=0: dynamic table, never populated
			return HeaderField{}, 0, ErrDecompressionFailed
		}
		idx, n, err := readPrefixInt(buf, 4)
		if err != nil {
			return HeaderField{}, 0, err
		}
		ent, ok := lookupAt(idx)
		if !ok {
			return HeaderField{}, 0, ErrDecompressionFailed
		}
		value, vn, err := readStringLiteral(buf[n:])
		if err != nil {
			return HeaderField{}, 0, err
		}
		return HeaderField{Name: ent.Name, Value: value}, n + vn, nil

	case b&0b1110_0000 == 0b0010_0000: // 001NHxxx: Literal with Literal Name
		name, n, err := readStringLiteralPrefixed(buf, 3)
		if err != nil {
			return HeaderField{}, 0, err
		}
		value, vn, err := readStringLiteral(buf[n:])
		if err != nil {
			return HeaderField{}, 0, err
		}
		return HeaderField{Name: name, Value: value}, n + vn, nil

	default:
		return HeaderField{}, 0, ErrDecompressionFailed
	}
}

// readStringLiteral decodes a value string literal: H flag at bit 7, a
// 7-bit length prefix. Name string literals (3-bit prefix) call
// readStringLiteralPrefixed directly.
func readStringLiteral(buf []byte) (string, int, error) {
	return readStringLiteralPrefixed(buf, 7)
}

func readStringLiteralPrefixed(buf []byte, prefixLen uint8) (string, int, error) {
	if len(buf) == 0 {
		return "", 0, ErrDecompressionFailed
	}
	hbit := byte(1) << prefixLen
	isHuffman := buf[0]&hbit != 0
	length, n, err := readPrefixInt(buf, prefixLen)
	if err != nil {
		return "", 0, err
	}
	if uint64(len(buf)-n) < length {
		return "", 0, ErrDecompressionFailed
	}
	data := buf[n : n+int(length)]
	total := n + int(length)
	if !isHuffman {
		return string(data), total, nil
	}
	dec, err := huffman.Decode(data)
	if err != nil {
		return "", 0, ErrDecompressionFailed
	}
	return string(dec), total, nil
}
