package qpack

import "github.com/pkg/errors"

// ErrDecompressionFailed is QPACK_DECOMPRESSION_FAILED: any structurally
// invalid field line, prefix integer, or static-table reference.
var ErrDecompressionFailed = errors.New("qpack: decompression failed")

// appendPrefixInt appends an RFC 7541 §5.1 prefix integer of v, OR-ing the
// low prefixLen bits of the first byte into firstByteFlags (which must
// already have those bits cleared).
func appendPrefixInt(dst []byte, firstByteFlags byte, prefixLen uint8, v uint64) []byte {
	max := uint64(1)<<prefixLen - 1
	if v < max {
		return append(dst, firstByteFlags|byte(v))
	}
	dst = append(dst, firstByteFlags|byte(max))
	v -= max
	for v >= 128 {
		dst = append(dst, byte(v&0x7f)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// readPrefixInt reads an RFC 7541 §5.1 prefix integer starting at buf[0],
// given that buf[0]'s low prefixLen bits hold the initial value. It returns
// the decoded value and the number of bytes consumed (including buf[0]).
func readPrefixInt(buf []byte, prefixLen uint8) (v uint64, n int, err error) {
	if len(buf) == 0 {
		return 0, 0, ErrDecompressionFailed
	}
	max := uint64(1)<<prefixLen - 1
	v = uint64(buf[0]) & max
	if v != max {
		return v, 1, nil
	}
	shift := uint(0)
	for i := 1; ; i++ {
		if i >= len(buf) {
			return 0, 0, ErrDecompressionFailed
		}
		b := buf[i]
		v += uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
}
