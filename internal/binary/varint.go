package binary

import (
	"fmt"
	"math"
)

// MaxVarintLen is the longest encoding of a uint64.
const MaxVarintLen = 10

// uvarintLen returns the minimal number of 7-bit groups needed for v.
func uvarintLen(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

// appendUvarint writes v most significant group first. Every byte except
// the last carries the 0x80 continuation bit.
func appendUvarint(buf []byte, v uint64) []byte {
	n := uvarintLen(v)
	for i := n - 1; i >= 0; i-- {
		b := byte(v>>(7*uint(i))) & 0x7f
		if i > 0 {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}

// readUvarint decodes a varint from the head of buf and returns the value
// and the number of bytes consumed.
func readUvarint(buf []byte) (uint64, int, error) {
	var v uint64
	for n := 0; n < len(buf); n++ {
		b := buf[n]
		if n == 0 && b == 0x80 {
			// ведущая нулевая группа - кодирование не минимальное
			return 0, 0, fmt.Errorf("%w: non-minimal varint", ErrMalformed)
		}
		if v > math.MaxUint64>>7 {
			return 0, 0, fmt.Errorf("%w: varint overflows 64 bits", ErrMalformed)
		}
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return v, n + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated varint", ErrMalformed)
}

// CheckUint converts a signed integer coming from an API boundary into an
// unsigned field value. Negative input is a contract violation.
func CheckUint(v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegative, v)
	}
	return uint64(v), nil
}
