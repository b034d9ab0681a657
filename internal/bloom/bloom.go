// Package bloom implements the Bloom filter peers exchange to summarise the
// set of change hashes they already hold.
package bloom

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// DefaultFalsePositive is the target false-positive rate used for change log filters.
const DefaultFalsePositive = 1e-7

// MaxBits caps the bit array so that 32-bit positions cover it.
const MaxBits = 1 << 32

const maxHashes = 255

var (
	// ErrInvalidParams indicates a negative item count or a probability outside (0, 1)
	ErrInvalidParams = errors.New("invalid bloom filter parameters")

	// ErrInvalidFilter indicates a serialized filter that cannot be parsed
	ErrInvalidFilter = errors.New("invalid bloom filter")
)

// Filter is a fixed-size Bloom filter over string keys.
// Filter is not safe for concurrent use; callers hold their own lock.
type Filter struct {
	bits   []byte
	m      uint64
	hashes uint8
	seed   uint8
}

// New sizes a filter for items keys at false-positive probability p, with a
// random seed.
func New(items int, p float64) (*Filter, error) {
	return NewWithSeed(items, p, uint8(rand.UintN(256)))
}

// NewWithSeed is New with an explicit seed.
func NewWithSeed(items int, p float64, seed uint8) (*Filter, error) {
	if items < 0 || !(p > 0 && p < 1) {
		return nil, fmt.Errorf("%w: items=%d p=%g", ErrInvalidParams, items, p)
	}

	hashes := math.Ceil(-math.Log(p) / math.Ln2)
	if hashes > maxHashes {
		hashes = maxHashes
	}

	f := &Filter{
		hashes: uint8(hashes),
		seed:   seed,
	}
	if items == 0 {
		return f, nil
	}

	ideal := math.Ceil(-float64(items) * math.Log(p) / (math.Ln2 * math.Ln2))
	m := roundPow2(uint64(ideal))
	if m > MaxBits {
		m = MaxBits
	}
	f.m = m
	f.bits = make([]byte, m/8)
	return f, nil
}

// FromBytes parses a filter in wire format: bit array, hash count, seed.
// The returned filter owns a copy of data.
func FromBytes(data []byte) (*Filter, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFilter, len(data))
	}
	n := len(data) - 2
	if n != 0 && (n&(n-1) != 0 || uint64(n)*8 > MaxBits) {
		return nil, fmt.Errorf("%w: bit array of %d bytes is not a power of two", ErrInvalidFilter, n)
	}
	hashes := data[n]
	if n != 0 && hashes == 0 {
		return nil, fmt.Errorf("%w: zero hash functions", ErrInvalidFilter)
	}

	f := &Filter{
		m:      uint64(n) * 8,
		hashes: hashes,
		seed:   data[n+1],
	}
	if n > 0 {
		f.bits = make([]byte, n)
		copy(f.bits, data[:n])
	}
	return f, nil
}

// Add sets the bits for key. A zero-size filter ignores the call.
func (f *Filter) Add(key string) {
	if f.m == 0 {
		return
	}
	f.locate(key, func(pos uint64) bool {
		f.bits[pos>>3] |= 1 << (pos & 7)
		return true
	})
}

// Has reports whether key may be in the set. False negatives are impossible.
func (f *Filter) Has(key string) bool {
	if f.m == 0 {
		return false
	}
	found := true
	f.locate(key, func(pos uint64) bool {
		if f.bits[pos>>3]&(1<<(pos&7)) == 0 {
			found = false
		}
		return found
	})
	return found
}

// Bytes returns the wire encoding of the filter.
func (f *Filter) Bytes() []byte {
	out := make([]byte, len(f.bits)+2)
	copy(out, f.bits)
	out[len(f.bits)] = f.hashes
	out[len(f.bits)+1] = f.seed
	return out
}

// Bits returns the size of the bit array.
func (f *Filter) Bits() uint64 {
	return f.m
}

// Hashes returns the number of bit positions per key.
func (f *Filter) Hashes() int {
	return int(f.hashes)
}

// Seed returns the per-instance hash seed.
func (f *Filter) Seed() uint8 {
	return f.seed
}

// locate feeds the bit positions of key to visit until it returns false.
// Positions come from one xxhash of seed||key split into two halves and
// combined with enhanced double hashing.
func (f *Filter) locate(key string, visit func(pos uint64) bool) {
	d := xxhash.New()
	_, _ = d.Write([]byte{f.seed})
	_, _ = d.WriteString(key)
	h := d.Sum64()

	x := uint32(h >> 32)
	y := uint32(h)
	mask := f.m - 1
	for i := uint32(0); i < uint32(f.hashes); i++ {
		if !visit(uint64(x) & mask) {
			return
		}
		x += y
		y += i
	}
}

func roundPow2(v uint64) uint64 {
	if v <= 8 {
		return 8
	}
	return 1 << bits.Len64(v-1)
}
