package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Sizing(t *testing.T) {
	tests := []struct {
		name       string
		items      int
		p          float64
		wantBits   uint64
		wantHashes int
	}{
		{name: "default probability", items: 1000, p: DefaultFalsePositive, wantBits: 65536, wantHashes: 24},
		{name: "one percent", items: 100, p: 0.01, wantBits: 1024, wantHashes: 7},
		{name: "single item", items: 1, p: 0.3, wantBits: 8, wantHashes: 2},
		{name: "empty", items: 0, p: DefaultFalsePositive, wantBits: 0, wantHashes: 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewWithSeed(tt.items, tt.p, 7)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBits, f.Bits())
			assert.Equal(t, tt.wantHashes, f.Hashes())
			assert.Len(t, f.Bytes(), int(tt.wantBits/8)+2)
		})
	}
}

func TestNew_InvalidParams(t *testing.T) {
	for _, p := range []float64{0, 1, -0.5, 2} {
		_, err := New(10, p)
		assert.ErrorIs(t, err, ErrInvalidParams)
	}
	_, err := New(-1, 0.01)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestFilter_NoFalseNegatives(t *testing.T) {
	f, err := New(1000, DefaultFalsePositive)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		f.Add(fmt.Sprintf("hash-%d", i))
	}
	for i := 0; i < 1000; i++ {
		assert.True(t, f.Has(fmt.Sprintf("hash-%d", i)), "key %d", i)
	}
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	f, err := NewWithSeed(1000, 0.01, 42)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		f.Add(fmt.Sprintf("member-%d", i))
	}

	// фильтр округлён вверх до степени двойки, поэтому реальная вероятность ниже целевой
	falsePositives := 0
	for i := 0; i < 10000; i++ {
		if f.Has(fmt.Sprintf("stranger-%d", i)) {
			falsePositives++
		}
	}
	assert.Less(t, falsePositives, 300)
}

func TestFilter_ZeroSize(t *testing.T) {
	f, err := New(0, DefaultFalsePositive)
	require.NoError(t, err)

	f.Add("anything")
	assert.False(t, f.Has("anything"))
	assert.Len(t, f.Bytes(), 2)
}

func TestFromBytes_RoundTrip(t *testing.T) {
	f, err := NewWithSeed(50, 0.001, 200)
	require.NoError(t, err)
	f.Add("a")
	f.Add("b")

	data := f.Bytes()
	assert.Equal(t, byte(f.Hashes()), data[len(data)-2])
	assert.Equal(t, byte(200), data[len(data)-1])

	parsed, err := FromBytes(data)
	require.NoError(t, err)
	assert.True(t, parsed.Has("a"))
	assert.True(t, parsed.Has("b"))
	assert.Equal(t, f.Bits(), parsed.Bits())
	assert.Equal(t, f.Seed(), parsed.Seed())

	// изменение исходного буфера не влияет на фильтр
	for i := range data {
		data[i] = 0
	}
	assert.True(t, parsed.Has("a"))
}

func TestFromBytes_SeedChangesPositions(t *testing.T) {
	a, err := NewWithSeed(10, 0.01, 1)
	require.NoError(t, err)
	b, err := NewWithSeed(10, 0.01, 2)
	require.NoError(t, err)

	a.Add("same-key")
	b.Add("same-key")
	assert.NotEqual(t, a.Bytes()[:a.Bits()/8], b.Bytes()[:b.Bits()/8])
}

func TestFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "nil", data: nil},
		{name: "one byte", data: []byte{3}},
		{name: "not a power of two", data: []byte{0, 0, 0, 5, 1}},
		{name: "zero hashes", data: []byte{0, 0, 0, 0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromBytes(tt.data)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestFromBytes_EmptyFilter(t *testing.T) {
	f, err := FromBytes([]byte{24, 9})
	require.NoError(t, err)
	assert.False(t, f.Has("x"))
	assert.Equal(t, uint64(0), f.Bits())
}
