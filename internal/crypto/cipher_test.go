package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T, keySize int) (*Sealer, *Opener) {
	t.Helper()

	key := make([]byte, keySize)
	_, _ = rand.Read(key)
	iv, err := GenerateIV()
	require.NoError(t, err)

	sealer, err := NewSealer(key, iv)
	require.NoError(t, err)
	opener, err := NewOpener(key, iv)
	require.NoError(t, err)
	return sealer, opener
}

func TestSealOpen(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
		keySize   int
	}{
		{name: "aes-128", plaintext: []byte("Hello, World!"), keySize: 16},
		{name: "aes-256", plaintext: []byte("Hello, World!"), keySize: 32},
		{name: "empty plaintext", plaintext: []byte{}, keySize: 16},
		{name: "large payload", plaintext: make([]byte, 200000), keySize: 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealer, opener := newPair(t, tt.keySize)

			sealed := sealer.Seal(tt.plaintext)
			assert.Len(t, sealed, len(tt.plaintext)+Overhead)

			opened, err := opener.Open(sealed)
			require.NoError(t, err)
			assert.Equal(t, len(tt.plaintext), len(opened))
			assert.Equal(t, tt.plaintext, append([]byte{}, opened...))
		})
	}
}

func TestSeal_DistinctNonces(t *testing.T) {
	sealer, _ := newPair(t, 16)

	// одинаковый открытый текст даёт разный шифротекст, т.к. счётчик растёт
	a := sealer.Seal([]byte("same"))
	b := sealer.Seal([]byte("same"))
	assert.NotEqual(t, a, b)
}

func TestOpen_RejectsReplay(t *testing.T) {
	sealer, opener := newPair(t, 16)

	first := sealer.Seal([]byte("one"))
	second := sealer.Seal([]byte("two"))

	_, err := opener.Open(second)
	require.NoError(t, err)

	// переупорядоченное сообщение
	_, err = opener.Open(first)
	assert.ErrorIs(t, err, ErrReplay)

	// повтор
	_, err = opener.Open(second)
	assert.ErrorIs(t, err, ErrReplay)
}

func TestOpen_Tampered(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{name: "flipped ciphertext bit", mutate: func(b []byte) []byte { b[len(b)-1] ^= 1; return b }},
		{name: "changed counter", mutate: func(b []byte) []byte { b[CounterSize-1]++; return b }},
		{name: "too short", mutate: func(b []byte) []byte { return b[:CounterSize+3] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealer, opener := newPair(t, 32)
			sealed := tt.mutate(sealer.Seal([]byte("payload")))

			_, err := opener.Open(sealed)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestOpen_WrongKeyOrIV(t *testing.T) {
	key := make([]byte, 16)
	otherKey := make([]byte, 16)
	otherKey[0] = 1
	iv, _ := GenerateIV()
	otherIV, _ := GenerateIV()

	sealer, err := NewSealer(key, iv)
	require.NoError(t, err)
	sealed := sealer.Seal([]byte("secret"))

	wrongKey, err := NewOpener(otherKey, iv)
	require.NoError(t, err)
	_, err = wrongKey.Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)

	wrongIV, err := NewOpener(key, otherIV)
	require.NoError(t, err)
	_, err = wrongIV.Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewSealer_Invalid(t *testing.T) {
	iv, _ := GenerateIV()

	_, err := NewSealer(make([]byte, 24), iv)
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewOpener(make([]byte, 64), iv)
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewSealer(make([]byte, 16), iv[:8])
	assert.Error(t, err)
}
