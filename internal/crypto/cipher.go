package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	// IVSize - размер IV направления, совпадает со стандартным nonce AES-GCM (12 bytes)
	IVSize = 12
	// CounterSize - размер счётчика сообщений, передаваемого открытым текстом
	CounterSize = 8
	// Overhead - сколько байт добавляет Seal к открытому тексту
	Overhead = CounterSize + 16
)

var (
	// ErrInvalidKeySize indicates a read key that is neither 16 nor 32 bytes
	ErrInvalidKeySize = errors.New("read key must be 16 or 32 bytes")

	// ErrDecrypt indicates an authentication failure or corrupted ciphertext
	ErrDecrypt = errors.New("failed to decrypt: authentication failed or corrupted data")

	// ErrReplay indicates a message counter that did not increase
	ErrReplay = errors.New("message counter did not increase")
)

// GenerateIV генерирует случайный IV для одного направления канала
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}
	return iv, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidKeySize, len(key))
	}

	// Создаем AES cipher block
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	// Создаем GCM mode
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// nonce = IV XOR счётчик в последних 8 байтах (big-endian).
// Пока счётчик не повторяется, nonce в пределах направления уникален.
func nonceFor(iv [IVSize]byte, counter uint64) []byte {
	nonce := iv
	var c [CounterSize]byte
	binary.BigEndian.PutUint64(c[:], counter)
	for i := 0; i < CounterSize; i++ {
		nonce[IVSize-CounterSize+i] ^= c[i]
	}
	return nonce[:]
}

// Sealer шифрует исходящие сообщения одного направления канала.
// Формат результата: counter (8 bytes) + ciphertext + auth_tag (16 bytes)
type Sealer struct {
	aead    cipher.AEAD
	counter uint64
	iv      [IVSize]byte
	mu      sync.Mutex
}

// NewSealer создает шифратор направления с ключом feed и IV этого направления
func NewSealer(key, iv []byte) (*Sealer, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	s := &Sealer{aead: aead}
	copy(s.iv[:], iv)
	return s, nil
}

// Seal шифрует сообщение со следующим значением счётчика.
// Счётчик используется как additional data, чтобы его нельзя было подменить.
func (s *Sealer) Seal(plaintext []byte) []byte {
	s.mu.Lock()
	s.counter++
	counter := s.counter
	s.mu.Unlock()

	out := make([]byte, CounterSize, CounterSize+len(plaintext)+s.aead.Overhead())
	binary.BigEndian.PutUint64(out, counter)
	return s.aead.Seal(out, nonceFor(s.iv, counter), plaintext, out[:CounterSize])
}

// Opener расшифровывает входящие сообщения одного направления канала
// и отклоняет повторы и переупорядочивание.
type Opener struct {
	aead cipher.AEAD
	last uint64
	iv   [IVSize]byte
	mu   sync.Mutex
}

// NewOpener создает дешифратор направления с ключом feed и IV удалённой стороны
func NewOpener(key, iv []byte) (*Opener, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	o := &Opener{aead: aead}
	copy(o.iv[:], iv)
	return o, nil
}

// Open проверяет и расшифровывает сообщение, созданное Sealer.Seal
func (o *Opener) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < CounterSize+o.aead.Overhead() {
		return nil, fmt.Errorf("%w: message too short", ErrDecrypt)
	}
	counter := binary.BigEndian.Uint64(sealed[:CounterSize])

	o.mu.Lock()
	defer o.mu.Unlock()

	if counter <= o.last {
		return nil, fmt.Errorf("%w: got %d after %d", ErrReplay, counter, o.last)
	}

	plaintext, err := o.aead.Open(nil, nonceFor(o.iv, counter), sealed[CounterSize:], sealed[:CounterSize])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	o.last = counter
	return plaintext, nil
}
