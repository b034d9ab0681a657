package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Параметры Argon2id для ключа, выведенного из парольной фразы
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 1
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// ReadKeySize - длина ключа чтения по умолчанию в байтах
	ReadKeySize = 16
	// FeedLen - длина идентификатора feed в строке подключения
	FeedLen = 20
)

// ErrInvalidConnectionString indicates a connection string that cannot be parsed
var ErrInvalidConnectionString = errors.New("invalid connection string")

// Connection - разобранная строка подключения: общий feed и симметричный ключ чтения
type Connection struct {
	Feed    string
	ReadKey []byte
}

// String собирает строку подключения обратно
func (c Connection) String() string {
	return c.Feed + base64.StdEncoding.EncodeToString(c.ReadKey)
}

// RandomChars возвращает n криптографически случайных символов base62 алфавита
func RandomChars(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		// 256 не делится на 62, небольшой перекос распределения здесь допустим
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out), nil
}

// NewConnectionString генерирует новый feed и случайный ключ чтения
func NewConnectionString() (string, error) {
	feed, err := RandomChars(FeedLen)
	if err != nil {
		return "", err
	}
	key := make([]byte, ReadKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate read key: %w", err)
	}
	return Connection{Feed: feed, ReadKey: key}.String(), nil
}

// ParseConnectionString разбирает строку: 20 символов feed, затем base64 ключа из 16 или 32 байт
func ParseConnectionString(s string) (Connection, error) {
	s = strings.TrimSpace(s)
	if len(s) <= FeedLen {
		return Connection{}, fmt.Errorf("%w: too short", ErrInvalidConnectionString)
	}

	feed := s[:FeedLen]
	if !IsBase62(feed) {
		return Connection{}, fmt.Errorf("%w: feed must be base62", ErrInvalidConnectionString)
	}

	key, err := base64.StdEncoding.DecodeString(s[FeedLen:])
	if err != nil {
		return Connection{}, fmt.Errorf("%w: failed to decode read key: %w", ErrInvalidConnectionString, err)
	}
	if len(key) != 16 && len(key) != 32 {
		return Connection{}, fmt.Errorf("%w: %w, got %d", ErrInvalidConnectionString, ErrInvalidKeySize, len(key))
	}

	return Connection{Feed: feed, ReadKey: key}, nil
}

// DeriveReadKey выводит 32-байтный ключ чтения из парольной фразы.
// Солью служит идентификатор feed, поэтому все участники feed получают один ключ.
func DeriveReadKey(passphrase, feed string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if len(feed) != FeedLen || !IsBase62(feed) {
		return nil, fmt.Errorf("%w: feed must be %d base62 characters", ErrInvalidConnectionString, FeedLen)
	}

	salt := []byte("gophmesh/feed/" + feed)
	return argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Threads, 32), nil
}

// ConnectionFromPassphrase строит строку подключения из известного feed и парольной фразы
func ConnectionFromPassphrase(feed, passphrase string) (Connection, error) {
	key, err := DeriveReadKey(passphrase, feed)
	if err != nil {
		return Connection{}, err
	}
	return Connection{Feed: feed, ReadKey: key}, nil
}
