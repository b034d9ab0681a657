package crypto

import (
	"crypto/sha256"
	"math/big"
)

// Alphabet - base62 алфавит хэшей изменений и идентификаторов feed
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HashLen - длина хэша изменения: 62^43 > 2^256
const HashLen = 43

// HashChange возвращает идентичность изменения: SHA256 его байт в base62.
// Длина фиксирована, чтобы хэши можно было сравнивать как строки.
func HashChange(data []byte) string {
	sum := sha256.Sum256(data)
	return encodeBase62(sum[:], HashLen)
}

// encodeBase62 кодирует big-endian число в base62 с ведущими нулями до width символов
func encodeBase62(b []byte, width int) string {
	n := new(big.Int).SetBytes(b)
	base := big.NewInt(int64(len(Alphabet)))
	rem := new(big.Int)

	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		n.QuoRem(n, base, rem)
		out[i] = Alphabet[rem.Int64()]
	}
	return string(out)
}

// IsBase62 проверяет, что строка состоит только из символов алфавита
func IsBase62(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
