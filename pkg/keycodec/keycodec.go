// Package keycodec maps numeric identifiers to compact base62 keys and back,
// and produces random candidate keys for the allocator.
package keycodec

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
)

// Alphabet is digits, then lowercase, then uppercase. Index 0 is '0'.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const (
	base = uint64(len(Alphabet))

	// DefaultKeyLength gives 62^6 candidates.
	DefaultKeyLength = 6

	// MinKeyLength and MaxKeyLength bound every persisted key.
	MinKeyLength = 1
	MaxKeyLength = 20
)

var (
	ErrInvalidCharacter = errors.New("invalid base62 character")
	ErrOverflow         = errors.New("base62 value overflows uint64")
)

var alphabetIndex = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		idx[Alphabet[i]] = int8(i)
	}
	return idx
}()

// Encode converts n to base62 without padding. Encode(0) is "0".
func Encode(n uint64) string {
	if n == 0 {
		return Alphabet[:1]
	}
	var buf [11]byte // 62^11 > 2^64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%base]
		n /= base
	}
	return string(buf[i:])
}

// Decode is the inverse of Encode.
func Decode(s string) (uint64, error) {
	var n uint64
	for i := 0; i < len(s); i++ {
		d := alphabetIndex[s[i]]
		if d < 0 {
			return 0, ErrInvalidCharacter
		}
		if n > (math.MaxUint64-uint64(d))/base {
			return 0, ErrOverflow
		}
		n = n*base + uint64(d)
	}
	return n, nil
}

// Source is the randomness a caller injects into RandomKey. *rand.Rand
// satisfies it but is not safe for concurrent use; DefaultSource is.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultSource draws from the runtime's goroutine-safe generator.
func DefaultSource() Source { return globalSource{} }

// RandomKey returns length characters drawn uniformly, with replacement,
// from Alphabet. A non-positive length means DefaultKeyLength. The result is
// a collision candidate, not a secret.
func RandomKey(src Source, length int) string {
	if length <= 0 {
		length = DefaultKeyLength
	}
	if src == nil {
		src = DefaultSource()
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(Alphabet[src.IntN(len(Alphabet))])
	}
	return b.String()
}

// ValidKey reports whether s may be stored as a key: 1-20 characters from
// [A-Za-z0-9_-].
func ValidKey(s string) bool {
	if len(s) < MinKeyLength || len(s) > MaxKeyLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if alphabetIndex[c] < 0 && c != '_' && c != '-' {
			return false
		}
	}
	return true
}
