// Package idgen derives deterministic source ids and fresh entity ids.
package idgen

import (
	"crypto/sha256"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// hashKeyLength is the length of keys produced by HashKey. 8 bytes of
// sha256 fill 12.4 base36 digits.
const hashKeyLength = 12

// EncodeBase36 converts a byte slice to a base36 string of specified length.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var result strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	// Keep least significant digits
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// HashKey hashes the given parts into a short base36 key. Parts are NFC
// normalized first so visually identical input always yields the same key.
func HashKey(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = norm.NFC.String(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "\x1f")))
	return EncodeBase36(sum[:8], hashKeyLength)
}

// SourceID builds a namespaced source id: <format>:<kind>:<key>.
func SourceID(format, kind, key string) string {
	return format + ":" + kind + ":" + key
}

// NewID returns a fresh random id for a persisted entity.
func NewID() string {
	return uuid.NewString()
}

// NormalizeTitle NFC-normalizes s and collapses runs of whitespace.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// FoldName returns a case-folded, normalized form of s for equality checks.
func FoldName(s string) string {
	// Casers carry state and must not be shared across goroutines.
	return cases.Fold().String(NormalizeTitle(s))
}
