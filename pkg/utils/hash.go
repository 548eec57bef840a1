package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns a stable hex digest used as a cache key for text content.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
// A non-positive max leaves s untouched.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
