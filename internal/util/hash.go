package util

import (
	"crypto/sha256"
	"encoding/hex"
)

func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}

// ContentHash fingerprints normalized text for index and embedding invalidation.
func ContentHash(s string) string {
	return SHA256Hex([]byte(s))
}
