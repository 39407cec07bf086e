package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex returns the hex-encoded SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ETag returns a strong HTTP entity tag for a response body.
// Only the first 16 bytes of the digest are used.
func ETag(body []byte) string {
	return `"` + Sha256Hex(body)[:32] + `"`
}
