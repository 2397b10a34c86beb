package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the hex-encoded SHA-256 digest of data. Secrets are stored
// and compared as digests, never as plaintext.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of data and compares it against expectedHash
// in constant time.
func Verify(data, expectedHash string) bool {
	return TokenEquals(Hash(data), expectedHash)
}

// TokenEquals compares two tokens in constant time. It returns false for
// empty or length-mismatched input and never panics. Use this for anything
// secret-valued: session cookies, CSRF tokens, stored digests.
func TokenEquals(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return hmac.Equal([]byte(a), []byte(b))
}
