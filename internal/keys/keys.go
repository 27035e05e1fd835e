// Package keys handles API key generation and hashing for event sources.
//
// Keys are high-entropy random strings; only their SHA-256 digests are
// stored. Comparison is constant-time: timing must not reveal which stored
// hash, if any, a presented key failed against.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Prefix identifies Sentrix source keys in logs and configs without
// revealing key material.
const Prefix = "sk_"

const rawLen = 32

// Generate returns a new plaintext API key.
func Generate() (string, error) {
	buf := make([]byte, rawLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return Prefix + hex.EncodeToString(buf), nil
}

// Hash returns the hex-encoded SHA-256 digest of a plaintext key.
func Hash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Equal compares two hash strings in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
