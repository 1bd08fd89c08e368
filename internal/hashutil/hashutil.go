// Package hashutil content-addresses build artifacts and submission ids.
//
// Every hash in the service is a 32-byte BLAKE2b digest, lower-hex encoded.
// Using a single fixed algorithm everywhere keeps a code id, an idl hash and
// a raw wasm digest directly comparable without a discriminator byte.
package hashutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HashBytes returns the lower-hex BLAKE2b-256 digest of b.
func HashBytes(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashText returns the lower-hex BLAKE2b-256 digest of s's UTF-8 bytes.
func HashText(s string) string {
	return HashBytes([]byte(s))
}

// GenerateID returns a 15-character random alphanumeric string, used as a
// Verification's opaque id. 15 characters of a 62-symbol alphabet gives
// roughly 89 bits of entropy, ample for uniqueness at this service's scale.
func GenerateID() (string, error) {
	out := make([]byte, 15)
	buf := make([]byte, 15)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out), nil
}
