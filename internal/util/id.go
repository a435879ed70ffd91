// Package util generates the random identifiers used for sessions and tokens.
package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// NewID returns "<prefix>_<32 hex chars>", or the bare hex when prefix is empty.
func NewID(prefix string) string {
	id := hex.EncodeToString(randomBytes(16))
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewSecret returns n random bytes as unpadded base64url, for bearer secrets
// such as refresh tokens.
func NewSecret(n int) string {
	return base64.RawURLEncoding.EncodeToString(randomBytes(n))
}

func randomBytes(n int) []byte {
	buf := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(buf)
	return buf
}
