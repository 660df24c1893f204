package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// SecureToken returns a hex-encoded string generated from n bytes of
// cryptographically secure random data. Invitation tokens use 32 bytes
// (64 hex chars); the token is the only credential an invitee presents,
// so it must be unguessable.
func SecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
