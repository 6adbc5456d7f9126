package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA‑256 digests for stored token keys
	"encoding/hex"  // hex encoding and decoding functions
)

// SessionTokenBytes is the amount of randomness in a session token.
const SessionTokenBytes = 32

// NewSessionToken returns a cryptographically secure random token suitable
// for a session cookie (64 hex characters).
func NewSessionToken() (string, error) {
	return randomHex(SessionTokenBytes)
}

// HashToken returns the SHA‑256 hash of a raw token as a hex string.  The
// session store is keyed by this hash so a dump of Redis does not contain
// usable cookie values.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
