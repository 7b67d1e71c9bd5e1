package helpers

import (
	"crypto/rand"
	"encoding/hex"
)

// OpaqueTokenBytes is the entropy of verification and reset tokens (256 bits).
const OpaqueTokenBytes = 32

// GenerateOpaqueToken returns a random hex string used as a single-use lookup key.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
