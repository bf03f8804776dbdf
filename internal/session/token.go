package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes is 256 bits of entropy, double the guessing-infeasibility
// floor.
const tokenBytes = 32

// GenerateToken generates a cryptographically secure opaque session token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
