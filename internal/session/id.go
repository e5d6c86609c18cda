package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const idBytes = 32 // 256 bits

// GenerateID generates a cryptographically secure session ID.
func GenerateID() (string, error) {
	return RandomToken(idBytes)
}

// RandomToken returns n random bytes encoded as unpadded base64url.
// OAuth state and PKCE verifiers use it too.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
