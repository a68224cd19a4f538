package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateToken returns a URL-safe random token of n bytes of entropy.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateVerificationToken returns a 48-byte URL-safe token for email verification links.
func GenerateVerificationToken() (string, error) {
	return GenerateToken(48)
}
