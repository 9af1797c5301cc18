package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecret returns n random bytes hex encoded, suitable as a manifest
// signing secret when n >= MinSecretLength/2.
func GenerateSecret(n int) (string, error) {
	if n < MinSecretLength/2 {
		n = MinSecretLength / 2
	}
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
