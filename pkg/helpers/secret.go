package helpers

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// ResetSecretBytes is the entropy of a password reset secret.
const ResetSecretBytes = 32

// GenerateResetSecret returns a hex plaintext secret for the user and the
// digest that is persisted in its place.
func GenerateResetSecret() (plain string, digest string, err error) {
	b := make([]byte, ResetSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	plain = hex.EncodeToString(b)
	return plain, HashResetSecret(plain), nil
}

// HashResetSecret is the hex SHA-256 of the plaintext secret.
func HashResetSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// ResetSecretMatches compares a plaintext secret with a stored digest in constant time.
func ResetSecretMatches(plain, digest string) bool {
	if plain == "" || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashResetSecret(plain)), []byte(digest)) == 1
}
