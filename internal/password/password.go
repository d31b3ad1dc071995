// Package password implements Lantern's master-password scheme: scrypt
// hashing of salt||password with a constant-time comparison, plus the
// random alphanumeric generators the engine uses for salts, passwords, and
// session tokens. Grounded on sovereign/internal/auth.generateSession's
// crypto/rand usage, adapted from base64url output to the alphanumeric
// alphabets §6 of the spec requires.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"

	"golang.org/x/crypto/scrypt"
)

const (
	// SaltLength is the length, in characters, of the generated scrypt salt.
	SaltLength = 32

	// GeneratedPasswordLength is the length of the master password Lantern
	// generates when LANTERN_PASSWORD is unset.
	GeneratedPasswordLength = 128

	// SessionTokenLength is the length of a session token handed back from
	// POST /_api/auth.
	SessionTokenLength = 128

	// scrypt cost parameters: N=2^10, r=8, p=1.
	scryptN      = 1 << 10
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomAlphanumeric returns a cryptographically random alphanumeric
// string of the given length.
func RandomAlphanumeric(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate random index: %w", err)
		}
		out[i] = alphanumeric[n.Int64()]
	}
	return string(out), nil
}

// Hash derives a scrypt hash of salt||password. The caller persists both
// salt and the returned hash; only the derived hash is retained, never the
// password itself.
func Hash(salt, plaintext string) ([]byte, error) {
	combined := append([]byte(salt), []byte(plaintext)...)
	hash, err := scrypt.Key(combined, []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	return hash, nil
}

// Verify reports whether plaintext, salted with salt, matches hash. The
// comparison is constant-time in the hash bytes.
func Verify(salt, plaintext string, hash []byte) (bool, error) {
	candidate, err := Hash(salt, plaintext)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(candidate, hash) == 1, nil
}
