// Package config resolves Lantern's process-wide configuration: the root
// path, the master password and its derived hash/salt, and the skip_auth
// bypass, per §6's environment variables and §9's "global state" design
// note (constructed once at startup, shared immutably by reference; no
// runtime reconfiguration).
//
// Grounded on sovereign/internal/config.Config — a plain struct plus a
// constructor — generalized from compiled-in defaults to environment-
// variable resolution, since Lantern has no flags/YAML layer in the pack
// worth adopting for a single-binary, single-operator tool.
package config

import (
	"fmt"
	"os"

	"github.com/temochka/lantern/internal/password"
)

// ListenAddr is the fixed bind address, per §6.
const ListenAddr = "127.0.0.1:4666"

// Config is the engine's immutable process-wide state.
type Config struct {
	Root         string
	SkipAuth     bool
	PasswordSalt string
	PasswordHash []byte

	// GeneratedPassword is non-empty only when LANTERN_PASSWORD was unset
	// and a random one was generated; callers log it once at startup.
	GeneratedPassword string
}

// Load resolves configuration for root from the environment, per §6:
// LANTERN_PASSWORD (master password; generated and logged if unset) and
// SKIP_AUTH ("1" enables the §4.5 bypass).
func Load(root string) (*Config, error) {
	salt, err := password.RandomAlphanumeric(password.SaltLength)
	if err != nil {
		return nil, fmt.Errorf("generate password salt: %w", err)
	}

	plaintext := os.Getenv("LANTERN_PASSWORD")
	generated := ""
	if plaintext == "" {
		plaintext, err = password.RandomAlphanumeric(password.GeneratedPasswordLength)
		if err != nil {
			return nil, fmt.Errorf("generate master password: %w", err)
		}
		generated = plaintext
	}

	hash, err := password.Hash(salt, plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash master password: %w", err)
	}

	return &Config{
		Root:              root,
		SkipAuth:          os.Getenv("SKIP_AUTH") == "1",
		PasswordSalt:      salt,
		PasswordHash:      hash,
		GeneratedPassword: generated,
	}, nil
}
