package config

import (
	"testing"

	"github.com/temochka/lantern/internal/password"
)

func TestLoadGeneratesPasswordWhenUnset(t *testing.T) {
	t.Setenv("LANTERN_PASSWORD", "")
	t.Setenv("SKIP_AUTH", "")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.GeneratedPassword == "" {
		t.Fatal("expected a generated password when LANTERN_PASSWORD is unset")
	}
	if len(cfg.GeneratedPassword) != password.GeneratedPasswordLength {
		t.Errorf("generated password length = %d, want %d", len(cfg.GeneratedPassword), password.GeneratedPasswordLength)
	}
	ok, err := password.Verify(cfg.PasswordSalt, cfg.GeneratedPassword, cfg.PasswordHash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("generated password does not verify against its own hash")
	}
}

func TestLoadUsesProvidedPassword(t *testing.T) {
	t.Setenv("LANTERN_PASSWORD", "correct horse battery staple")
	t.Setenv("SKIP_AUTH", "")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.GeneratedPassword != "" {
		t.Error("expected no generated password when LANTERN_PASSWORD is set")
	}
	ok, err := password.Verify(cfg.PasswordSalt, "correct horse battery staple", cfg.PasswordHash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("configured password does not verify against its own hash")
	}
}

func TestLoadSkipAuth(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"0", false},
		{"", false},
		{"true", false},
	}

	for _, c := range cases {
		t.Setenv("SKIP_AUTH", c.value)
		t.Setenv("LANTERN_PASSWORD", "x")
		cfg, err := Load(t.TempDir())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.SkipAuth != c.want {
			t.Errorf("SKIP_AUTH=%q: SkipAuth = %v, want %v", c.value, cfg.SkipAuth, c.want)
		}
	}
}

