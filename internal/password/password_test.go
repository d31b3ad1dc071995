package password

import "testing"

func TestRandomAlphanumericLengthAndAlphabet(t *testing.T) {
	s, err := RandomAlphanumeric(64)
	if err != nil {
		t.Fatalf("RandomAlphanumeric: %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("len = %d, want 64", len(s))
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Fatalf("unexpected rune %q in generated string", r)
		}
	}
}

func TestRandomAlphanumericIsRandom(t *testing.T) {
	a, err := RandomAlphanumeric(32)
	if err != nil {
		t.Fatalf("RandomAlphanumeric: %v", err)
	}
	b, err := RandomAlphanumeric(32)
	if err != nil {
		t.Fatalf("RandomAlphanumeric: %v", err)
	}
	if a == b {
		t.Fatal("two random strings collided, extremely unlikely unless RNG is broken")
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	salt, err := RandomAlphanumeric(SaltLength)
	if err != nil {
		t.Fatalf("RandomAlphanumeric: %v", err)
	}
	hash, err := Hash(salt, "hunter2")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := Verify(salt, "hunter2", hash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("Verify should succeed for the correct password")
	}

	ok, err = Verify(salt, "wrong", hash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("Verify should fail for the wrong password")
	}
}

func TestHashDiffersBySalt(t *testing.T) {
	h1, err := Hash("saltsaltsaltsaltsaltsaltsaltsalt", "password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := Hash("differentsaltdifferentsaltsalts", "password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if string(h1) == string(h2) {
		t.Error("hashes with different salts should differ")
	}
}
