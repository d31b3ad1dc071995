package lerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := New(DbError, fmt.Errorf("constraint failed"))
	if !Is(err, DbError) {
		t.Error("Is(err, DbError) = false, want true")
	}
	if Is(err, SchemaError) {
		t.Error("Is(err, SchemaError) = true, want false")
	}
}

func TestIsFollowsWrapping(t *testing.T) {
	inner := New(IoError, errors.New("disk full"))
	wrapped := fmt.Errorf("write migration file: %w", inner)

	if !Is(wrapped, IoError) {
		t.Error("Is should see through fmt.Errorf wrapping via %w")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), Internal) {
		t.Error("Is should return false for an error with no Kind")
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(SchemaError, "migration %s: %v", "20240101000000", "duplicate")
	want := "schema_error: migration 20240101000000: duplicate"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
