package authdb

import (
	"context"
	"testing"
	"time"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	a, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestCreateAndLookupActiveSession(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := a.CreateSession(ctx, "tok-1", now, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	session, err := a.LookupActiveSession(ctx, "tok-1", now)
	if err != nil {
		t.Fatalf("LookupActiveSession: %v", err)
	}
	if session == nil {
		t.Fatal("expected a session, got nil")
	}
	if session.SessionToken != "tok-1" {
		t.Errorf("SessionToken = %q, want %q", session.SessionToken, "tok-1")
	}
}

func TestLookupActiveSessionExpired(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := a.CreateSession(ctx, "tok-2", now.Add(-2*time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	session, err := a.LookupActiveSession(ctx, "tok-2", now)
	if err != nil {
		t.Fatalf("LookupActiveSession: %v", err)
	}
	if session != nil {
		t.Errorf("expected nil for an expired session, got %+v", session)
	}
}

func TestLookupActiveSessionMissingToken(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()

	session, err := a.LookupActiveSession(ctx, "", time.Now().UTC())
	if err != nil {
		t.Fatalf("LookupActiveSession: %v", err)
	}
	if session != nil {
		t.Errorf("expected nil for an empty token, got %+v", session)
	}
}
