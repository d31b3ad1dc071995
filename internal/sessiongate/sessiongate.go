// Package sessiongate resolves the session (if any) carried by an
// incoming HTTP request, per §4.5.
//
// Grounded on original_source/src/authentication.rs's FromRequest impl
// for Session: read cookie lantern_session (empty string if absent), ask
// AuthDbActor to LookupActiveSession, branch on skip_auth. Implemented as
// a plain function rather than a framework extractor, since sovereign's
// own HTTP stack is a bare http.ServeMux with no FromRequest-style
// protocol to hook into.
package sessiongate

import (
	"context"
	"net/http"
	"time"

	"github.com/temochka/lantern/internal/authdb"
)

const cookieName = "lantern_session"

// skipAuthSession is the synthetic session skip_auth hands back, per
// §4.5: id 42, token "magic", one day's validity from resolution time.
func skipAuthSession() *authdb.Session {
	now := time.Now().UTC()
	return &authdb.Session{
		ID:           42,
		SessionToken: "magic",
		StartedAt:    now,
		ExpiresAt:    now.Add(24 * time.Hour),
	}
}

// Resolve returns the session associated with r's lantern_session cookie,
// or nil if there isn't a valid one. skipAuth bypasses the lookup
// entirely and always returns the synthetic session.
func Resolve(ctx context.Context, r *http.Request, authActor *authdb.Actor, skipAuth bool) (*authdb.Session, error) {
	if skipAuth {
		return skipAuthSession(), nil
	}

	token := ""
	if cookie, err := r.Cookie(cookieName); err == nil {
		token = cookie.Value
	}

	return authActor.LookupActiveSession(ctx, token, time.Now().UTC())
}
