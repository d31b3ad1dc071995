// Package authdb implements the AuthDbActor: a serialized SQLite actor
// scoped to the sessions table, per §4.2. Same mailbox shape as
// internal/userdb, scaled down to two message kinds.
//
// Grounded on sovereign/internal/store/session.go's CreateSession /
// GetSessionByTokenHash shape, adapted from hashed-token lookup (the
// teacher looks sessions up by SHA-256 of the token) to Lantern's
// plaintext-token-by-value lookup, since §4.2 specifies a direct
// session_token=? match rather than a hash comparison.
package authdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/temochka/lantern/internal/lerr"
	"github.com/temochka/lantern/internal/logging"
)

// Session is an authenticated session row.
type Session struct {
	ID            int64
	SessionToken  string
	StartedAt     time.Time
	ExpiresAt     time.Time
}

type request struct {
	kind  string
	token string
	start time.Time
	end   time.Time
	now   time.Time
	reply chan response
	ctx   context.Context
}

type response struct {
	session *Session
	err     error
}

const (
	kindCreate = "create"
	kindLookup = "lookup"
)

// Actor owns the AuthDB SQLite connection.
type Actor struct {
	db   *sql.DB
	log  *logging.Logger
	mail chan request
	done chan struct{}
}

// Open opens the session database at path, creates lantern_sessions
// idempotently, and starts the actor's mailbox loop.
func Open(path string, log *logging.Logger) (*Actor, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open auth database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS lantern_sessions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		session_token TEXT NOT NULL UNIQUE,
		started_at    TEXT NOT NULL,
		expires_at    TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create lantern_sessions: %w", err)
	}

	a := &Actor{db: db, log: log, mail: make(chan request), done: make(chan struct{})}
	go a.run()
	return a, nil
}

// Close stops the actor loop and closes the database handle.
func (a *Actor) Close() error {
	close(a.done)
	return a.db.Close()
}

func (a *Actor) run() {
	for {
		select {
		case req := <-a.mail:
			req.reply <- a.handle(req)
		case <-a.done:
			return
		}
	}
}

func (a *Actor) handle(req request) response {
	switch req.kind {
	case kindCreate:
		err := a.create(req.ctx, req.token, req.start, req.end)
		return response{err: err}
	case kindLookup:
		sess, err := a.lookup(req.ctx, req.token, req.now)
		return response{session: sess, err: err}
	default:
		return response{err: lerr.Newf(lerr.Internal, "unknown auth actor request %q", req.kind)}
	}
}

func (a *Actor) send(ctx context.Context, req request) response {
	req.ctx = ctx
	req.reply = make(chan response, 1)
	select {
	case a.mail <- req:
	case <-ctx.Done():
		return response{err: ctx.Err()}
	}
	select {
	case resp := <-req.reply:
		return resp
	case <-ctx.Done():
		return response{err: ctx.Err()}
	}
}

// CreateSession inserts a new session row, per §4.2.
func (a *Actor) CreateSession(ctx context.Context, token string, startedAt, expiresAt time.Time) error {
	resp := a.send(ctx, request{kind: kindCreate, token: token, start: startedAt, end: expiresAt})
	return resp.err
}

// LookupActiveSession returns the session matching token with expires_at >
// now, or nil if none matches.
func (a *Actor) LookupActiveSession(ctx context.Context, token string, now time.Time) (*Session, error) {
	resp := a.send(ctx, request{kind: kindLookup, token: token, now: now})
	return resp.session, resp.err
}

func (a *Actor) create(ctx context.Context, token string, startedAt, expiresAt time.Time) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO lantern_sessions (session_token, started_at, expires_at) VALUES (?, ?, ?)`,
		token, startedAt.UTC().Format(time.RFC3339Nano), expiresAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return lerr.New(lerr.DbError, fmt.Errorf("insert session: %w", err))
	}
	return nil
}

func (a *Actor) lookup(ctx context.Context, token string, now time.Time) (*Session, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id, session_token, started_at, expires_at FROM lantern_sessions
		 WHERE session_token = ? AND julianday(expires_at) > julianday(?) LIMIT 1`,
		token, now.UTC().Format(time.RFC3339Nano))

	var (
		id         int64
		tok        string
		startedStr string
		expiresStr string
	)
	err := row.Scan(&id, &tok, &startedStr, &expiresStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, lerr.New(lerr.DbError, fmt.Errorf("lookup session: %w", err))
	}

	startedAt, err := time.Parse(time.RFC3339Nano, startedStr)
	if err != nil {
		return nil, lerr.New(lerr.Internal, fmt.Errorf("parse started_at: %w", err))
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, expiresStr)
	if err != nil {
		return nil, lerr.New(lerr.Internal, fmt.Errorf("parse expires_at: %w", err))
	}

	return &Session{ID: id, SessionToken: tok, StartedAt: startedAt, ExpiresAt: expiresAt}, nil
}
