// Package userdb implements the UserDbActor: a serialized, single-goroutine
// owner of the user's SQLite database. It is the throughput-limiting
// serialization point §5 of the spec describes — every reader, writer,
// migration, and schema-dump request is drained from one mailbox channel
// in FIFO order by one goroutine, so database/sql's own connection pool
// is pinned to a single connection and never relied on for ordering.
//
// Grounded on sovereign/internal/ws.Hub's register/unregister select loop,
// specialized from two channels to one request mailbox, and on
// original_source/src/user_db.rs's actix::Handler<M> message set
// (ReaderQuery, WriterQuery, DbMigration, LiveQueries, SchemaDump).
package userdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/temochka/lantern/internal/lerr"
	"github.com/temochka/lantern/internal/logging"
	"github.com/temochka/lantern/internal/rowjson"
)

// Query mirrors the wire ReaderQuery/WriterQuery shape: SQL text plus named
// bind arguments (missing entries bind NULL; extras are ignored).
type Query struct {
	Query     string
	Arguments map[string]*string
}

// WriterResult is returned by a successful WriterQuery.
type WriterResult struct {
	ChangedRows     uint64
	LastInsertRowID int64
}

type request struct {
	kind    string
	reader  Query
	writer  Query
	migID   string
	migDDL  string
	live    map[string]Query
	reply   chan response
	ctx     context.Context
}

type response struct {
	rows    []rowjson.Row
	writer  WriterResult
	ok      bool
	dump    string
	live    map[string][]rowjson.Row
	err     error
}

const (
	kindReader = "reader"
	kindWriter = "writer"
	kindMigration = "migration"
	kindDump = "dump"
	kindLive = "live"
)

// Actor owns one SQLite connection and drains a single request mailbox.
type Actor struct {
	db     *sql.DB
	log    *logging.Logger
	mail   chan request
	done   chan struct{}
}

// Open opens the user database at path and starts the actor's mailbox
// loop in a new goroutine. Callers must call Close when finished.
func Open(path string, log *logging.Logger) (*Actor, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open user database: %w", err)
	}
	// One connection, serialized by the mailbox goroutine below — not a
	// pool. See the package doc for why this matters beyond WAL safety.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	a := &Actor{
		db:   db,
		log:  log,
		mail: make(chan request),
		done: make(chan struct{}),
	}

	if err := a.bootstrapIfNeeded(); err != nil {
		db.Close()
		return nil, err
	}

	go a.run()
	return a, nil
}

// bootstrapIfNeeded creates schema_migrations if this is a brand-new
// database, per §4.1: "if the database has no schema_migrations table,
// execute the empty schema bootstrap".
func (a *Actor) bootstrapIfNeeded() error {
	_, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("bootstrap schema_migrations: %w", err)
	}
	return nil
}

// Close stops the actor's mailbox loop and closes the database handle.
func (a *Actor) Close() error {
	close(a.done)
	return a.db.Close()
}

// DB exposes the underlying handle for the migration manager, which runs
// before the actor's own request loop is the only writer (startup
// reconciliation happens before any ConnectionActor can send messages).
func (a *Actor) DB() *sql.DB { return a.db }

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
	case kindReader:
		rows, err := a.runReader(req.ctx, req.reader)
		return response{rows: rows, err: err}
	case kindWriter:
		w, err := a.runWriter(req.ctx, req.writer)
		return response{writer: w, err: err}
	case kindMigration:
		err := a.runMigration(req.ctx, req.migID, req.migDDL)
		return response{ok: err == nil, err: err}
	case kindDump:
		dump, err := a.dumpSchema(req.ctx)
		return response{dump: dump, err: err}
	case kindLive:
		results, err := a.runLiveQueries(req.ctx, req.live)
		return response{live: results, err: err}
	default:
		return response{err: lerr.Newf(lerr.Internal, "unknown actor request kind %q", req.kind)}
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

// ReaderQuery runs a read-only query and returns each matching row as
// JSON, per §4.1.
func (a *Actor) ReaderQuery(ctx context.Context, q Query) ([]rowjson.Row, error) {
	resp := a.send(ctx, request{kind: kindReader, reader: q})
	return resp.rows, resp.err
}

// WriterQuery executes one DML statement and reports rows changed and the
// last insert rowid.
func (a *Actor) WriterQuery(ctx context.Context, q Query) (WriterResult, error) {
	resp := a.send(ctx, request{kind: kindWriter, writer: q})
	return resp.writer, resp.err
}

// Migration applies a DDL script transactionally and records id in
// schema_migrations.
func (a *Actor) Migration(ctx context.Context, id, ddl string) error {
	resp := a.send(ctx, request{kind: kindMigration, migID: id, migDDL: ddl})
	return resp.err
}

// SchemaDump returns the current schema snapshot text, per §4.1.
func (a *Actor) SchemaDump(ctx context.Context) (string, error) {
	resp := a.send(ctx, request{kind: kindDump})
	return resp.dump, resp.err
}

// LiveQueries runs each named query in iteration order, aborting on first
// failure.
func (a *Actor) LiveQueries(ctx context.Context, queries map[string]Query) (map[string][]rowjson.Row, error) {
	resp := a.send(ctx, request{kind: kindLive, live: queries})
	return resp.live, resp.err
}

func (a *Actor) runReader(ctx context.Context, q Query) ([]rowjson.Row, error) {
	stmt, err := a.db.PrepareContext(ctx, q.Query)
	if err != nil {
		return nil, lerr.New(lerr.DbError, fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, namedArgs(q.Query, q.Arguments)...)
	if err != nil {
		return nil, lerr.New(lerr.DbError, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	results, err := rowjson.ScanRows(rows)
	if err != nil {
		return nil, lerr.New(lerr.Internal, err)
	}
	return results, nil
}

func (a *Actor) runWriter(ctx context.Context, q Query) (WriterResult, error) {
	if isMultiStatement(q.Query) {
		return WriterResult{}, lerr.Newf(lerr.DbError, "writer query must be a single statement")
	}

	result, err := a.db.ExecContext(ctx, q.Query, namedArgs(q.Query, q.Arguments)...)
	if err != nil {
		return WriterResult{}, lerr.New(lerr.DbError, fmt.Errorf("exec: %w", err))
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return WriterResult{}, lerr.New(lerr.DbError, fmt.Errorf("rows affected: %w", err))
	}
	lastID, err := result.LastInsertId()
	if err != nil {
		return WriterResult{}, lerr.New(lerr.DbError, fmt.Errorf("last insert id: %w", err))
	}
	return WriterResult{ChangedRows: uint64(changed), LastInsertRowID: lastID}, nil
}

func (a *Actor) runMigration(ctx context.Context, id, ddl string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return lerr.New(lerr.DbError, fmt.Errorf("begin: %w", err))
	}

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		tx.Rollback()
		return lerr.New(lerr.SchemaError, fmt.Errorf("apply migration %s: %w", id, err))
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", id); err != nil {
		tx.Rollback()
		return lerr.New(lerr.DbError, fmt.Errorf("record migration %s: %w", id, err))
	}
	if err := tx.Commit(); err != nil {
		return lerr.New(lerr.DbError, fmt.Errorf("commit migration %s: %w", id, err))
	}
	return nil
}

func (a *Actor) dumpSchema(ctx context.Context) (string, error) {
	var maxVersion int64
	err := a.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&maxVersion)
	if err != nil {
		return "", lerr.New(lerr.DbError, fmt.Errorf("read max version: %w", err))
	}

	rows, err := a.db.QueryContext(ctx, "SELECT sql FROM sqlite_master WHERE name NOT LIKE 'sqlite\\_%' ESCAPE '\\' ORDER BY name")
	if err != nil {
		return "", lerr.New(lerr.DbError, fmt.Errorf("read sqlite_master: %w", err))
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var sqlText sql.NullString
		if err := rows.Scan(&sqlText); err != nil {
			return "", lerr.New(lerr.DbError, fmt.Errorf("scan sqlite_master row: %w", err))
		}
		if sqlText.Valid {
			stmts = append(stmts, sqlText.String)
		}
	}
	if err := rows.Err(); err != nil {
		return "", lerr.New(lerr.DbError, err)
	}

	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(s)
		b.WriteString(";\n\n")
	}
	fmt.Fprintf(&b, "INSERT INTO schema_migrations (version) VALUES (%d);\n\n", maxVersion)
	return b.String(), nil
}

func (a *Actor) runLiveQueries(ctx context.Context, queries map[string]Query) (map[string][]rowjson.Row, error) {
	results := make(map[string][]rowjson.Row, len(queries))
	for name, q := range queries {
		rows, err := a.runReader(ctx, q)
		if err != nil {
			return nil, err
		}
		results[name] = rows
	}
	return results, nil
}

// namedArgs converts Lantern's name->optional-string argument mapping into
// database/sql named parameters, binding NULL for entries with a nil value
// and for every :name, @name or $name in query that args does not supply.
func namedArgs(query string, args map[string]*string) []any {
	out := make([]any, 0, len(args))
	bound := make(map[string]bool, len(args))
	for name, val := range args {
		bound[strings.TrimPrefix(name, ":")] = true
		if val == nil {
			out = append(out, sql.Named(strings.TrimPrefix(name, ":"), nil))
		} else {
			out = append(out, sql.Named(strings.TrimPrefix(name, ":"), *val))
		}
	}
	for _, m := range paramName.FindAllStringSubmatch(query, -1) {
		if !bound[m[1]] {
			bound[m[1]] = true
			out = append(out, sql.Named(m[1], nil))
		}
	}
	return out
}

var paramName = regexp.MustCompile(`[:@$]([A-Za-z][A-Za-z0-9_]*)`)

// isMultiStatement is a coarse guard against multi-statement writer input:
// it rejects any statement containing a semicolon that is not the final
// character (after trimming trailing whitespace). SQLite itself silently
// executes only the first statement via database/sql's single-statement
// Exec, so this exists to surface a DbError instead of silently dropping
// statements 2..n, per §4.1 ("Multi-statement input is rejected with
// DbError").
func isMultiStatement(query string) bool {
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	return strings.Contains(trimmed, ";")
}
