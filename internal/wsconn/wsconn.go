// Package wsconn implements the ConnectionActor: the per-client state
// machine that owns one WebSocket and re-runs its live queries after every
// successful write, per §4.4.
//
// Grounded directly on sovereign/internal/ws.Conn: a struct wrapping
// *websocket.Conn (nhooyr.io/websocket) with a send chan []byte,
// readPump/writePump goroutines joined by a sync.WaitGroup, and a
// sync.Once-guarded close(). Differences, all driven by spec.md §4.4: text
// frames carrying JSON (internal/wire) instead of binary protobuf
// envelopes, and no wire-negotiated auth timeout — authenticated is
// resolved once by the caller (internal/sessiongate) before Run is
// called, so the teacher's authTimer/stateAuthenticating dance is
// dropped. The self-send of LiveQueryRefresh is modeled as a direct
// synchronous call from within the handler that completed the
// writer/migration, per §9's "address-to-self acquired at start"
// guidance, not a second goroutine — so it cannot outlive the connection.
package wsconn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/temochka/lantern/internal/logging"
	"github.com/temochka/lantern/internal/migrate"
	"github.com/temochka/lantern/internal/outbound"
	"github.com/temochka/lantern/internal/rowjson"
	"github.com/temochka/lantern/internal/userdb"
	"github.com/temochka/lantern/internal/wire"
)

const sendBufferSize = 64

// Conn is one ConnectionActor: per-client state plus the WebSocket it owns.
type Conn struct {
	ws    *websocket.Conn
	send  chan []byte
	log   *logging.Logger
	db    *userdb.Actor
	paths migrate.Paths

	authenticated bool

	liveQueries         map[string]userdb.Query
	liveQueryResponseID string

	once   sync.Once
	cancel context.CancelFunc
}

// New constructs a ConnectionActor for an already-upgraded WebSocket.
// authenticated must be resolved by the caller (internal/sessiongate)
// before Run is called — the connection never negotiates auth over the
// wire.
func New(ws *websocket.Conn, db *userdb.Actor, paths migrate.Paths, log *logging.Logger, authenticated bool) *Conn {
	return &Conn{
		ws:            ws,
		send:          make(chan []byte, sendBufferSize),
		log:           log,
		db:            db,
		paths:         paths,
		authenticated: authenticated,
		liveQueries:   make(map[string]userdb.Query),
	}
}

// Run drives the connection to completion. It blocks until the client
// disconnects or a FatalError is sent.
func (c *Conn) Run(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	defer c.cancel()

	if !c.authenticated {
		// No pump is running yet to drain c.send, so this frame is written
		// directly to the socket rather than buffered through writeFrame.
		c.ws.Write(ctx, websocket.MessageText, wire.EncodeFatalError(
			"server_authentication_required",
			"authentication_required",
			"Authentication required",
		))
		c.ws.Close(websocket.StatusNormalClosure, "authentication required")
		return
	}

	// Queued before either pump starts, so it can't race readPump's
	// deferred close(c.send) on an immediate client disconnect.
	c.send <- wire.EncodeHello()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		c.readPump(ctx)
	}()

	wg.Wait()
	c.ws.Close(websocket.StatusNormalClosure, "")
}

func (c *Conn) close() {
	c.once.Do(func() {
		c.cancel()
		close(c.send)
	})
}

func (c *Conn) writePump(ctx context.Context) {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump reads frames and dispatches them synchronously, one at a time,
// on this goroutine — so a self-directed LiveQueryRefresh triggered by a
// handler always lands before the next client message is processed, and
// always after the reply to the message that triggered it.
func (c *Conn) readPump(ctx context.Context) {
	defer c.close()

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Conn) writeFrame(ctx context.Context, data []byte) {
	select {
	case c.send <- data:
	case <-ctx.Done():
	}
}

func (c *Conn) handleFrame(ctx context.Context, data []byte) {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		c.writeFrame(ctx, wire.EncodeChannelError("Failed to parse request."))
		return
	}

	switch req.Type {
	case wire.TypeNop:
		c.writeFrame(ctx, wire.EncodeNop(req.ID))

	case wire.TypeEcho:
		c.writeFrame(ctx, wire.EncodeEcho(req.ID, req.Text))

	case wire.TypeReaderQuery:
		c.handleReaderQuery(ctx, req)

	case wire.TypeWriterQuery:
		c.handleWriterQuery(ctx, req)

	case wire.TypeLiveQuery:
		c.handleLiveQuery(ctx, req)

	case wire.TypeMigration:
		c.handleMigration(ctx, req)

	case wire.TypeHTTPRequest:
		c.handleHTTPRequest(ctx, req)

	default:
		c.writeFrame(ctx, wire.EncodeChannelError("Failed to parse request."))
	}
}

func (c *Conn) handleReaderQuery(ctx context.Context, req *wire.Request) {
	rows, err := c.db.ReaderQuery(ctx, userdb.Query{
		Query:     req.ReaderQuery.Query,
		Arguments: req.ReaderQuery.Arguments,
	})
	if err != nil {
		c.writeFrame(ctx, wire.EncodeError(req.ID, err.Error()))
		return
	}
	c.writeFrame(ctx, wire.EncodeReaderQuery(req.ID, rows))
}

func (c *Conn) handleWriterQuery(ctx context.Context, req *wire.Request) {
	result, err := c.db.WriterQuery(ctx, userdb.Query{
		Query:     req.WriterQuery.Query,
		Arguments: req.WriterQuery.Arguments,
	})
	if err != nil {
		c.writeFrame(ctx, wire.EncodeError(req.ID, err.Error()))
		return
	}
	c.writeFrame(ctx, wire.EncodeWriterQuery(req.ID, wire.WriterResult{
		ChangedRows:     result.ChangedRows,
		LastInsertRowID: result.LastInsertRowID,
	}))
	c.refreshLiveQueries(ctx)
}

func (c *Conn) handleLiveQuery(ctx context.Context, req *wire.Request) {
	queries := make(map[string]userdb.Query, len(req.Queries))
	for name, q := range req.Queries {
		queries[name] = userdb.Query{Query: q.Query, Arguments: q.Arguments}
	}
	c.liveQueries = queries
	c.liveQueryResponseID = req.ID

	results, err := c.db.LiveQueries(ctx, queries)
	if err != nil {
		c.writeFrame(ctx, wire.EncodeError(req.ID, err.Error()))
		return
	}
	c.writeFrame(ctx, wire.EncodeLiveQuery(req.ID, rowsToAny(results)))
}

func (c *Conn) handleMigration(ctx context.Context, req *wire.Request) {
	id := timestampID()

	if err := c.db.Migration(ctx, id, req.DDL); err != nil {
		c.writeFrame(ctx, wire.EncodeError(req.ID, err.Error()))
		return
	}

	if err := writeMigrationFiles(ctx, c.paths, c.db, id, req.DDL); err != nil {
		c.log.Error("failed to write migration files", "id", id, "err", err)
	}

	c.writeFrame(ctx, wire.EncodeMigration(req.ID))
	c.refreshLiveQueries(ctx)
}

func (c *Conn) handleHTTPRequest(ctx context.Context, req *wire.Request) {
	resp, err := outbound.Do(ctx, req.HTTPRequest)
	if err != nil {
		c.writeFrame(ctx, wire.EncodeError(req.ID, err.Error()))
		return
	}
	c.writeFrame(ctx, wire.EncodeHTTPRequest(req.ID, resp))
}

// refreshLiveQueries re-runs the connection's live query set and emits an
// unsolicited LiveQuery response under the id of the most recent LiveQuery
// request. If the connection never issued one, it still runs but reports
// an empty results map under id "".
func (c *Conn) refreshLiveQueries(ctx context.Context) {
	results, err := c.db.LiveQueries(ctx, c.liveQueries)
	if err != nil {
		c.writeFrame(ctx, wire.EncodeError(c.liveQueryResponseID, err.Error()))
		return
	}
	c.writeFrame(ctx, wire.EncodeLiveQuery(c.liveQueryResponseID, rowsToAny(results)))
}

func rowsToAny(results map[string][]rowjson.Row) map[string]any {
	out := make(map[string]any, len(results))
	for name, rows := range results {
		out[name] = rows
	}
	return out
}

func timestampID() string {
	return time.Now().UTC().Format("20060102150405")
}

// writeMigrationFiles persists a Migration handler's DDL to
// .schema/migrations/<id>.sql and rewrites .schema/schema.sql from a fresh
// SchemaDump, per §4.4's Migration post-action. This is the one place
// outside startup reconciliation that touches the .schema/ filesystem;
// per §5's shared-resource policy the implementation accepts last-writer-
// wins between concurrent connections since migration ids are strictly
// monotonic.
func writeMigrationFiles(ctx context.Context, paths migrate.Paths, db *userdb.Actor, id, ddl string) error {
	migrationPath := filepath.Join(paths.MigrationsDir, id+".sql")
	if err := os.WriteFile(migrationPath, []byte(ddl), 0o644); err != nil {
		return fmt.Errorf("write migration file: %w", err)
	}

	dump, err := db.SchemaDump(ctx)
	if err != nil {
		return fmt.Errorf("dump schema: %w", err)
	}
	if err := migrate.WriteSnapshotAtomically(paths.SnapshotPath, dump); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
