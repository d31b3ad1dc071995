// Package migrate implements the MigrationManager: synchronous,
// startup-only reconciliation of on-disk migration files against the
// applied-versions table, per spec.md §4.3.
//
// Grounded on sovereign/internal/store/store.go's migrate() — an ordered
// migration list applied transaction-per-migration against a
// schema_version table — generalized from a fixed compiled-in slice to a
// directory of <version>.sql files plus the first-run snapshot bootstrap
// this engine requires. The version-skip logic (step 7) has no analogue
// in the teacher and is built fresh, grounded on the original Rust
// DbMigration timestamp-id scheme (original_source/src/user_db.rs).
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/temochka/lantern/internal/lerr"
	"github.com/temochka/lantern/internal/logging"
	"github.com/temochka/lantern/internal/userdb"
)

var migrationFilename = regexp.MustCompile(`^(\d+)\.sql$`)

const (
	migrationsDirName = "migrations"
	schemaDirName      = "schema"
	snapshotFileName   = "schema.sql"
)

// Paths holds the on-disk locations MigrationManager reconciles, all
// derived from root.
type Paths struct {
	Root          string
	MigrationsDir string
	SnapshotPath  string
	LanternDir    string
}

// NewPaths derives the fixed directory layout from root, per §2:
// <root>/.schema/migrations/, <root>/.schema/schema.sql, <root>/.lantern/.
func NewPaths(root string) Paths {
	schemaDir := filepath.Join(root, ".schema")
	return Paths{
		Root:          root,
		MigrationsDir: filepath.Join(schemaDir, migrationsDirName),
		SnapshotPath:  filepath.Join(schemaDir, snapshotFileName),
		LanternDir:    filepath.Join(root, ".lantern"),
	}
}

// Reconcile runs the startup procedure of §4.3 against an already-open
// UserDB actor. Failure at any step aborts startup; there is no
// partial-apply rollback beyond each migration's own transaction.
func Reconcile(ctx context.Context, paths Paths, db *userdb.Actor, log *logging.Logger) error {
	if err := os.MkdirAll(paths.MigrationsDir, 0o755); err != nil {
		return lerr.New(lerr.IoError, fmt.Errorf("create migrations dir: %w", err))
	}
	if err := os.MkdirAll(paths.LanternDir, 0o755); err != nil {
		return lerr.New(lerr.IoError, fmt.Errorf("create lantern dir: %w", err))
	}

	isNewDB, err := isNewDatabase(ctx, db.DB())
	if err != nil {
		return err
	}

	if isNewDB {
		if err := bootstrapFromSnapshot(ctx, paths, db); err != nil {
			return err
		}
	}

	applied, maxApplied, err := appliedVersions(ctx, db.DB())
	if err != nil {
		return err
	}

	files, err := sortedMigrationFiles(paths.MigrationsDir)
	if err != nil {
		return err
	}

	for _, f := range files {
		if _, ok := applied[f.version]; ok {
			continue
		}
		if isNewDB && f.version < maxApplied {
			if err := recordWithoutExecuting(ctx, db.DB(), f.version); err != nil {
				return err
			}
			continue
		}
		contents, err := os.ReadFile(f.path)
		if err != nil {
			return lerr.New(lerr.IoError, fmt.Errorf("read migration %s: %w", f.path, err))
		}
		if err := db.Migration(ctx, strconv.FormatInt(f.version, 10), string(contents)); err != nil {
			return err
		}
	}

	dump, err := db.SchemaDump(ctx)
	if err != nil {
		return err
	}
	if err := WriteSnapshotAtomically(paths.SnapshotPath, dump); err != nil {
		return err
	}

	log.Info("migrations reconciled", "applied", len(files), "is_new_db", isNewDB)
	return nil
}

// isNewDatabase reports whether schema_migrations has ever recorded an
// applied version. UserDbActor.Open always creates schema_migrations
// idempotently (so runMigration and dumpSchema work even outside
// reconciliation), which means the table's mere existence can't signal
// newness by the time Reconcile runs — an empty table is the equivalent
// signal for "no migration history" in this implementation.
func isNewDatabase(ctx context.Context, sdb *sql.DB) (bool, error) {
	var count int64
	if err := sdb.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return false, lerr.New(lerr.DbError, fmt.Errorf("check schema_migrations: %w", err))
	}
	return count == 0, nil
}

// bootstrapFromSnapshot executes .schema/schema.sql as one batch, if
// present and non-empty, then ensures schema_migrations exists. The
// snapshot's trailing INSERT reinstates schema_migrations rows up to its
// own max, so no further bookkeeping happens here.
func bootstrapFromSnapshot(ctx context.Context, paths Paths, db *userdb.Actor) error {
	contents, err := os.ReadFile(paths.SnapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ensureSchemaMigrationsTable(ctx, db.DB())
		}
		return lerr.New(lerr.IoError, fmt.Errorf("read snapshot: %w", err))
	}
	if len(contents) == 0 {
		return ensureSchemaMigrationsTable(ctx, db.DB())
	}

	// userdb.Open has already created an empty schema_migrations table; the
	// snapshot carries its own CREATE TABLE for it, so drop the empty one
	// first to keep the two from colliding.
	if _, err := db.DB().ExecContext(ctx, "DROP TABLE IF EXISTS schema_migrations"); err != nil {
		return lerr.New(lerr.DbError, fmt.Errorf("drop empty schema_migrations: %w", err))
	}
	if _, err := db.DB().ExecContext(ctx, string(contents)); err != nil {
		return lerr.New(lerr.SchemaError, fmt.Errorf("execute snapshot: %w", err))
	}
	return ensureSchemaMigrationsTable(ctx, db.DB())
}

func ensureSchemaMigrationsTable(ctx context.Context, sdb *sql.DB) error {
	_, err := sdb.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY NOT NULL
	)`)
	if err != nil {
		return lerr.New(lerr.DbError, fmt.Errorf("ensure schema_migrations: %w", err))
	}
	return nil
}

func appliedVersions(ctx context.Context, sdb *sql.DB) (map[int64]struct{}, int64, error) {
	rows, err := sdb.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, 0, lerr.New(lerr.DbError, fmt.Errorf("read schema_migrations: %w", err))
	}
	defer rows.Close()

	applied := make(map[int64]struct{})
	var max int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, 0, lerr.New(lerr.DbError, fmt.Errorf("scan version: %w", err))
		}
		applied[v] = struct{}{}
		if v > max {
			max = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, lerr.New(lerr.DbError, err)
	}
	return applied, max, nil
}

func recordWithoutExecuting(ctx context.Context, sdb *sql.DB, version int64) error {
	_, err := sdb.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version)
	if err != nil {
		return lerr.New(lerr.DbError, fmt.Errorf("record migration %d: %w", version, err))
	}
	return nil
}

type migrationFile struct {
	version int64
	path    string
}

// sortedMigrationFiles lists .schema/migrations/*.sql, parses basenames
// via migrationFilename, and sorts ascending by version. Filenames that
// don't match the pattern are ignored; a matching filename whose digits
// overflow int64 fails startup.
func sortedMigrationFiles(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, lerr.New(lerr.IoError, fmt.Errorf("list migrations: %w", err))
	}

	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFilename.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, lerr.New(lerr.SchemaError, fmt.Errorf("migration filename %q: %w", e.Name(), err))
		}
		files = append(files, migrationFile{version: version, path: filepath.Join(dir, e.Name())})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// WriteSnapshotAtomically writes contents to a temp file beside path and
// renames it into place, so a crash mid-write never leaves a truncated
// snapshot. Exported because internal/wsconn's Migration handler also
// rewrites the snapshot after a live migration, not just at startup.
func WriteSnapshotAtomically(path, contents string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".schema-*.tmp")
	if err != nil {
		return lerr.New(lerr.IoError, fmt.Errorf("create temp snapshot: %w", err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(contents); err != nil {
		tmp.Close()
		return lerr.New(lerr.IoError, fmt.Errorf("write temp snapshot: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return lerr.New(lerr.IoError, fmt.Errorf("close temp snapshot: %w", err))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return lerr.New(lerr.IoError, fmt.Errorf("replace snapshot: %w", err))
	}
	return nil
}
