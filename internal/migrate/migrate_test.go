package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/temochka/lantern/internal/logging"
	"github.com/temochka/lantern/internal/userdb"
)

func newTestRoot(t *testing.T) (string, Paths) {
	t.Helper()
	root := t.TempDir()
	paths := NewPaths(root)
	return root, paths
}

func writeMigrationFile(t *testing.T, paths Paths, version int64, ddl string) {
	t.Helper()
	if err := os.MkdirAll(paths.MigrationsDir, 0o755); err != nil {
		t.Fatalf("mkdir migrations: %v", err)
	}
	name := strconv.FormatInt(version, 10) + ".sql"
	if err := os.WriteFile(filepath.Join(paths.MigrationsDir, name), []byte(ddl), 0o644); err != nil {
		t.Fatalf("write migration file: %v", err)
	}
}

func TestReconcileAppliesFreshMigrations(t *testing.T) {
	_, paths := newTestRoot(t)
	writeMigrationFile(t, paths, 1, "CREATE TABLE t (x INT)")

	db, err := userdb.Open(":memory:", logging.New("error"))
	if err != nil {
		t.Fatalf("userdb.Open: %v", err)
	}
	defer db.Close()

	if err := Reconcile(context.Background(), paths, db, logging.New("error")); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, err := db.ReaderQuery(context.Background(), userdb.Query{Query: "SELECT x FROM t"}); err != nil {
		t.Fatalf("expected table t to exist after reconciliation: %v", err)
	}

	if _, err := os.Stat(paths.SnapshotPath); err != nil {
		t.Errorf("expected a schema snapshot to be written: %v", err)
	}
}

// TestReconcileSkipsSnapshotCoveredVersions is property P5.
func TestReconcileSkipsSnapshotCoveredVersions(t *testing.T) {
	_, paths := newTestRoot(t)

	// Build the DB that will become the source of the snapshot.
	seed, err := userdb.Open(":memory:", logging.New("error"))
	if err != nil {
		t.Fatalf("userdb.Open (seed): %v", err)
	}
	for _, id := range []string{"3", "4", "5"} {
		if err := seed.Migration(context.Background(), id, "CREATE TABLE t"+id+" (x INT)"); err != nil {
			t.Fatalf("seed Migration %s: %v", id, err)
		}
	}
	dump, err := seed.SchemaDump(context.Background())
	if err != nil {
		t.Fatalf("seed SchemaDump: %v", err)
	}
	seed.Close()

	if err := os.MkdirAll(paths.MigrationsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := WriteSnapshotAtomically(paths.SnapshotPath, dump); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	writeMigrationFile(t, paths, 3, "CREATE TABLE t3 (x INT)")
	writeMigrationFile(t, paths, 4, "CREATE TABLE t4 (x INT)")
	writeMigrationFile(t, paths, 6, "CREATE TABLE t6 (x INT)")

	db, err := userdb.Open(":memory:", logging.New("error"))
	if err != nil {
		t.Fatalf("userdb.Open: %v", err)
	}
	defer db.Close()

	if err := Reconcile(context.Background(), paths, db, logging.New("error")); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// t6 must have been executed (it wasn't in the snapshot).
	if _, err := db.ReaderQuery(context.Background(), userdb.Query{Query: "SELECT x FROM t6"}); err != nil {
		t.Errorf("expected table t6 to exist: %v", err)
	}

	applied, max, err := appliedVersions(context.Background(), db.DB())
	if err != nil {
		t.Fatalf("appliedVersions: %v", err)
	}
	for _, v := range []int64{3, 4, 5, 6} {
		if _, ok := applied[v]; !ok {
			t.Errorf("expected version %d to be recorded as applied", v)
		}
	}
	if max != 6 {
		t.Errorf("max applied = %d, want 6", max)
	}
}

// TestSortedMigrationFilesFilenameDiscipline is property P6.
func TestSortedMigrationFilesFilenameDiscipline(t *testing.T) {
	_, paths := newTestRoot(t)
	if err := os.MkdirAll(paths.MigrationsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	for _, name := range []string{"abc.sql", "12a.sql", "20240101000000.sql", "7.sql"} {
		if err := os.WriteFile(filepath.Join(paths.MigrationsDir, name), []byte("CREATE TABLE x (a INT)"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := sortedMigrationFiles(paths.MigrationsDir)
	if err != nil {
		t.Fatalf("sortedMigrationFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2 (abc.sql and 12a.sql must be ignored): %+v", len(files), files)
	}
	if files[0].version != 7 || files[1].version != 20240101000000 {
		t.Errorf("versions = %d, %d", files[0].version, files[1].version)
	}
}
