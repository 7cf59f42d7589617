package migrate

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRun_EmbeddedSchema(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Second run is a no-op.
	if err := Run(ctx, db); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = '0001'`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("0001 recorded %d times, want 1", n)
	}
	if _, err := db.Exec(`INSERT INTO readings (station_id, ts, temperature_c, humidity_pct, rssi_dbm) VALUES ('bedroom', '2025-11-03T08:00:00Z', 9.2, 44, -60)`); err != nil {
		t.Fatalf("readings table not usable: %v", err)
	}
}

func TestRun_OrderAndSkip(t *testing.T) {
	db := openMemDB(t)
	fsys := fstest.MapFS{
		"m/0002_add_col.sql": {Data: []byte(`ALTER TABLE t ADD COLUMN name TEXT;`)},
		"m/0001_create.sql":  {Data: []byte(`CREATE TABLE t (id INTEGER);`)},
		"m/README.md":        {Data: []byte(`not a migration`)},
	}

	if err := run(context.Background(), db, fsys, "m"); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := db.Exec(`INSERT INTO t (id, name) VALUES (1, 'x')`); err != nil {
		t.Fatalf("schema not applied in order: %v", err)
	}
}

func TestRun_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openMemDB(t)
	fsys := fstest.MapFS{
		"m/0001_broken.sql": {Data: []byte(`CREATE TABLE (;`)},
	}

	err := run(context.Background(), db, fsys, "m")
	if err == nil || !strings.Contains(err.Error(), "0001_broken.sql") {
		t.Fatalf("run() error = %v, want failure naming 0001_broken.sql", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("schema_migrations has %d rows, want 0", n)
	}
}
