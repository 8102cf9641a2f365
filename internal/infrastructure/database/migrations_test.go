package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/nerrad567/gray-logic-auth/migrations"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"00001_accounts.sql": {Data: []byte(`-- +goose Up
CREATE TABLE test_accounts (id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE);

-- +goose Down
DROP TABLE test_accounts;
`)},
		"00002_audit.sql": {Data: []byte(`-- +goose Up
CREATE TABLE test_audit (id TEXT PRIMARY KEY);

-- +goose Down
DROP TABLE test_audit;
`)},
		"README.md": {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_accounts") {
		t.Fatal("table test_accounts not created")
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2 and 0", len(applied), len(pending))
	}
	if applied[0].Version != 1 || applied[0].AppliedAt.IsZero() {
		t.Errorf("applied[0] = %+v, want version 1 with a timestamp", applied[0])
	}

	// Running again should be idempotent
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	// Nothing applied yet.
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() on empty schema error = %v", err)
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_audit") {
		t.Error("test_audit still exists after MigrateDown()")
	}
	if !tableExists(t, db, "test_accounts") {
		t.Error("MigrateDown() rolled back more than one migration")
	}

	_, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Errorf("pending = %+v, want only version 2", pending)
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
	if err := db.Migrate(ctx, fstest.MapFS{}); err != nil {
		t.Errorf("Migrate(empty) error = %v", err)
	}
	applied, pending, err := db.MigrationStatus(ctx, nil)
	if err != nil || applied != nil || pending != nil {
		t.Errorf("MigrationStatus(nil) = %v, %v, %v", applied, pending, err)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"00001_good.sql": {Data: []byte("-- +goose Up\nCREATE TABLE good (id INTEGER);\n")},
		"00002_bad.sql":  {Data: []byte("-- +goose Up\nCREATE TABLE broken (;\n")},
	}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() expected error for invalid SQL, got nil")
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1 and 1", len(applied), len(pending))
	}
}

func TestMigrate_EmbeddedSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, migrations.SQLite()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"accounts", "audit_logs"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	// The shipped schema must roll all the way back.
	for range 2 {
		if err := db.MigrateDown(ctx, migrations.SQLite()); err != nil {
			t.Fatalf("MigrateDown() error = %v", err)
		}
	}
	if tableExists(t, db, "accounts") {
		t.Error("accounts still exists after full rollback")
	}
}
