package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
)

// Migration is one schema step and whether it has been applied.
type Migration struct {
	Version   int64
	Path      string
	AppliedAt time.Time
}

// Migrate applies every pending goose migration in fsys, oldest first.
//
// Each migration runs in its own transaction. If migration N fails, the
// ones before it stay applied and the next Migrate resumes at N.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - fsys: Goose *.sql files at the root (usually migrations.SQLite())
//
// Returns:
//   - error: If a migration fails; that migration is rolled back
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	return migrateUp(ctx, goose.DialectSQLite3, db.DB, fsys)
}

// MigrateDown rolls back the most recent migration. It is a no-op when
// nothing has been applied. Used by tests and during development.
func (db *DB) MigrateDown(ctx context.Context, fsys fs.FS) error {
	p, err := newProvider(goose.DialectSQLite3, db.DB, fsys)
	if err != nil || p == nil {
		return err
	}

	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version == 0 {
		return nil
	}
	if _, err := p.Down(ctx); err != nil {
		return fmt.Errorf("rolling back migration %d: %w", version, err)
	}
	return nil
}

// MigrationStatus splits the migrations in fsys into applied and pending.
func (db *DB) MigrationStatus(ctx context.Context, fsys fs.FS) (applied, pending []Migration, err error) {
	p, err := newProvider(goose.DialectSQLite3, db.DB, fsys)
	if err != nil || p == nil {
		return nil, nil, err
	}

	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading migration status: %w", err)
	}
	for _, s := range statuses {
		m := Migration{Version: s.Source.Version, Path: s.Source.Path, AppliedAt: s.AppliedAt}
		if s.State == goose.StateApplied {
			applied = append(applied, m)
		} else {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

// MigratePostgres applies the goose migrations in fsys to a PostgreSQL pool.
func MigratePostgres(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	return migrateUp(ctx, goose.DialectPostgres, db, fsys)
}

func migrateUp(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS) error {
	p, err := newProvider(dialect, db, fsys)
	if err != nil || p == nil {
		return err
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("running %s migrations: %w", dialect, err)
	}
	return nil
}

// newProvider returns nil, nil when fsys holds no migrations.
func newProvider(dialect goose.Dialect, db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	if fsys == nil {
		return nil, nil
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if errors.Is(err, goose.ErrNoMigrations) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	return p, nil
}
