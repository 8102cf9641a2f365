// Package database provides persistence connectivity for Gray Logic Auth.
//
// This package manages:
//   - SQLite connections with WAL mode and a busy timeout (default backend)
//   - PostgreSQL connections through the pgx database/sql driver
//   - goose migrations for both, run through a per-call goose.Provider
//     so no package-level goose state is shared
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The SQLite file holds password verifiers and is chmod 0600
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/auth.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.SQLite()); err != nil {
//	    return err
//	}
package database
