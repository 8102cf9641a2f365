// Package migrations embeds the schema migrations into the binary.
//
// Both dialects use goose files (NNNNN_name.sql with -- +goose Up / Down
// sections). The schemas match column for column; only types differ.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql
var sqliteFiles embed.FS

//go:embed postgres/*.sql
var postgresFiles embed.FS

// SQLite returns the migrations for the default SQLite store.
func SQLite() fs.FS {
	return mustSub(sqliteFiles, "sqlite")
}

// Postgres returns the goose migrations for the Postgres credential store.
func Postgres() fs.FS {
	return mustSub(postgresFiles, "postgres")
}

func mustSub(fsys embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		// Only reachable if the embed directive and dir disagree.
		panic(err)
	}
	return sub
}
