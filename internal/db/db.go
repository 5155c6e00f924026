// Package db owns the single SQLite file galleria keeps its index in:
// media_files (the deduplicated path index the gallery reads), scan_history
// (one row per scan session) and scan_errors (per-file failures keyed to a
// session). Open returns a handle with the schema already up to date; there
// is no separate migration step to forget.
package db

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// busyTimeoutMS is how long a statement waits on the write lock before
// failing. Thumbnail-info lookups land while the scan goroutine is
// inserting, so this needs to comfortably cover a batch of upserts.
const busyTimeoutMS = 5000

// Open opens (or creates) the galleria database at path, applies the WAL
// pragmas, and brings the schema up to date from the embedded migrations.
// The returned handle is limited to one connection: the scan goroutine is
// the only writer, and a single connection under WAL keeps its upserts from
// ever seeing SQLITE_BUSY while the API reads concurrently.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON", // scan_errors rows die with their session
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// migrate applies pending goose migrations. Safe to run on an already
// current database, so every Open call goes through it.
func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
