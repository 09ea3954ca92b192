package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/go-libsql"
)

// Open connects to a libSQL database. A libsql:// or https:// path is used
// as a remote URL; anything else is a local SQLite file, configured for
// concurrent use with WAL, a 5 s busy timeout and foreign keys.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	remote := strings.HasPrefix(path, "libsql://") || strings.HasPrefix(path, "https://")
	dsn := path
	if !remote {
		dsn = "file:" + path
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to :memory: is its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if !remote {
		// libSQL rejects Exec for PRAGMAs that return rows, so drain them
		// through QueryContext instead.
		for _, p := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
		} {
			rows, err := db.QueryContext(ctx, p)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("executing %s: %w", p, err)
			}
			rows.Close()
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}
