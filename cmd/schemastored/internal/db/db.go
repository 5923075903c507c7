// Package db implements the schema storage backends on SQLite. One database
// file holds both the append-only ledger store and the versioned locator
// store; the schema is managed with embedded sql-migrate migrations.
package db

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// OpenSQLiteDB opens (and if needed bootstraps) the backing database.
// 1. Use Write-Ahead Logging (WAL).
// 2. Use synchronous=NORMAL, which is faster and still safe in WAL mode.
// 3. Wait up to the busy timeout instead of failing on a locked database.
func OpenSQLiteDB(dbFilePath string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbFilePath))
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	if err = runMigrations(db.DB, "sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB, dialect string) error {
	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       "migrations",
	}
	_, err := migrate.ExecMax(db, dialect, source, migrate.Up, 0)
	return err
}
