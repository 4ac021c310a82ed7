package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// NewSQLiteTemplateStore opens (or creates) a SQLite template database at
// dbPath. ":memory:" opens an in-memory database.
func NewSQLiteTemplateStore(dbPath string) (TemplateStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One connection: keeps :memory: a single database and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil && dbPath != ":memory:" {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	return newSQLTemplateStore(db)
}
