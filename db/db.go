package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS pushes (
	id TEXT PRIMARY KEY,
	pushed_at TEXT NOT NULL,
	model_name TEXT NOT NULL,
	serial_number TEXT,
	url_base TEXT NOT NULL,
	payload TEXT NOT NULL,
	dry_run BOOLEAN NOT NULL DEFAULT FALSE,
	error TEXT
);
CREATE INDEX IF NOT EXISTS pushes_pushed_at ON pushes (pushed_at);
`

// Open opens the push history database at path, creating the schema if needed.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := ApplySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
