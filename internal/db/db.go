package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const DefaultPath = "data/surat.db"

type Config struct {
	Path string
}

func dbPath(path string) string {
	if path == "" {
		return DefaultPath
	}
	return path
}

// EnsureDir creates the directory holding the database file if missing.
func EnsureDir(path string) (string, error) {
	dir := filepath.Dir(dbPath(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the SQLite database with foreign keys on and WAL journaling, so
// readers do not block the single writer.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureDir(cfg.Path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath(cfg.Path))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the effective database path.
func Path(path string) string {
	return dbPath(path)
}
