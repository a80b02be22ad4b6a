package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// DB is the message store. It owns one sqlite connection pool shared by
// the email, recipient and attachment operations.
type DB struct {
	*sqlx.DB
}

// New opens the message store at path, creating the parent directory if
// needed. The connection runs in WAL mode with foreign keys enforced so
// recipient and attachment rows cascade with their email.
func New(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}

	return &DB{db}, nil
}

// Migrate creates the message store schema, including the search index.
// The index is an FTS5 virtual table, and go-sqlite3 only compiles the
// FTS5 module in when built with -tags sqlite_fts5; without it the
// schema cannot be created and the store is unusable, so Migrate fails
// up front with an error naming the tag.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		if isSQLiteError(err, "no such module: fts5") {
			return fmt.Errorf("sqlite driver built without FTS5, rebuild with -tags sqlite_fts5: %w", err)
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// isSQLiteError reports whether err is a sqlite3.Error whose message
// contains substr.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return strings.Contains(sqliteErr.Error(), substr)
}
