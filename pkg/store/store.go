// Package store persists infractions, mutes and per-guild mute roles in SQLite.
package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB wraps the sqlx connection. It is safe for concurrent use.
type DB struct {
	conn *sqlx.DB
	path string
	log  *slog.Logger
}

// Open connects to the SQLite database at path, creating the file and its
// directory if needed, and applies any pending migrations.
func Open(path string, log *slog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	conn, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, path: path, log: log}
	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening migrations: %w", err)
	}
	if err := db.migrate(migrations); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("Database ready", "path", path)
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Size returns the size of the database file in bytes.
func (db *DB) Size() (int64, error) {
	info, err := os.Stat(db.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// migrate applies every .sql file in migrations that is not yet recorded in
// schema_migrations, in filename order. Each file runs in its own transaction.
func (db *DB) migrate(migrations fs.FS) error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	var applied []string
	if err := db.conn.Select(&applied, "SELECT filename FROM schema_migrations"); err != nil {
		return fmt.Errorf("querying schema_migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	for _, name := range files {
		if done[name] {
			continue
		}
		body, err := fs.ReadFile(migrations, name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		err = db.WithTx(context.Background(), func(tx *sqlx.Tx) error {
			if _, err := tx.Exec(string(body)); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO schema_migrations (filename) VALUES (?)", name)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying %s: %w", name, err)
		}
		db.log.Info("Applied migration", "file", name)
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is committed if fn
// returns nil and rolled back otherwise, including when fn panics.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
