package kvstore

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLitePrimitive is a durable Primitive backed by a SQLite file. It lets the
// session core survive process restarts and share state between processes the
// same way sibling subdomains share the browser primitive.
//
// The per-write and aggregate ceilings still apply; they are part of the
// primitive contract, not an artifact of any particular backend.
type SQLitePrimitive struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite creates or opens the entry database at path.
//
// The database is configured with WAL mode for concurrent reads, NORMAL
// synchronous mode, a 5-second busy timeout and a single-writer connection
// pool to avoid SQLITE_BUSY errors.
func OpenSQLite(path string, logger *slog.Logger) (*SQLitePrimitive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &SQLitePrimitive{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (p *SQLitePrimitive) Close() error {
	return p.db.Close()
}

func (p *SQLitePrimitive) Get(scope, name string) (string, bool) {
	var value string
	err := p.db.QueryRow(
		"SELECT value FROM entries WHERE scope = ? AND name = ?", scope, name,
	).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			p.logger.Debug("kvstore: sqlite read failed", "name", name, "err", err)
		}
		return "", false
	}
	return value, true
}

func (p *SQLitePrimitive) Set(scope, name, value string) error {
	if len(value) > MaxValueLen {
		return ErrValueTooLarge
	}

	next := p.Size(scope) + len(name) + len(value)
	if prev, ok := p.Get(scope, name); ok {
		next -= len(name) + len(prev)
	}
	if next > HardLimit {
		return ErrQuotaExceeded
	}

	_, err := p.db.Exec(
		`INSERT INTO entries (scope, name, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		scope, name, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

func (p *SQLitePrimitive) Delete(scope, name string) {
	if _, err := p.db.Exec("DELETE FROM entries WHERE scope = ? AND name = ?", scope, name); err != nil {
		p.logger.Debug("kvstore: sqlite delete failed", "name", name, "err", err)
	}
}

func (p *SQLitePrimitive) Names(scope string) []string {
	rows, err := p.db.Query("SELECT name FROM entries WHERE scope = ?", scope)
	if err != nil {
		p.logger.Debug("kvstore: sqlite enumerate failed", "err", err)
		return nil
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			p.logger.Debug("kvstore: sqlite scan failed", "err", err)
			return nil
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		p.logger.Debug("kvstore: sqlite enumerate failed", "err", err)
		return nil
	}
	return names
}

func (p *SQLitePrimitive) Size(scope string) int {
	var size int
	err := p.db.QueryRow(
		"SELECT COALESCE(SUM(LENGTH(name) + LENGTH(value)), 0) FROM entries WHERE scope = ?", scope,
	).Scan(&size)
	if err != nil {
		p.logger.Debug("kvstore: sqlite size query failed", "err", err)
		return 0
	}
	return size
}

var _ Primitive = (*SQLitePrimitive)(nil)
