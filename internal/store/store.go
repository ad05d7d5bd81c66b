package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence layer for canonical persons, relationship edges,
// external identities, overrides, claims, and provider snapshots, backed by
// SQLite. Provider snapshots additionally sit behind an in-memory cache so
// repeated comparisons do not hit the database per field.
type Store struct {
	db        *sql.DB
	path      string
	snapshots *gocache.Cache
}

// Open initializes or connects to the database at path and applies
// migrations. The parent directory is created when missing.
func Open(path string, memoryTTL time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if memoryTTL <= 0 {
		memoryTTL = 15 * time.Minute
	}

	s := &Store{
		db:        db,
		path:      path,
		snapshots: gocache.New(memoryTTL, 2*memoryTTL),
	}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrations are applied in order; PRAGMA user_version tracks progress.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS persons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		birth_date TEXT NOT NULL DEFAULT '',
		birth_place TEXT NOT NULL DEFAULT '',
		death_date TEXT NOT NULL DEFAULT '',
		death_place TEXT NOT NULL DEFAULT '',
		burial_date TEXT NOT NULL DEFAULT '',
		burial_place TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id INTEGER NOT NULL REFERENCES persons(id),
		relative_id INTEGER NOT NULL REFERENCES persons(id),
		role TEXT NOT NULL,
		UNIQUE(person_id, relative_id, role)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_single_parent
		ON relationships(person_id, role) WHERE role IN ('father', 'mother');
	CREATE TABLE IF NOT EXISTS identities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id INTEGER NOT NULL REFERENCES persons(id),
		provider TEXT NOT NULL,
		external_id TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 1.0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		deactivated_at TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_identity_active_person
		ON identities(person_id, provider) WHERE active = 1;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_identity_active_external
		ON identities(provider, external_id) WHERE active = 1;
	CREATE TABLE IF NOT EXISTS overrides (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id INTEGER NOT NULL REFERENCES persons(id),
		entity_type TEXT NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		original TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(person_id, entity_type, field)
	);
	CREATE TABLE IF NOT EXISTS claims (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id INTEGER NOT NULL REFERENCES persons(id),
		predicate TEXT NOT NULL,
		value TEXT NOT NULL,
		source TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		external_id TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_key
		ON snapshots(provider, external_id, fetched_at);`,
}

func (s *Store) applyMigrations(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("bump schema version: %w", err)
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
