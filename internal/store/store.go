package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions, kept in PRAGMA user_version:
//
//	0 - messages table, ids unique across the store
//	1 - (channel, seq) index so polls read the head of a channel directly
//	2 - ids unique per channel instead of per store; dead_letters table
//
// schema.sql always describes the latest version; a new file starts there.
// Migrations bring files written by older versions up to it.
var migrations = []migration{
	{version: 1, apply: migrateToV1},
	{version: 2, apply: migrateToV2},
}

type migration struct {
	version int
	apply   func(tx *sql.Tx) error
}

// Store is a SQLite message store. Each channel is a FIFO of messages
// ordered by insertion; polling removes the head.
type Store struct {
	db *sql.DB
}

// Open opens the message store at path, creating the file if needed, and
// migrates it to the current schema.
//
// Connections use:
//   - WAL journaling, so drains can read while a route writes
//   - synchronous=NORMAL, durable across application crashes
//   - a 5 second busy timeout when another process holds the write lock
//   - foreign key enforcement
//
// Several processes may open the same file; each Open is idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: pragmas are per connection and SQLite has one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragmas: %q: %w", pragma, err)
		}
	}

	var version, tables int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'messages'`).Scan(&tables)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if tables == 0 {
		version = migrations[len(migrations)-1].version
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}
	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		if err := s.migrate(m); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
	}
	return nil
}

// migrate applies m and records its version in one transaction.
func (s *Store) migrate(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := m.apply(tx); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrateToV1(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_channel_seq ON messages(channel, seq)`)
	return err
}

// migrateToV2 rebuilds messages without the store-wide UNIQUE(id), which
// SQLite cannot drop in place. seq values are carried over so FIFO order
// and the AUTOINCREMENT high-water mark survive.
func migrateToV2(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE messages_v2 (
		    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		    id           TEXT    NOT NULL,
		    channel      TEXT    NOT NULL,
		    created_at   TEXT    NOT NULL,
		    headers      TEXT    NOT NULL DEFAULT '{}',
		    payload_kind TEXT    NOT NULL CHECK (payload_kind IN ('text', 'bytes', 'xml', 'json')),
		    payload      BLOB,
		    UNIQUE (channel, id)
		);
		INSERT INTO messages_v2 (seq, id, channel, created_at, headers, payload_kind, payload)
		    SELECT seq, id, channel, created_at, headers, payload_kind, payload FROM messages;
		DROP TABLE messages;
		ALTER TABLE messages_v2 RENAME TO messages;
		CREATE INDEX IF NOT EXISTS idx_messages_channel_seq ON messages(channel, seq);
	`)
	return err
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
