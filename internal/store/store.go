// Package store provides the durable local queue backing the SDK: an
// embedded SQLite database holding queued events, session continuity
// markers, key/value state and progression attempt counters. It is the
// sole source of truth across restarts.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"
)

// Default storage-size policy. Above the hard ceiling only
// session/business-critical categories may still be queued; above the
// trim threshold the oldest sessions are dropped on startup.
const (
	DefaultMaxSizeBytes  = 6291456
	DefaultTrimThreshold = 5242880

	// trimSessionCount is how many of the oldest sessions are dropped
	// when the trim threshold is exceeded.
	trimSessionCount = 3
)

// Options tunes the storage-size policy.
type Options struct {
	MaxSizeBytes  int64
	TrimThreshold int64
}

// DefaultOptions returns the default storage-size policy.
func DefaultOptions() Options {
	return Options{
		MaxSizeBytes:  DefaultMaxSizeBytes,
		TrimThreshold: DefaultTrimThreshold,
	}
}

// SessionRow is one session continuity marker: the identity of an open
// session plus the last event snapshot seen for it.
type SessionRow struct {
	SessionID string
	StartTS   int64
	Snapshot  []byte
}

// Store is the embedded SQLite store. A single write connection is used
// and every call runs on the scheduler worker, so statements never
// contend with each other.
type Store struct {
	db    *sql.DB
	path  string
	opts  Options
	ready bool
}

type tableDef struct {
	name   string
	create string
	probe  string
}

var tables = []tableDef{
	{
		name:   "events",
		create: "CREATE TABLE IF NOT EXISTS events(status TEXT NOT NULL, category TEXT NOT NULL, session_id TEXT NOT NULL, client_ts INTEGER NOT NULL, event BLOB NOT NULL)",
		probe:  "SELECT status FROM events LIMIT 1",
	},
	{
		name:   "session",
		create: "CREATE TABLE IF NOT EXISTS session(session_id TEXT PRIMARY KEY NOT NULL, timestamp INTEGER NOT NULL, event BLOB NOT NULL)",
		probe:  "SELECT session_id FROM session LIMIT 1",
	},
	{
		name:   "state",
		create: "CREATE TABLE IF NOT EXISTS state(key TEXT PRIMARY KEY NOT NULL, value TEXT)",
		probe:  "SELECT key FROM state LIMIT 1",
	},
	{
		name:   "progression",
		create: "CREATE TABLE IF NOT EXISTS progression(progression TEXT PRIMARY KEY NOT NULL, tries INTEGER NOT NULL)",
		probe:  "SELECT progression FROM progression LIMIT 1",
	},
}

// Open opens (or creates) the store at path, ensures the schema and
// trims oversized event backlogs. Commits are synchronous: a mutation
// observed by a committed reader is durable before the call returns.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path, opts: opts}

	if err := s.ensureTables(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.trimEvents(); err != nil {
		log.Printf("store: trim failed: %v", err)
	}
	s.ready = true

	log.Printf("store: database opened: %s", path)
	return s, nil
}

// Ready reports whether the schema was created and probed successfully.
func (s *Store) Ready() bool {
	return s != nil && s.ready
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureTables creates the schema. Each table is probed with a trivial
// SELECT after creation; a failing probe triggers drop-and-recreate of
// that single table, never the whole store.
func (s *Store) ensureTables() error {
	for _, t := range tables {
		if _, err := s.db.Exec(t.create); err != nil {
			return fmt.Errorf("store: failed to create table %s: %w", t.name, err)
		}
		if _, err := s.db.Exec(t.probe); err == nil {
			continue
		}
		log.Printf("store: table %s corrupt, recreating", t.name)
		if _, err := s.db.Exec("DROP TABLE " + t.name); err != nil {
			return fmt.Errorf("store: failed to drop corrupt table %s: %w", t.name, err)
		}
		if _, err := s.db.Exec(t.create); err != nil {
			return fmt.Errorf("store: failed to recreate table %s: %w", t.name, err)
		}
		if _, err := s.db.Exec(t.probe); err != nil {
			return fmt.Errorf("store: table %s still failing after recreate: %w", t.name, err)
		}
	}
	return nil
}

// execWrite runs a mutating statement inside a transaction.
func (s *Store) execWrite(query string, args ...any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(query, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: write failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit failed: %w", err)
	}
	return nil
}

// SizeBytes returns the on-disk size of the store, including the WAL.
func (s *Store) SizeBytes() int64 {
	var total int64
	for _, suffix := range []string{"", "-wal"} {
		if info, err := os.Stat(s.path + suffix); err == nil {
			total += info.Size()
		}
	}
	return total
}

// TooLargeForEvents reports whether the store exceeds the hard size
// ceiling for accepting non-critical event categories.
func (s *Store) TooLargeForEvents() bool {
	return s.SizeBytes() > s.opts.MaxSizeBytes
}

// trimEvents drops the oldest sessions' events and reclaims space when
// the store exceeds the soft size threshold on startup.
func (s *Store) trimEvents() error {
	if s.SizeBytes() <= s.opts.TrimThreshold {
		return nil
	}

	rows, err := s.db.Query(
		"SELECT session_id FROM events GROUP BY session_id ORDER BY MAX(client_ts) ASC LIMIT ?",
		trimSessionCount)
	if err != nil {
		return fmt.Errorf("store: failed to find oldest sessions: %w", err)
	}
	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("store: failed to scan session id: %w", err)
		}
		sessions = append(sessions, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	log.Printf("store: database too large when initializing, deleting the oldest %d session(s)", len(sessions))
	for _, id := range sessions {
		if err := s.execWrite("DELETE FROM events WHERE session_id = ?", id); err != nil {
			return err
		}
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("store: vacuum failed: %w", err)
	}
	return nil
}

// encodeBlob compresses an event payload for storage.
func encodeBlob(payload []byte) []byte {
	return snappy.Encode(nil, payload)
}

// decodeBlob decompresses a stored event payload.
func decodeBlob(blob []byte) ([]byte, error) {
	return snappy.Decode(nil, blob)
}
