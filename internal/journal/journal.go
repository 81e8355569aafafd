// Package journal persists security and intent events in SQLite so an
// owner can review what happened while they were away.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one journaled event.
type Entry struct {
	ID     string
	Kind   string
	Detail string
	At     time.Time
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the journal at path. Use ":memory:" for a
// throwaway journal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// one writer keeps sqlite and the in-memory mode sane
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id      TEXT PRIMARY KEY,
			kind    TEXT NOT NULL,
			detail  TEXT NOT NULL DEFAULT '',
			at_unix INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS events_at ON events (at_unix)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Record appends an event.
func (s *Store) Record(ctx context.Context, kind, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, kind, detail, at_unix) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), kind, detail, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	return nil
}

// Recent returns up to n events, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, detail, at_unix FROM events ORDER BY at_unix DESC, rowid DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			at int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Detail, &at); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
