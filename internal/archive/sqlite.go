// Package archive persists stored hub events to SQLite as an append-only
// audit trail. The hub only writes to it; history served to subscribers
// always comes from memory.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// tsLayout is fixed-width so timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a hub sink backed by SQLite.
type Store struct {
	db *sql.DB
}

// Filter narrows a Tail query. Zero values match everything.
type Filter struct {
	ProducerID string
	Type       string
	Since      time.Time
	Limit      int
}

// Open opens (or creates) an archive database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: wal: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			source        TEXT NOT NULL,
			type          TEXT NOT NULL,
			timestamp     TEXT NOT NULL,
			producer_id   TEXT NOT NULL,
			producer_name TEXT NOT NULL DEFAULT '',
			icon          TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT '',
			message       TEXT NOT NULL DEFAULT '',
			details       TEXT NOT NULL DEFAULT '',
			activity      TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_events_producer ON events(producer_id);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`)
	if err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "archive" }

// Deliver appends ev. Re-delivering the same event id is a no-op.
func (s *Store) Deliver(ctx context.Context, ev protocol.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, source, type, timestamp, producer_id, producer_name, icon, status, message, details, activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID, string(ev.Source), ev.Type, ev.Timestamp.UTC().Format(tsLayout), ev.ProducerID,
		ev.ProducerName, ev.Icon, string(ev.Status), ev.Message, ev.Details, ev.Activity)
	if err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	return nil
}

// Tail returns the most recent matching events, oldest first.
func (s *Store) Tail(ctx context.Context, f Filter) ([]protocol.Event, error) {
	query := "SELECT id, source, type, timestamp, producer_id, producer_name, icon, status, message, details, activity FROM events WHERE 1=1"
	var args []any

	if f.ProducerID != "" {
		query += " AND producer_id = ?"
		args = append(args, f.ProducerID)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(tsLayout))
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: tail: %w", err)
	}
	defer rows.Close()

	var events []protocol.Event
	for rows.Next() {
		var ev protocol.Event
		var source, status, ts string
		if err := rows.Scan(&ev.ID, &source, &ev.Type, &ts, &ev.ProducerID, &ev.ProducerName,
			&ev.Icon, &status, &ev.Message, &ev.Details, &ev.Activity); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		ev.Source = protocol.Source(source)
		ev.Status = protocol.Status(status)
		ev.Timestamp, _ = time.Parse(tsLayout, ts)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: tail: %w", err)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Count returns the number of archived events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
