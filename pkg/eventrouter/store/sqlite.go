package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Archive errors.
var (
	// ErrNotFound indicates an archived event doesn't exist.
	ErrNotFound = errors.New("event not found")

	// ErrArchiveClosed indicates the archive has been closed.
	ErrArchiveClosed = errors.New("event archive closed")
)

// SQLiteArchive persists events to SQLite.
//
// Each row stores the event's ToMap encoding as snappy-compressed JSON next
// to indexed identity columns. Payload numbers decode as float64.
type SQLiteArchive struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Archive = (*SQLiteArchive)(nil)

// NewSQLiteArchive opens or creates an archive.
// The path should be a file path (e.g., "./events.db") or ":memory:" for testing.
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A :memory: database exists per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			ts_nanos INTEGER NOT NULL,
			correlation_id TEXT,
			causation_id TEXT,
			is_replay INTEGER NOT NULL DEFAULT 0,
			body BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts_nanos)`,
		`CREATE INDEX IF NOT EXISTS idx_events_correlation ON events(correlation_id)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create index: %w", err)
		}
	}

	return &SQLiteArchive{db: db}, nil
}

// Append implements Archive. Appending an existing ID replaces the row.
func (a *SQLiteArchive) Append(ctx context.Context, evt *event.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrArchiveClosed
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO events (id, type, source, timestamp, ts_nanos, correlation_id, causation_id, is_replay, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			source = excluded.source,
			timestamp = excluded.timestamp,
			ts_nanos = excluded.ts_nanos,
			correlation_id = excluded.correlation_id,
			causation_id = excluded.causation_id,
			is_replay = excluded.is_replay,
			body = excluded.body
	`,
		evt.ID, evt.Type, evt.Source,
		evt.Timestamp.UTC().Format(time.RFC3339Nano), evt.Timestamp.UnixNano(),
		nullable(evt.CorrelationID), nullable(evt.CausationID),
		evt.IsReplay, snappy.Encode(nil, body),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Get loads one event.
func (a *SQLiteArchive) Get(ctx context.Context, id string) (*event.Event, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrArchiveClosed
	}

	var body []byte
	err := a.db.QueryRowContext(ctx, `SELECT body FROM events WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	return decodeBody(body)
}

// Range returns events with start <= timestamp <= end in chronological
// order. A zero start or end leaves that side open.
func (a *SQLiteArchive) Range(ctx context.Context, start, end time.Time) ([]*event.Event, error) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !start.IsZero() {
		lo = start.UnixNano()
	}
	if !end.IsZero() {
		hi = end.UnixNano()
	}
	return a.query(ctx, `
		SELECT body FROM events
		WHERE ts_nanos >= ? AND ts_nanos <= ?
		ORDER BY ts_nanos, rowid
	`, lo, hi)
}

// ByCorrelationID returns the archived events of one correlation in
// chronological order.
func (a *SQLiteArchive) ByCorrelationID(ctx context.Context, correlationID string) ([]*event.Event, error) {
	return a.query(ctx, `
		SELECT body FROM events
		WHERE correlation_id = ?
		ORDER BY ts_nanos, rowid
	`, correlationID)
}

// Count returns the number of archived events.
func (a *SQLiteArchive) Count(ctx context.Context) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return 0, ErrArchiveClosed
	}

	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close releases the database. Closing twice is a no-op.
func (a *SQLiteArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	a.closed = true
	return a.db.Close()
}

func (a *SQLiteArchive) query(ctx context.Context, q string, args ...any) ([]*event.Event, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrArchiveClosed
	}

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func decodeBody(body []byte) (*event.Event, error) {
	raw, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("decompress event: %w", err)
	}
	evt := &event.Event{}
	if err := json.Unmarshal(raw, evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
