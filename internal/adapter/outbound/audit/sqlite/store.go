// Package sqlite provides an optional durable audit.QueryStore backed by
// a local SQLite database, for deployments that want indexed queries
// over the audit trail beyond the file store's in-memory recent-events
// cache.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Apt-Gate/Aptgate/internal/domain/audit"
)

const maxQueryWindow = 7 * 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp   TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	client_ip   TEXT,
	method      TEXT,
	path        TEXT NOT NULL,
	user_agent  TEXT,
	status      TEXT NOT NULL,
	message     TEXT,
	duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
`

// Store is a durable, queryable mirror of the audit trail. It implements
// both audit.Store (Append) and audit.QueryStore (Query/QueryStats).
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path and ensures its schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite allows one writer at a time.

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append implements audit.Store.
func (s *Store) Append(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_events (timestamp, event_type, client_ip, method, path, user_agent, status, message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			string(ev.EventType),
			ev.ClientIP,
			ev.Method,
			ev.Path,
			ev.UserAgent,
			string(ev.Status),
			ev.Message,
			ev.DurationMs,
		); err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}

	return tx.Commit()
}

// Flush implements audit.Store; each Append already commits a
// transaction, so there is nothing buffered to flush.
func (s *Store) Flush(_ context.Context) error {
	return nil
}

// Close implements audit.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Query implements audit.QueryStore.
func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, string, error) {
	if !filter.StartTime.IsZero() && !filter.EndTime.IsZero() && filter.EndTime.Sub(filter.StartTime) > maxQueryWindow {
		return nil, "", audit.ErrDateRangeExceeded
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT timestamp, event_type, client_ip, method, path, user_agent, status, message, duration_ms FROM audit_events WHERE 1=1`
	args := []any{}

	if !filter.StartTime.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartTime.UTC().Format(time.RFC3339Nano))
	}
	if !filter.EndTime.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.EndTime.UTC().Format(time.RFC3339Nano))
	}
	if filter.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, string(filter.EventType))
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.ClientIP != "" {
		query += " AND client_ip = ?"
		args = append(args, filter.ClientIP)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			ev        audit.Event
			ts        string
			eventType string
			status    string
		)
		if err := rows.Scan(&ts, &eventType, &ev.ClientIP, &ev.Method, &ev.Path, &ev.UserAgent, &status, &ev.Message, &ev.DurationMs); err != nil {
			return nil, "", fmt.Errorf("scan audit event: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, "", fmt.Errorf("parse audit event timestamp: %w", err)
		}
		ev.Timestamp = parsed
		ev.EventType = audit.EventType(eventType)
		ev.Status = audit.Status(status)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	return events, "", nil
}

// QueryStats implements audit.QueryStore.
func (s *Store) QueryStats(ctx context.Context, start, end time.Time) (audit.Stats, error) {
	stats := audit.Stats{
		ByEventType: make(map[audit.EventType]int64),
		ByStatus:    make(map[audit.Status]int64),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, status, COUNT(*)
		FROM audit_events
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY event_type, status
	`, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return audit.Stats{}, fmt.Errorf("query audit stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventType string
			status    string
			count     int64
		)
		if err := rows.Scan(&eventType, &status, &count); err != nil {
			return audit.Stats{}, fmt.Errorf("scan audit stats row: %w", err)
		}
		stats.ByEventType[audit.EventType(eventType)] += count
		stats.ByStatus[audit.Status(status)] += count
		stats.TotalEvents += count
	}
	if err := rows.Err(); err != nil {
		return audit.Stats{}, err
	}

	return stats, nil
}

var (
	_ audit.Store      = (*Store)(nil)
	_ audit.QueryStore = (*Store)(nil)
)
