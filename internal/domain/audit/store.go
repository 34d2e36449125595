package audit

import (
	"context"
	"errors"
	"time"
)

// ErrDateRangeExceeded is returned when a query's date range exceeds the
// maximum window a store is willing to scan.
var ErrDateRangeExceeded = errors.New("date range exceeds maximum of 7 days")

// Store persists audit events. Implementations must make Append
// non-blocking from the caller's perspective (buffer and flush
// asynchronously) since it sits on the request hot path.
type Store interface {
	// Append stores events. Must not block the caller on I/O.
	Append(ctx context.Context, events ...Event) error

	// Flush forces any buffered events to durable storage. Called during
	// shutdown and by tests that need to observe what was written.
	Flush(ctx context.Context) error

	// Close releases resources (file handles, background flush workers).
	Close() error
}

// Filter specifies query parameters for audit event queries.
type Filter struct {
	StartTime time.Time
	EndTime   time.Time
	EventType EventType // zero value matches all
	Status    Status    // zero value matches all
	ClientIP  string    // empty matches all
	Limit     int       // 0 means store default
	Cursor    string
}

// EventTypeStats holds per-event-type counts for a QueryStats result.
type EventTypeStats struct {
	Count int64
}

// Stats is an aggregated summary over a queried time range.
type Stats struct {
	TotalEvents int64
	ByEventType map[EventType]int64
	ByStatus    map[Status]int64
}

// QueryStore provides read access to a persisted audit trail, separate
// from Store so that a write-optimized appender need not also implement
// query support.
type QueryStore interface {
	// Query retrieves events matching filter, newest first. Returns the
	// matching page, a cursor for the next page (empty if none), and an
	// error. Returns ErrDateRangeExceeded if EndTime-StartTime exceeds the
	// store's maximum window.
	Query(ctx context.Context, filter Filter) ([]Event, string, error)

	// QueryStats returns aggregated counts for [start, end).
	QueryStats(ctx context.Context, start, end time.Time) (Stats, error)
}
