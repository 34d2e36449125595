package geo

import (
	"sync/atomic"
	"time"
)

// Database maps a client IP to a structured location record. The only
// hot-path mutable handle in the system; implementations are read-only
// after construction and safe for concurrent Lookup calls.
type Database interface {
	// Lookup resolves ip to a Location. ok is false if the address is not
	// present in the database.
	Lookup(ip string) (loc Location, ok bool, err error)
	// Close releases any resources (open file handles, mmaps) held by the
	// database.
	Close() error
}

// Engine wraps a read-only geo database and an ordered rule set, per
// spec.md §4.5. The database handle is held behind an atomic pointer so
// that ReloadDatabase can swap it without readers paying synchronization
// cost, and in-flight requests complete against whichever handle they
// observed.
type Engine struct {
	db     atomic.Pointer[Database]
	policy PolicyConfig
	stats  *LocationStats
}

// NewEngine creates an Engine over the given database and policy. db may
// be nil if the database is unavailable; CheckRequest then always
// evaluates to the default action with a reason noting the missing
// database.
func NewEngine(db Database, policy PolicyConfig) *Engine {
	e := &Engine{policy: policy, stats: NewLocationStats()}
	if db != nil {
		e.db.Store(&db)
	}
	return e
}

// ReloadDatabase atomically swaps in a new database handle. Requests
// already in flight continue to observe the database handle they started
// with.
func (e *Engine) ReloadDatabase(db Database) {
	e.db.Store(&db)
}

// database returns the currently active database handle, or nil if none
// is loaded.
func (e *Engine) database() Database {
	ptr := e.db.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Enabled reports whether geo evaluation is both configured-on and has a
// loaded database.
func (e *Engine) Enabled() bool {
	return e.policy.Enabled && e.database() != nil
}

// CheckRequest looks up ip and evaluates the rule set against the
// resulting location. If the policy is disabled, or the database is
// unavailable, the default action is returned with an explanatory reason
// rather than an error — per spec.md §4.5 and §7, a missing geo database
// degrades to default_action rather than failing the request.
func (e *Engine) CheckRequest(ip string) Decision {
	if !e.policy.Enabled {
		return Decision{
			Action: e.policy.DefaultAction,
			Reason: "geo policy disabled",
		}
	}

	db := e.database()
	if db == nil {
		return Decision{
			Action: e.policy.DefaultAction,
			Reason: "geo database not available",
		}
	}

	loc, ok, err := db.Lookup(ip)
	if err != nil || !ok {
		loc = Location{IP: ip, CountryCode: "Unknown", CountryName: "Unknown"}
	}
	e.stats.Record(loc)

	return Evaluate(e.policy, loc, time.Now())
}

// LocationSnapshot returns the engine's running per-country/per-city
// request tally, for operational visibility (e.g. a health endpoint).
// limit bounds how many entries are returned per ranking.
func (e *Engine) LocationSnapshot(limit int) (topCountries, topCities []CountEntry, total uint64) {
	return e.stats.TopCountries(limit), e.stats.TopCities(limit), e.stats.TotalRequests()
}

// Stats is a read-only snapshot of the engine's configuration, exposed
// for operational visibility (e.g. a health endpoint).
type Stats struct {
	Enabled        bool
	DatabaseLoaded bool
	TotalRules     int
	EnabledRules   int
	DefaultAction  Action
}

// PolicyStats returns a snapshot of the engine's current state.
func (e *Engine) PolicyStats() Stats {
	enabledRules := 0
	for _, r := range e.policy.Rules {
		if r.Enabled {
			enabledRules++
		}
	}
	return Stats{
		Enabled:        e.policy.Enabled,
		DatabaseLoaded: e.database() != nil,
		TotalRules:     len(e.policy.Rules),
		EnabledRules:   enabledRules,
		DefaultAction:  e.policy.DefaultAction,
	}
}
