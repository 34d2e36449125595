// Package cache contains domain types for the artifact-class-aware
// response cache.
package cache

import (
	"net/http"
	"strings"
	"time"
)

// Key is the normalized request path used to address a cache entry.
type Key = string

// Entry is a single cached upstream response.
type Entry struct {
	Body      []byte
	Status    int
	Header    http.Header
	CreatedAt time.Time
	TTL       time.Duration
}

// Valid reports whether the entry is still within its TTL as of now.
func (e Entry) Valid(now time.Time) bool {
	return now.Sub(e.CreatedAt) < e.TTL
}

// TTLConfig holds the artifact-class TTL defaults described in spec.md §3.
type TTLConfig struct {
	Release time.Duration
	Package time.Duration
	Deb     time.Duration
	Default time.Duration
}

// DefaultTTLConfig returns the spec-mandated defaults: release indices 6h,
// package/source indices 12h, .deb payloads 1y (effectively permanent),
// anything else 1h.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Release: 6 * time.Hour,
		Package: 12 * time.Hour,
		Deb:     365 * 24 * time.Hour,
		Default: time.Hour,
	}
}

// DetermineTTL is total and deterministic on path: it classifies the path
// by substring/suffix match and returns the matching TTL, exactly per
// spec.md §4.3.
func (c TTLConfig) DetermineTTL(path string) time.Duration {
	switch {
	case strings.Contains(path, "InRelease"), strings.Contains(path, "Release.gpg"), strings.Contains(path, "Release"):
		return c.Release
	case strings.Contains(path, "Packages"), strings.Contains(path, "Sources"):
		return c.Package
	case strings.HasSuffix(path, ".deb"):
		return c.Deb
	default:
		return c.Default
	}
}

// Store is a keyed cache of upstream responses with artifact-class TTL.
type Store interface {
	// Get returns the entry for key if it is still valid; ok is false if
	// absent or expired.
	Get(key Key) (entry Entry, ok bool)
	// Store admits a response under key with the TTL carried in
	// entry.TTL, which the caller takes from the TTL policy. Storing an
	// existing key overwrites it.
	Store(key Key, entry Entry)
	// Clear drops all entries.
	Clear()
	// CleanupExpired evicts all entries past their TTL and returns the
	// number removed.
	CleanupExpired() int
}
