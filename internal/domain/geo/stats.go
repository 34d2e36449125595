package geo

import (
	"sync"
	"time"
)

// LocationStats is an in-memory, mutex-protected running tally of
// requests observed per country/city/continent. It is an observability
// aid, not a persisted analytics store — it does not duplicate the audit
// trail, and resets on process restart.
type LocationStats struct {
	mu              sync.Mutex
	totalRequests   uint64
	countryCounts   map[string]uint64
	cityCounts      map[string]uint64
	continentCounts map[string]uint64
	lastUpdated     time.Time
}

// NewLocationStats creates an empty LocationStats tally.
func NewLocationStats() *LocationStats {
	return &LocationStats{
		countryCounts:   make(map[string]uint64),
		cityCounts:      make(map[string]uint64),
		continentCounts: make(map[string]uint64),
	}
}

// Record adds one observation of loc to the running tally.
func (s *LocationStats) Record(loc Location) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.countryCounts[loc.CountryCode]++
	if loc.City != "" {
		s.cityCounts[loc.City]++
	}
	s.continentCounts[loc.ContinentCode]++
	s.lastUpdated = time.Now()
}

// CountEntry is one bucket of a Top-N ranking.
type CountEntry struct {
	Key   string
	Count uint64
}

// TopCountries returns up to limit countries ranked by request count,
// descending.
func (s *LocationStats) TopCountries(limit int) []CountEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return topN(s.countryCounts, limit)
}

// TopCities returns up to limit cities ranked by request count, descending.
func (s *LocationStats) TopCities(limit int) []CountEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return topN(s.cityCounts, limit)
}

// TotalRequests returns the number of requests recorded so far.
func (s *LocationStats) TotalRequests() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRequests
}

func topN(counts map[string]uint64, limit int) []CountEntry {
	entries := make([]CountEntry, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, CountEntry{Key: k, Count: v})
	}
	// Simple insertion sort descending; these maps are small (country/city
	// cardinality), so O(n^2) is not a concern.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Count > entries[j-1].Count; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	if limit >= 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
