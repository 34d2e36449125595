// Package memory provides an in-process, TTL-aware cache.Store
// implementation.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Apt-Gate/Aptgate/internal/domain/cache"
)

const (
	defaultShardCount      = 32
	defaultCleanupInterval = 5 * time.Minute
)

// shard is one stripe of the cache keyspace, independently locked so that
// concurrent readers/writers on different keys don't contend on a single
// mutex.
type shard struct {
	mu      sync.RWMutex
	entries map[cache.Key]cache.Entry
}

// Store is an in-memory, sharded, TTL-aware cache.Store. Each shard is a
// single-writer/multi-reader map guarded by its own RWMutex; the shard
// for a key is chosen by hashing the key with xxhash, so unrelated keys
// rarely contend.
type Store struct {
	shards          []*shard
	cleanupInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithShardCount overrides the default shard count. Any positive n is used
// as given (keys are spread by hash modulo n); n <= 0 is ignored.
func WithShardCount(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.shards = make([]*shard, n)
			for i := range s.shards {
				s.shards[i] = &shard{entries: make(map[cache.Key]cache.Entry)}
			}
		}
	}
}

// WithCleanupInterval overrides how often the background sweep removes
// expired entries.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Store) { s.cleanupInterval = d }
}

// WithLogger overrides the logger used for cleanup diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store with defaultShardCount shards and no background
// cleanup running; call StartCleanup to enable periodic sweeps.
func New(opts ...Option) *Store {
	s := &Store{
		cleanupInterval: defaultCleanupInterval,
		stopCh:          make(chan struct{}),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.shards == nil {
		s.shards = make([]*shard, defaultShardCount)
		for i := range s.shards {
			s.shards[i] = &shard{entries: make(map[cache.Key]cache.Entry)}
		}
	}
	return s
}

func (s *Store) shardFor(key cache.Key) *shard {
	h := xxhash.Sum64String(string(key))
	return s.shards[h%uint64(len(s.shards))]
}

// Get returns the entry for key if present and still valid; an expired
// entry is reported as a miss without being evicted (the cleanup sweep
// owns eviction).
func (s *Store) Get(key cache.Key) (cache.Entry, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, ok := sh.entries[key]
	if !ok || !entry.Valid(time.Now()) {
		return cache.Entry{}, false
	}
	return entry, true
}

// Store inserts or replaces the entry for key.
func (s *Store) Store(key cache.Key, entry cache.Entry) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.entries[key] = entry
}

// Clear removes every entry from every shard.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[cache.Key]cache.Entry)
		sh.mu.Unlock()
	}
}

// CleanupExpired scans every shard and evicts expired entries, returning
// the total number removed.
func (s *Store) CleanupExpired() int {
	now := time.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !e.Valid(now) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartCleanup launches a background goroutine that calls CleanupExpired
// on cleanupInterval until ctx is cancelled or Stop is called.
func (s *Store) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				n := s.CleanupExpired()
				if n > 0 {
					s.logger.Debug("cache cleanup swept expired entries", "removed", n)
				}
			}
		}
	}()
}

// Stop halts the background cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// Len reports the total number of entries across all shards, including
// ones that have expired but not yet been swept.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.entries)
		sh.mu.RUnlock()
	}
	return total
}

var _ cache.Store = (*Store)(nil)
