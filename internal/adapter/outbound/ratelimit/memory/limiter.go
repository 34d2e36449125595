// Package memory provides an in-memory GCRA rate limiter for the geo
// policy engine's RateLimit action.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Apt-Gate/Aptgate/internal/domain/ratelimit"
)

// Limiter implements ratelimit.RateLimiter using GCRA (Generic Cell Rate
// Algorithm) in memory. Thread-safe for concurrent access; includes
// background cleanup to prevent unbounded growth from one-shot client IPs.
type Limiter struct {
	cells           map[string]time.Time // theoretical arrival time per key
	mu              sync.Mutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxTTL          time.Duration
	logger          *slog.Logger
}

// New creates an in-memory rate limiter with the given cleanup cadence
// and key retention. logger may be nil.
func New(cleanupInterval, maxTTL time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		cells:           make(map[string]time.Time),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxTTL:          maxTTL,
		logger:          logger,
	}
}

// Allow implements ratelimit.RateLimiter.
func (l *Limiter) Allow(_ context.Context, key string, config ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if config.Rate <= 0 {
		config.Rate = 1
	}
	emission := config.Period / time.Duration(config.Rate)

	if config.Burst <= 0 {
		config.Burst = config.Rate
	}
	burstOffset := time.Duration(config.Burst) * emission

	tat, exists := l.cells[key]
	if !exists || tat.Before(now) {
		tat = now
	}

	allowAt := tat.Add(emission).Add(-burstOffset)
	if now.Before(allowAt) {
		return ratelimit.RateLimitResult{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: allowAt.Sub(now),
			ResetAfter: tat.Sub(now),
		}, nil
	}

	newTAT := tat.Add(emission)
	if newTAT.Before(now) {
		newTAT = now.Add(emission)
	}
	l.cells[key] = newTAT

	remaining := int((burstOffset - newTAT.Sub(now)) / emission)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > config.Burst {
		remaining = config.Burst
	}

	return ratelimit.RateLimitResult{
		Allowed:    true,
		Remaining:  remaining,
		RetryAfter: 0,
		ResetAfter: newTAT.Sub(now),
	}, nil
}

// StartCleanup starts the background cleanup goroutine. It stops when ctx
// is cancelled or Stop is called.
func (l *Limiter) StartCleanup(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.cleanup()
			}
		}
	}()
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.maxTTL)
	cleaned := 0
	for key, tat := range l.cells {
		if tat.Before(cutoff) {
			delete(l.cells, key)
			cleaned++
		}
	}
	if cleaned > 0 {
		l.logger.Debug("rate limiter cleanup completed", "cleaned_keys", cleaned, "remaining_keys", len(l.cells))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (l *Limiter) Stop() {
	l.once.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}

// Size returns the number of tracked keys.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cells)
}

var _ ratelimit.RateLimiter = (*Limiter)(nil)
