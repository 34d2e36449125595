package memory

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Apt-Gate/Aptgate/internal/domain/cache"
)

func TestStore_GetMiss(t *testing.T) {
	t.Parallel()

	s := New()
	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get() on empty store should miss")
	}
}

func TestStore_StoreThenGet(t *testing.T) {
	t.Parallel()

	s := New()
	entry := cache.Entry{
		Body:      []byte("hello"),
		Status:    http.StatusOK,
		CreatedAt: time.Now(),
		TTL:       time.Minute,
	}
	s.Store("key", entry)

	got, ok := s.Get("key")
	if !ok {
		t.Fatal("Get() after Store() should hit")
	}
	if string(got.Body) != "hello" {
		t.Errorf("Body = %q, want %q", got.Body, "hello")
	}
}

func TestStore_ExpiredEntryMisses(t *testing.T) {
	t.Parallel()

	s := New()
	entry := cache.Entry{
		Body:      []byte("stale"),
		Status:    http.StatusOK,
		CreatedAt: time.Now().Add(-time.Hour),
		TTL:       time.Minute,
	}
	s.Store("key", entry)

	if _, ok := s.Get("key"); ok {
		t.Fatal("Get() on an expired entry should miss")
	}
}

func TestStore_CleanupExpired(t *testing.T) {
	t.Parallel()

	s := New()
	s.Store("expired", cache.Entry{CreatedAt: time.Now().Add(-time.Hour), TTL: time.Minute})
	s.Store("fresh", cache.Entry{CreatedAt: time.Now(), TTL: time.Minute})

	removed := s.CleanupExpired()
	if removed != 1 {
		t.Errorf("CleanupExpired() removed = %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() after cleanup = %d, want 1", s.Len())
	}
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := New()
	s.Store("a", cache.Entry{CreatedAt: time.Now(), TTL: time.Minute})
	s.Store("b", cache.Entry{CreatedAt: time.Now(), TTL: time.Minute})
	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", s.Len())
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := cache.Key(string(rune('a' + i%26)))
			s.Store(key, cache.Entry{CreatedAt: time.Now(), TTL: time.Minute})
			s.Get(key)
		}(i)
	}
	wg.Wait()
}

func TestStoreNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(WithCleanupInterval(20 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	s.StartCleanup(ctx)
	s.Store("key", cache.Entry{CreatedAt: time.Now().Add(-time.Hour), TTL: time.Minute})

	time.Sleep(60 * time.Millisecond)

	cancel()
	s.Stop()
}
