package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Apt-Gate/Aptgate/internal/domain/archive"
	"github.com/Apt-Gate/Aptgate/internal/domain/cache"
	"github.com/Apt-Gate/Aptgate/internal/domain/fetch"
	"github.com/Apt-Gate/Aptgate/internal/service"
)

type stubFetcher struct {
	result fetch.Result
	err    error
}

func (s stubFetcher) Fetch(ctx context.Context, path string) (fetch.Result, error) {
	return s.result, s.err
}

func newTestPipeline(fetcher fetch.Fetcher) *service.Pipeline {
	policy := archive.NewPolicyConfig(
		[]string{"bookworm"}, []string{"main"}, []string{"amd64"}, nil, nil, 0)
	return service.New(service.Deps{
		Cache:         newMemoryCache(),
		TTLConfig:     cache.DefaultTTLConfig(),
		ArchivePolicy: archive.NewPolicyEngine(policy),
		Fetcher:       fetcher,
	})
}

func newMemoryCache() cache.Store {
	return &mapCache{entries: map[cache.Key]cache.Entry{}}
}

type mapCache struct{ entries map[cache.Key]cache.Entry }

func (m *mapCache) Get(key cache.Key) (cache.Entry, bool) {
	e, ok := m.entries[key]
	return e, ok
}
func (m *mapCache) Store(key cache.Key, entry cache.Entry) { m.entries[key] = entry }
func (m *mapCache) Clear()                                 { m.entries = map[cache.Key]cache.Entry{} }
func (m *mapCache) CleanupExpired() int                    { return 0 }

func TestArchiveHandler_NotFound(t *testing.T) {
	handler := archiveHandler(newTestPipeline(stubFetcher{}))

	req := httptest.NewRequest(http.MethodGet, "/other/path", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestArchiveHandler_FetchAndRespond(t *testing.T) {
	fetcher := stubFetcher{result: fetch.Result{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/octet-stream"}},
		Body:   []byte("package data"),
	}}
	handler := archiveHandler(newTestPipeline(fetcher))

	req := httptest.NewRequest(http.MethodGet, "/debian/pool/main/a/a/a.deb", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "package data" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "package data")
	}
	if rec.Header().Get("Content-Type") != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", rec.Header().Get("Content-Type"))
	}
}

func TestArchiveHandler_HeadOmitsBody(t *testing.T) {
	fetcher := stubFetcher{result: fetch.Result{Status: http.StatusOK, Body: []byte("package data")}}
	handler := archiveHandler(newTestPipeline(fetcher))

	req := httptest.NewRequest(http.MethodHead, "/debian/pool/main/a/a/a.deb", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Body.Len() != 0 {
		t.Errorf("HEAD response body = %q, want empty", rec.Body.String())
	}
}

func TestArchiveHandler_FetchError(t *testing.T) {
	fetcher := stubFetcher{err: errFetch}
	handler := archiveHandler(newTestPipeline(fetcher))

	req := httptest.NewRequest(http.MethodGet, "/debian/pool/main/a/a/a.deb", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

var errFetch = &fetchError{"upstream unreachable"}

type fetchError struct{ msg string }

func (e *fetchError) Error() string { return e.msg }
