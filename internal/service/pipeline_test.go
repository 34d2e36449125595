package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Apt-Gate/Aptgate/internal/domain/archive"
	"github.com/Apt-Gate/Aptgate/internal/domain/audit"
	"github.com/Apt-Gate/Aptgate/internal/domain/cache"
	"github.com/Apt-Gate/Aptgate/internal/domain/fetch"
	"github.com/Apt-Gate/Aptgate/internal/domain/geo"
	"github.com/Apt-Gate/Aptgate/internal/domain/ratelimit"
	"github.com/Apt-Gate/Aptgate/internal/domain/verify"
)

// fakeCache is a minimal cache.Store for pipeline tests.
type fakeCache struct {
	entries map[string]cache.Entry
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]cache.Entry{}} }

func (c *fakeCache) Get(key cache.Key) (cache.Entry, bool) {
	e, ok := c.entries[key]
	if !ok || !e.Valid(time.Now()) {
		return cache.Entry{}, false
	}
	return e, true
}
func (c *fakeCache) Store(key cache.Key, entry cache.Entry) { c.entries[key] = entry }
func (c *fakeCache) Clear()                                 { c.entries = map[string]cache.Entry{} }
func (c *fakeCache) CleanupExpired() int                    { return 0 }

var _ cache.Store = (*fakeCache)(nil)

// fakeFetcher is a canned fetch.Fetcher.
type fakeFetcher struct {
	result fetch.Result
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (fetch.Result, error) {
	f.calls++
	return f.result, f.err
}

var _ fetch.Fetcher = (*fakeFetcher)(nil)

// fakeAuditStore records events in memory.
type fakeAuditStore struct {
	events []audit.Event
}

func (s *fakeAuditStore) Append(_ context.Context, events ...audit.Event) error {
	s.events = append(s.events, events...)
	return nil
}
func (s *fakeAuditStore) Flush(_ context.Context) error { return nil }
func (s *fakeAuditStore) Close() error                  { return nil }

var _ audit.Store = (*fakeAuditStore)(nil)

func newArchivePolicy() *archive.PolicyEngine {
	return archive.NewPolicyEngine(archive.NewPolicyConfig(
		[]string{"bookworm"},
		[]string{"main"},
		[]string{"binary-amd64"},
		nil,
		nil,
		1024,
	))
}

func basePipeline(t *testing.T, fetcher fetch.Fetcher, auditStore *fakeAuditStore) (*Pipeline, *fakeCache) {
	t.Helper()
	c := newFakeCache()
	p := New(Deps{
		Cache:         c,
		TTLConfig:     cache.DefaultTTLConfig(),
		ArchivePolicy: newArchivePolicy(),
		Fetcher:       fetcher,
		AuditStore:    auditStore,
	})
	return p, c
}

func TestHandles(t *testing.T) {
	t.Parallel()
	if !Handles("/debian/dists/bookworm/Release") {
		t.Error("expected /debian/ path to be handled")
	}
	if Handles("/other/path") {
		t.Error("expected non-/debian/ path to be rejected")
	}
}

func TestExtractClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		h    http.Header
		want string
	}{
		{"forwarded-for-first", http.Header{"X-Forwarded-For": {"1.1.1.1, 2.2.2.2"}}, "1.1.1.1"},
		{"real-ip-fallback", http.Header{"X-Real-Ip": {"3.3.3.3"}}, "3.3.3.3"},
		{"forwarded-fallback", http.Header{"X-Forwarded": {"4.4.4.4"}}, "4.4.4.4"},
		{"none", http.Header{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractClientIP(tt.h); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandle_CacheHit(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	fetcher := &fakeFetcher{}
	p, c := basePipeline(t, fetcher, auditStore)

	path := "/debian/dists/bookworm/Release"
	c.Store(path, cache.Entry{Body: []byte("cached"), Status: 200, CreatedAt: time.Now(), TTL: time.Hour})

	resp := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: path, Header: http.Header{}})
	if string(resp.Body) != "cached" {
		t.Errorf("Body = %q, want cached", resp.Body)
	}
	if fetcher.calls != 0 {
		t.Error("fetcher should not be called on a cache hit")
	}
	if !containsEventType(auditStore.events, audit.EventCacheHit) {
		t.Error("expected a CacheHit audit event")
	}
}

func TestHandle_PolicyViolation(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	fetcher := &fakeFetcher{}
	p, _ := basePipeline(t, fetcher, auditStore)

	resp := p.Handle(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/debian/dists/unknownsuite/Release",
		Header: http.Header{},
	})
	if resp.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", resp.Status)
	}
	if !containsEventType(auditStore.events, audit.EventPolicyViolation) {
		t.Error("expected a PolicyViolation audit event")
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["error"] != "Access denied by policy" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	p, _ := basePipeline(t, &fakeFetcher{}, auditStore)

	resp := p.Handle(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/debian/dists/bookworm/Release",
		Header: http.Header{},
	})
	if resp.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", resp.Status)
	}
}

func TestHandle_FetchSuccess_CachesAndResponds(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	fetcher := &fakeFetcher{result: fetch.Result{Status: 200, Body: []byte("packages data"), Header: http.Header{}}}
	p, c := basePipeline(t, fetcher, auditStore)

	path := "/debian/dists/bookworm/main/binary-amd64/Packages"
	resp := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: path, Header: http.Header{}})

	if resp.Status != 200 || string(resp.Body) != "packages data" {
		t.Errorf("resp = %+v", resp)
	}
	if _, ok := c.Get(path); !ok {
		t.Error("expected response to be cache-admitted")
	}
	if !containsEventType(auditStore.events, audit.EventFetchSuccess) {
		t.Error("expected a FetchSuccess audit event")
	}
}

func TestHandle_FetchError(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	p, _ := basePipeline(t, fetcher, auditStore)

	resp := p.Handle(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/debian/dists/bookworm/main/binary-amd64/Packages",
		Header: http.Header{},
	})
	if resp.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", resp.Status)
	}
	if !containsEventType(auditStore.events, audit.EventFetchError) {
		t.Error("expected a FetchError audit event")
	}
}

// fakeSigVerifier lets tests control signature validity.
type fakeSigVerifier struct {
	valid   bool
	errMsg  string
	wantErr error
}

func (f *fakeSigVerifier) VerifyInRelease(_ context.Context, _ []byte) (verify.SignatureResult, error) {
	if f.wantErr != nil {
		return verify.SignatureResult{}, f.wantErr
	}
	return verify.SignatureResult{Valid: f.valid, ErrorMessage: f.errMsg}, nil
}
func (f *fakeSigVerifier) VerifyDetached(_ context.Context, _, _ []byte) (verify.SignatureResult, error) {
	return verify.SignatureResult{Valid: f.valid}, nil
}

var _ verify.SignatureVerifier = (*fakeSigVerifier)(nil)

func TestHandle_SignatureVerificationFailed(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	fetcher := &fakeFetcher{result: fetch.Result{Status: 200, Body: []byte("bad signature"), Header: http.Header{}}}
	c := newFakeCache()
	p := New(Deps{
		Cache:             c,
		TTLConfig:         cache.DefaultTTLConfig(),
		ArchivePolicy:     newArchivePolicy(),
		Fetcher:           fetcher,
		AuditStore:        auditStore,
		SignatureVerifier: &fakeSigVerifier{valid: false, errMsg: "bad signature"},
	})

	path := "/debian/dists/bookworm/InRelease"
	resp := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: path, Header: http.Header{}})

	if resp.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.Status)
	}
	if _, ok := c.Get(path); ok {
		t.Error("a failed verification must not be cache-admitted")
	}
	if !containsEventType(auditStore.events, audit.EventVerificationFailed) {
		t.Error("expected a VerificationFailed audit event")
	}
}

func TestHandle_SignatureVerificationSuccess(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	fetcher := &fakeFetcher{result: fetch.Result{Status: 200, Body: []byte("good signature"), Header: http.Header{}}}
	p, c := basePipelineWithSig(t, fetcher, auditStore, &fakeSigVerifier{valid: true})

	path := "/debian/dists/bookworm/InRelease"
	resp := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: path, Header: http.Header{}})

	if resp.Status != 200 {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if _, ok := c.Get(path); !ok {
		t.Error("a successful verification should be cache-admitted")
	}
	if !containsEventType(auditStore.events, audit.EventVerificationSuccess) {
		t.Error("expected a VerificationSuccess audit event")
	}
}

func basePipelineWithSig(t *testing.T, fetcher fetch.Fetcher, auditStore *fakeAuditStore, sig verify.SignatureVerifier) (*Pipeline, *fakeCache) {
	t.Helper()
	c := newFakeCache()
	p := New(Deps{
		Cache:             c,
		TTLConfig:         cache.DefaultTTLConfig(),
		ArchivePolicy:     newArchivePolicy(),
		Fetcher:           fetcher,
		AuditStore:        auditStore,
		SignatureVerifier: sig,
	})
	return p, c
}

// fakeHashVerifier is a canned verify.HashVerifier returning a fixed
// checksum table and match outcome.
type fakeHashVerifier struct {
	checksums map[string]string
	matches   bool
}

func (f *fakeHashVerifier) ParseReleaseChecksums(string) map[string]string { return f.checksums }
func (f *fakeHashVerifier) Verify([]byte, string) bool                     { return f.matches }
func (f *fakeHashVerifier) VerifyInRelease(_ []byte, filename string, checksums map[string]string) bool {
	if _, ok := checksums[filename]; !ok {
		return false
	}
	return f.matches
}

var _ verify.HashVerifier = (*fakeHashVerifier)(nil)

func TestReleaseRelativeName(t *testing.T) {
	t.Parallel()

	p, err := archive.Parse("/debian/dists/bookworm/main/binary-amd64/Packages")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got, want := releaseRelativeName(p), "main/binary-amd64/Packages"; got != want {
		t.Errorf("releaseRelativeName() = %q, want %q", got, want)
	}
}

func TestHandle_HashVerificationSuccess(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	body := []byte("Package: foo\n")
	fetcher := &fakeFetcher{result: fetch.Result{Status: 200, Body: body, Header: http.Header{}}}
	c := newFakeCache()
	releasePath := "/debian/dists/bookworm/Release"
	c.Store(releasePath, cache.Entry{
		Body:      []byte("Suite: bookworm\nSHA256:\n deadbeef 13 main/binary-amd64/Packages\n"),
		Status:    200,
		CreatedAt: time.Now(),
		TTL:       time.Hour,
	})

	p := New(Deps{
		Cache:         c,
		TTLConfig:     cache.DefaultTTLConfig(),
		ArchivePolicy: newArchivePolicy(),
		Fetcher:       fetcher,
		AuditStore:    auditStore,
		HashVerifier:  &fakeHashVerifier{checksums: map[string]string{"main/binary-amd64/Packages": "deadbeef"}, matches: true},
	})

	path := "/debian/dists/bookworm/main/binary-amd64/Packages"
	resp := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: path, Header: http.Header{}})

	if resp.Status != 200 {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if _, ok := c.Get(path); !ok {
		t.Error("a matching checksum should be cache-admitted")
	}
	if containsEventType(auditStore.events, audit.EventVerificationFailed) {
		t.Error("did not expect a VerificationFailed audit event")
	}
}

func TestHandle_HashVerificationFailed(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	fetcher := &fakeFetcher{result: fetch.Result{Status: 200, Body: []byte("tampered"), Header: http.Header{}}}
	c := newFakeCache()
	releasePath := "/debian/dists/bookworm/Release"
	c.Store(releasePath, cache.Entry{
		Body:      []byte("Suite: bookworm\nSHA256:\n deadbeef 13 main/binary-amd64/Packages\n"),
		Status:    200,
		CreatedAt: time.Now(),
		TTL:       time.Hour,
	})

	p := New(Deps{
		Cache:         c,
		TTLConfig:     cache.DefaultTTLConfig(),
		ArchivePolicy: newArchivePolicy(),
		Fetcher:       fetcher,
		AuditStore:    auditStore,
		HashVerifier:  &fakeHashVerifier{checksums: map[string]string{"main/binary-amd64/Packages": "deadbeef"}, matches: false},
	})

	path := "/debian/dists/bookworm/main/binary-amd64/Packages"
	resp := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: path, Header: http.Header{}})

	if resp.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.Status)
	}
	if _, ok := c.Get(path); ok {
		t.Error("a failed checksum must not be cache-admitted")
	}
	if !containsEventType(auditStore.events, audit.EventVerificationFailed) {
		t.Error("expected a VerificationFailed audit event")
	}
}

func geoRuleEngine(rules []geo.Rule, defaultAction geo.Action, db geo.Database) *geo.Engine {
	return geo.NewEngine(db, geo.PolicyConfig{Enabled: true, Rules: rules, DefaultAction: defaultAction})
}

// fakeGeoDB resolves every lookup to the same location.
type fakeGeoDB struct {
	loc geo.Location
	ok  bool
}

func (d *fakeGeoDB) Lookup(_ string) (geo.Location, bool, error) { return d.loc, d.ok, nil }
func (d *fakeGeoDB) Close() error                                { return nil }

var _ geo.Database = (*fakeGeoDB)(nil)

func TestHandle_GeoDeny(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	fetcher := &fakeFetcher{}
	c := newFakeCache()
	engine := geoRuleEngine(
		[]geo.Rule{{
			Name:      "block-cn",
			Enabled:   true,
			Priority:  10,
			Condition: geo.Condition{Kind: geo.ConditionCountryCode, Codes: []string{"CN"}},
			Action:    geo.Action{Kind: geo.ActionDeny},
		}},
		geo.Action{Kind: geo.ActionAllow},
		&fakeGeoDB{loc: geo.Location{CountryCode: "CN"}, ok: true},
	)

	p := New(Deps{
		Cache:         c,
		TTLConfig:     cache.DefaultTTLConfig(),
		ArchivePolicy: newArchivePolicy(),
		Fetcher:       fetcher,
		AuditStore:    auditStore,
		GeoEngine:     engine,
	})

	resp := p.Handle(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/debian/dists/bookworm/Release",
		Header: http.Header{"X-Forwarded-For": {"1.2.3.4"}},
	})
	if resp.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", resp.Status)
	}
	if fetcher.calls != 0 {
		t.Error("fetcher should not run after a geo deny")
	}
	if !containsEventType(auditStore.events, audit.EventGeoIPDenied) {
		t.Error("expected a GeoIPDenied audit event")
	}
}

func TestHandle_GeoRedirect(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	c := newFakeCache()
	engine := geoRuleEngine(
		[]geo.Rule{{
			Name:      "redirect-eu",
			Enabled:   true,
			Priority:  10,
			Condition: geo.Condition{Kind: geo.ConditionCountryCode, Codes: []string{"DE"}},
			Action:    geo.Action{Kind: geo.ActionRedirect, RedirectURL: "https://eu-mirror.example/debian"},
		}},
		geo.Action{Kind: geo.ActionAllow},
		&fakeGeoDB{loc: geo.Location{CountryCode: "DE"}, ok: true},
	)

	p := New(Deps{
		Cache:         c,
		TTLConfig:     cache.DefaultTTLConfig(),
		ArchivePolicy: newArchivePolicy(),
		Fetcher:       &fakeFetcher{},
		AuditStore:    auditStore,
		GeoEngine:     engine,
	})

	resp := p.Handle(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/debian/dists/bookworm/Release",
		Header: http.Header{"X-Forwarded-For": {"1.2.3.4"}},
	})
	if resp.Status != http.StatusFound {
		t.Errorf("Status = %d, want 302", resp.Status)
	}
	if got := resp.Header.Get("Location"); got != "https://eu-mirror.example/debian" {
		t.Errorf("Location = %q", got)
	}
	if !containsEventType(auditStore.events, audit.EventGeoIPRedirect) {
		t.Error("expected a GeoIPRedirect audit event")
	}
}

func TestHandle_GeoRateLimit(t *testing.T) {
	t.Parallel()

	auditStore := &fakeAuditStore{}
	c := newFakeCache()
	engine := geoRuleEngine(
		[]geo.Rule{{
			Name:      "limit-ru",
			Enabled:   true,
			Priority:  10,
			Condition: geo.Condition{Kind: geo.ConditionCountryCode, Codes: []string{"RU"}},
			Action:    geo.Action{Kind: geo.ActionRateLimit, ReqPerMinute: 1},
		}},
		geo.Action{Kind: geo.ActionAllow},
		&fakeGeoDB{loc: geo.Location{CountryCode: "RU"}, ok: true},
	)

	limiter := &alwaysDenyLimiter{}
	p := New(Deps{
		Cache:         c,
		TTLConfig:     cache.DefaultTTLConfig(),
		ArchivePolicy: newArchivePolicy(),
		Fetcher:       &fakeFetcher{},
		AuditStore:    auditStore,
		GeoEngine:     engine,
		RateLimiter:   limiter,
	})

	resp := p.Handle(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/debian/dists/bookworm/Release",
		Header: http.Header{"X-Forwarded-For": {"1.2.3.4"}},
	})
	if resp.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", resp.Status)
	}
	if !containsEventType(auditStore.events, audit.EventGeoIPRateLimit) {
		t.Error("expected a GeoIPRateLimit audit event")
	}
}

type alwaysDenyLimiter struct{}

func (alwaysDenyLimiter) Allow(_ context.Context, _ string, _ ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	return ratelimit.RateLimitResult{Allowed: false, RetryAfter: time.Second}, nil
}

var _ ratelimit.RateLimiter = alwaysDenyLimiter{}

func containsEventType(events []audit.Event, t audit.EventType) bool {
	for _, e := range events {
		if e.EventType == t {
			return true
		}
	}
	return false
}
