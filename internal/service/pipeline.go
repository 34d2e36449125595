// Package service orchestrates the archive mirror request pipeline:
// cache probe, archive policy, geo policy, upstream fetch, signature
// verification, and cache admission, in the strict order spec.md §4.1
// requires.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Apt-Gate/Aptgate/internal/domain/archive"
	"github.com/Apt-Gate/Aptgate/internal/domain/audit"
	"github.com/Apt-Gate/Aptgate/internal/domain/cache"
	"github.com/Apt-Gate/Aptgate/internal/domain/fetch"
	"github.com/Apt-Gate/Aptgate/internal/domain/geo"
	"github.com/Apt-Gate/Aptgate/internal/domain/ratelimit"
	"github.com/Apt-Gate/Aptgate/internal/domain/verify"
)

// Request is the inbound-adapter-agnostic description of an HTTP request
// the pipeline operates on.
type Request struct {
	Method string
	Path   string
	Header http.Header
}

// Response is the pipeline's terminal result. Header may be nil.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func jsonResponse(status int, v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		// v is always one of the error shapes below; a marshal failure
		// here would be a programming error, not a runtime condition.
		body = []byte(`{"error":"internal error"}`)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return Response{Status: status, Header: h, Body: body}
}

func errorResponse(status int, message string) Response {
	return jsonResponse(status, map[string]string{"error": message})
}

func redirectResponse(url string) Response {
	resp := jsonResponse(http.StatusFound, map[string]string{"redirect": url})
	resp.Header.Set("Location", url)
	return resp
}

// Pipeline wires the archive mirror's domain ports into the strictly
// ordered request pipeline described in spec.md §4.1.
type Pipeline struct {
	cache        cache.Store
	ttls         cache.TTLConfig
	archivePol   *archive.PolicyEngine
	geoEngine    *geo.Engine
	fetcher      fetch.Fetcher
	sigVerifier  verify.SignatureVerifier
	hashVerifier verify.HashVerifier
	auditStore   audit.Store
	rateLimiter  ratelimit.RateLimiter
	logger       *slog.Logger
}

// Deps collects the Pipeline's constructor dependencies. RateLimiter may
// be nil, in which case a geo rule with a RateLimit action always denies
// (fail closed, per spec.md §7's "policy denials... never retried").
type Deps struct {
	Cache             cache.Store
	TTLConfig         cache.TTLConfig
	ArchivePolicy     *archive.PolicyEngine
	GeoEngine         *geo.Engine
	Fetcher           fetch.Fetcher
	SignatureVerifier verify.SignatureVerifier
	HashVerifier      verify.HashVerifier
	AuditStore        audit.Store
	RateLimiter       ratelimit.RateLimiter
	Logger            *slog.Logger
}

// New creates a Pipeline over the given dependencies.
func New(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cache:        d.Cache,
		ttls:         d.TTLConfig,
		archivePol:   d.ArchivePolicy,
		geoEngine:    d.GeoEngine,
		fetcher:      d.Fetcher,
		sigVerifier:  d.SignatureVerifier,
		hashVerifier: d.HashVerifier,
		auditStore:   d.AuditStore,
		rateLimiter:  d.RateLimiter,
		logger:       logger,
	}
}

const debianPathPrefix = "/debian/"

// Handles reports whether path is within this pipeline's responsibility
// (spec.md §4.1 step 1, path gating). Callers route non-matching paths
// elsewhere.
func Handles(path string) bool {
	return strings.HasPrefix(path, debianPathPrefix)
}

// extractClientIP consults, in order, X-Forwarded-For (first
// comma-separated value), X-Real-IP, then X-Forwarded. Returns "" if
// none are present.
func extractClientIP(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if real := h.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	if fwd := h.Get("X-Forwarded"); fwd != "" {
		return strings.TrimSpace(fwd)
	}
	return ""
}

func ptrIfSet(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (p *Pipeline) record(ctx context.Context, ev audit.Event) {
	if p.auditStore == nil {
		return
	}
	if err := p.auditStore.Append(ctx, ev); err != nil {
		p.logger.Error("audit append failed", "event_type", ev.EventType, "path", ev.Path, "error", err)
	}
}

// Handle runs the full request pipeline. Callers must have already
// confirmed Handles(req.Path).
func (p *Pipeline) Handle(ctx context.Context, req Request) Response {
	start := time.Now()
	clientIP := extractClientIP(req.Header)
	userAgent := req.Header.Get("User-Agent")

	p.record(ctx, audit.Event{
		Timestamp: start,
		EventType: audit.EventRequest,
		ClientIP:  ptrIfSet(clientIP),
		Method:    ptrIfSet(req.Method),
		Path:      req.Path,
		UserAgent: ptrIfSet(userAgent),
		Status:    audit.StatusInfo,
	})

	// Step 4: cache probe. A hit takes precedence over any policy
	// re-evaluation; cache admission only ever happens after a full
	// policy pass (spec.md §4.1).
	if entry, ok := p.cache.Get(req.Path); ok {
		p.record(ctx, audit.Event{
			Timestamp:  time.Now(),
			EventType:  audit.EventCacheHit,
			ClientIP:   ptrIfSet(clientIP),
			Method:     ptrIfSet(req.Method),
			Path:       req.Path,
			Status:     audit.StatusSuccess,
			DurationMs: durationMs(start),
		})
		return Response{Status: entry.Status, Header: entry.Header, Body: entry.Body}
	}

	// Step 5: archive policy.
	decision := p.archivePol.Check(req.Path, req.Method)
	if !decision.Allowed {
		p.record(ctx, audit.Event{
			Timestamp:  time.Now(),
			EventType:  audit.EventPolicyViolation,
			ClientIP:   ptrIfSet(clientIP),
			Method:     ptrIfSet(req.Method),
			Path:       req.Path,
			Status:     audit.StatusError,
			Message:    ptrIfSet(decision.Reason),
			DurationMs: durationMs(start),
		})
		return errorResponse(http.StatusForbidden, "Access denied by policy")
	}

	// Step 6: geo policy, only if a client IP was extracted and the
	// engine is enabled.
	if clientIP != "" && p.geoEngine != nil && p.geoEngine.Enabled() {
		if resp, shortCircuit := p.checkGeo(ctx, clientIP, req, start); shortCircuit {
			return resp
		}
	}

	// Step 7: upstream fetch.
	result, err := p.fetcher.Fetch(ctx, req.Path)
	if err != nil {
		p.record(ctx, audit.Event{
			Timestamp:  time.Now(),
			EventType:  audit.EventFetchError,
			ClientIP:   ptrIfSet(clientIP),
			Method:     ptrIfSet(req.Method),
			Path:       req.Path,
			Status:     audit.StatusError,
			Message:    ptrIfSet(err.Error()),
			DurationMs: durationMs(start),
		})
		return errorResponse(http.StatusInternalServerError, "Upstream fetch failed")
	}

	p.record(ctx, audit.Event{
		Timestamp:  time.Now(),
		EventType:  audit.EventFetchSuccess,
		ClientIP:   ptrIfSet(clientIP),
		Method:     ptrIfSet(req.Method),
		Path:       req.Path,
		Status:     audit.StatusSuccess,
		DurationMs: durationMs(start),
	})

	// Step 8: signature verification, only for InRelease/Release files.
	filename := lastSegment(req.Path)
	if filename == "InRelease" || filename == "Release" {
		if resp, shortCircuit := p.verifySignature(ctx, req, result, clientIP, start); shortCircuit {
			return resp
		}
	} else if resp, shortCircuit := p.verifyHash(ctx, req, result, clientIP, start); shortCircuit {
		return resp
	}

	// Step 9: cache admission.
	ttl := p.ttls.DetermineTTL(req.Path)
	p.cache.Store(req.Path, cache.Entry{
		Body:      result.Body,
		Status:    result.Status,
		Header:    result.Header,
		CreatedAt: time.Now(),
		TTL:       ttl,
	})

	// Step 10: respond.
	return Response{Status: result.Status, Header: result.Header, Body: result.Body}
}

func lastSegment(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func durationMs(start time.Time) *int64 {
	ms := time.Since(start).Milliseconds()
	return &ms
}

// checkGeo evaluates the geo policy for clientIP and, for any action
// other than Allow/LogOnly, returns the corresponding terminal response.
func (p *Pipeline) checkGeo(ctx context.Context, clientIP string, req Request, start time.Time) (Response, bool) {
	decision := p.geoEngine.CheckRequest(clientIP)

	base := audit.Event{
		Timestamp: time.Now(),
		ClientIP:  ptrIfSet(clientIP),
		Method:    ptrIfSet(req.Method),
		Path:      req.Path,
		Message:   ptrIfSet(decision.Reason),
	}

	switch decision.Action.Kind {
	case geo.ActionAllow:
		base.EventType = audit.EventGeoIPAllowed
		base.Status = audit.StatusInfo
		p.record(ctx, base)
		return Response{}, false

	case geo.ActionLogOnly:
		base.EventType = audit.EventGeoIPLogOnly
		base.Status = audit.StatusInfo
		p.record(ctx, base)
		return Response{}, false

	case geo.ActionDeny:
		base.EventType = audit.EventGeoIPDenied
		base.Status = audit.StatusError
		base.DurationMs = durationMs(start)
		p.record(ctx, base)
		return errorResponse(http.StatusForbidden, "Access denied by geo policy"), true

	case geo.ActionRedirect:
		base.EventType = audit.EventGeoIPRedirect
		base.Status = audit.StatusInfo
		base.DurationMs = durationMs(start)
		p.record(ctx, base)
		return redirectResponse(decision.Action.RedirectURL), true

	case geo.ActionRateLimit:
		allowed := p.allowRate(ctx, clientIP, decision.Action.ReqPerMinute)
		if allowed {
			base.EventType = audit.EventGeoIPAllowed
			base.Status = audit.StatusInfo
			p.record(ctx, base)
			return Response{}, false
		}
		base.EventType = audit.EventGeoIPRateLimit
		base.Status = audit.StatusError
		base.DurationMs = durationMs(start)
		p.record(ctx, base)
		return errorResponse(http.StatusTooManyRequests, "Rate limit exceeded"), true

	default:
		base.EventType = audit.EventGeoIPError
		base.Status = audit.StatusError
		base.DurationMs = durationMs(start)
		p.record(ctx, base)
		return errorResponse(http.StatusForbidden, "Access denied by geo policy"), true
	}
}

// allowRate consults the rate limiter for clientIP at reqPerMinute. A nil
// limiter or non-positive rate fails closed: the request is denied
// rather than silently let through, matching spec.md §7's rule that
// policy denials are never retried or waived.
func (p *Pipeline) allowRate(ctx context.Context, clientIP string, reqPerMinute int) bool {
	if p.rateLimiter == nil || reqPerMinute <= 0 {
		return false
	}
	key := ratelimit.FormatKey(ratelimit.KeyTypeIP, clientIP)
	config := ratelimit.RateLimitConfig{Rate: reqPerMinute, Burst: reqPerMinute, Period: time.Minute}
	result, err := p.rateLimiter.Allow(ctx, key, config)
	if err != nil {
		p.logger.Error("rate limiter error", "client_ip", clientIP, "error", err)
		return false
	}
	return result.Allowed
}

// verifySignature runs signature verification for a fetched InRelease or
// Release file. On failure it returns the 400 response spec.md §4.1 step
// 8 requires and the fetched body is not cached.
func (p *Pipeline) verifySignature(ctx context.Context, req Request, result fetch.Result, clientIP string, start time.Time) (Response, bool) {
	if p.sigVerifier == nil {
		return Response{}, false
	}

	filename := lastSegment(req.Path)
	var sigResult verify.SignatureResult
	var err error
	if filename == "InRelease" {
		sigResult, err = p.sigVerifier.VerifyInRelease(ctx, result.Body)
	} else {
		// A detached Release file carries its signature in Release.gpg,
		// which this pipeline does not fetch. A Release file therefore
		// passes with no signature or hash check and is recorded as a
		// verification success.
		sigResult = verify.SignatureResult{Valid: true}
	}

	if err != nil || !sigResult.Valid {
		message := sigResult.ErrorMessage
		if message == "" && err != nil {
			message = err.Error()
		}
		p.record(ctx, audit.Event{
			Timestamp:  time.Now(),
			EventType:  audit.EventVerificationFailed,
			ClientIP:   ptrIfSet(clientIP),
			Method:     ptrIfSet(req.Method),
			Path:       req.Path,
			Status:     audit.StatusFailed,
			Message:    ptrIfSet(message),
			DurationMs: durationMs(start),
		})
		return errorResponse(http.StatusBadRequest, "Signature verification failed"), true
	}

	p.record(ctx, audit.Event{
		Timestamp:  time.Now(),
		EventType:  audit.EventVerificationSuccess,
		ClientIP:   ptrIfSet(clientIP),
		Method:     ptrIfSet(req.Method),
		Path:       req.Path,
		Status:     audit.StatusSuccess,
		DurationMs: durationMs(start),
	})
	return Response{}, false
}

// verifyHash checks a fetched package/source index against the checksum
// table of its suite's already-cached Release index, per spec.md's
// "hash verification of derived files". A path whose suite has no
// cached Release/InRelease yet is passed through unverified: the hash
// verifier has nothing to check against, which is a gap in coverage
// rather than a verification failure.
func (p *Pipeline) verifyHash(ctx context.Context, req Request, result fetch.Result, clientIP string, start time.Time) (Response, bool) {
	if p.hashVerifier == nil {
		return Response{}, false
	}

	parsed, err := archive.Parse(req.Path)
	if err != nil || parsed.Class != archive.ClassRelease || parsed.Suite == "" || !parsed.HasFilename() {
		return Response{}, false
	}

	releasePath := debianPathPrefix + "dists/" + parsed.Suite + "/InRelease"
	entry, ok := p.cache.Get(releasePath)
	if !ok {
		releasePath = debianPathPrefix + "dists/" + parsed.Suite + "/Release"
		entry, ok = p.cache.Get(releasePath)
	}
	if !ok {
		return Response{}, false
	}

	checksums := p.hashVerifier.ParseReleaseChecksums(string(entry.Body))
	relName := releaseRelativeName(parsed)
	if _, known := checksums[relName]; !known {
		return Response{}, false
	}

	if p.hashVerifier.VerifyInRelease(result.Body, relName, checksums) {
		return Response{}, false
	}

	p.record(ctx, audit.Event{
		Timestamp:  time.Now(),
		EventType:  audit.EventVerificationFailed,
		ClientIP:   ptrIfSet(clientIP),
		Method:     ptrIfSet(req.Method),
		Path:       req.Path,
		Status:     audit.StatusFailed,
		Message:    ptrIfSet("hash mismatch against Release checksums"),
		DurationMs: durationMs(start),
	})
	return errorResponse(http.StatusBadRequest, "Hash verification failed"), true
}

// releaseRelativeName reconstructs the filename a Release index's
// checksum table uses to key an indices file: <component>/<arch-dir>/<filename>.
func releaseRelativeName(p archive.Path) string {
	var parts []string
	if p.HasComponent() {
		parts = append(parts, p.Component)
	}
	if p.HasArchitecture() {
		parts = append(parts, p.Architecture)
	}
	parts = append(parts, p.Filename)
	return strings.Join(parts, "/")
}
