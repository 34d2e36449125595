package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/Apt-Gate/Aptgate/internal/domain/audit"
	"github.com/Apt-Gate/Aptgate/internal/domain/cache"
	"github.com/Apt-Gate/Aptgate/internal/domain/geo"
	"github.com/Apt-Gate/Aptgate/internal/domain/ratelimit"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// sizer is implemented by rate limiters that can report their live key
// count. Used for a liveness probe only; not part of the domain port.
type sizer interface {
	Size() int
}

// HealthChecker verifies component health.
type HealthChecker struct {
	cache       cache.Store
	geoEngine   *geo.Engine
	auditStore  audit.Store
	rateLimiter ratelimit.RateLimiter
	version     string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	cacheStore cache.Store,
	geoEngine *geo.Engine,
	auditStore audit.Store,
	rateLimiter ratelimit.RateLimiter,
	version string,
) *HealthChecker {
	return &HealthChecker{
		cache:       cacheStore,
		geoEngine:   geoEngine,
		auditStore:  auditStore,
		rateLimiter: rateLimiter,
		version:     version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.cache != nil {
		purged := h.cache.CleanupExpired()
		checks["cache"] = fmt.Sprintf("ok (%d expired entries purged)", purged)
	} else {
		checks["cache"] = "not configured"
	}

	if h.geoEngine != nil {
		stats := h.geoEngine.PolicyStats()
		switch {
		case stats.Enabled && !stats.DatabaseLoaded:
			checks["geo"] = "degraded: policy enabled but database not loaded"
			healthy = false
		case stats.Enabled:
			checks["geo"] = fmt.Sprintf("ok (%d/%d rules enabled)", stats.EnabledRules, stats.TotalRules)
		default:
			checks["geo"] = "disabled"
		}
		checks["geo_locations"] = formatLocationSnapshot(h.geoEngine)
	} else {
		checks["geo"] = "not configured"
	}

	if h.auditStore != nil {
		if err := h.auditStore.Flush(ctx); err != nil {
			checks["audit"] = fmt.Sprintf("degraded: %s", err)
			healthy = false
		} else {
			checks["audit"] = "ok"
		}
	} else {
		checks["audit"] = "not configured"
	}

	if h.rateLimiter != nil {
		if s, ok := h.rateLimiter.(sizer); ok {
			checks["rate_limiter"] = fmt.Sprintf("ok (%d active keys)", s.Size())
		} else {
			checks["rate_limiter"] = "ok"
		}
	} else {
		checks["rate_limiter"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// formatLocationSnapshot summarizes the engine's running per-country
// request tally as "DE=12,US=8,total=23", or "no requests observed yet"
// before the first geo lookup.
func formatLocationSnapshot(engine *geo.Engine) string {
	topCountries, _, total := engine.LocationSnapshot(3)
	if total == 0 {
		return "no requests observed yet"
	}
	parts := make([]string, 0, len(topCountries)+1)
	for _, c := range topCountries {
		parts = append(parts, fmt.Sprintf("%s=%d", c.Key, c.Count))
	}
	parts = append(parts, fmt.Sprintf("total=%d", total))
	return strings.Join(parts, ",")
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
