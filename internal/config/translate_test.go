package config

import (
	"testing"
	"time"

	"github.com/Apt-Gate/Aptgate/internal/domain/geo"
)

func TestArchivePolicy(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Archive: ArchiveConfig{
			AllowedSuites:        []string{"bookworm"},
			AllowedComponents:    []string{"main"},
			AllowedArchitectures: []string{"amd64"},
			MaxArtifactBytes:     1024,
		},
	}

	policy := cfg.ArchivePolicy()
	if _, ok := policy.AllowedSuites["bookworm"]; !ok {
		t.Error("expected bookworm in AllowedSuites")
	}
	if policy.MaxArtifactBytes != 1024 {
		t.Errorf("MaxArtifactBytes = %d, want 1024", policy.MaxArtifactBytes)
	}
}

func TestCacheTTLs_UsesDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	ttls := cfg.CacheTTLs()

	if ttls.Release != 6*time.Hour {
		t.Errorf("Release = %v, want 6h", ttls.Release)
	}
	if ttls.Package != 12*time.Hour {
		t.Errorf("Package = %v, want 12h", ttls.Package)
	}
	if ttls.Deb != 365*24*time.Hour {
		t.Errorf("Deb = %v, want 8760h", ttls.Deb)
	}
	if ttls.Default != time.Hour {
		t.Errorf("Default = %v, want 1h", ttls.Default)
	}
}

func TestCacheTTLs_ParsesConfiguredValues(t *testing.T) {
	t.Parallel()

	cfg := Config{Cache: CacheConfig{ReleaseTTL: "2h", PackageTTL: "4h", DebTTL: "48h", DefaultTTL: "30m"}}
	ttls := cfg.CacheTTLs()

	if ttls.Release != 2*time.Hour {
		t.Errorf("Release = %v, want 2h", ttls.Release)
	}
	if ttls.Default != 30*time.Minute {
		t.Errorf("Default = %v, want 30m", ttls.Default)
	}
}

func TestCacheTTLs_FallsBackOnUnparsableValue(t *testing.T) {
	t.Parallel()

	cfg := Config{Cache: CacheConfig{ReleaseTTL: "not-a-duration"}}
	ttls := cfg.CacheTTLs()

	if ttls.Release != 6*time.Hour {
		t.Errorf("Release = %v, want fallback of 6h", ttls.Release)
	}
}

func TestUpstreamTimeout_Default(t *testing.T) {
	t.Parallel()

	var cfg Config
	if got := cfg.UpstreamTimeout(); got != 30*time.Second {
		t.Errorf("UpstreamTimeout() = %v, want 30s", got)
	}
}

func TestRateLimitDurations_Defaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	if got := cfg.RateLimitCleanupInterval(); got != 5*time.Minute {
		t.Errorf("RateLimitCleanupInterval() = %v, want 5m", got)
	}
	if got := cfg.RateLimitMaxTTL(); got != time.Hour {
		t.Errorf("RateLimitMaxTTL() = %v, want 1h", got)
	}
}

func TestGeoPolicy_TranslatesRules(t *testing.T) {
	t.Parallel()

	risk := 50
	cfg := &Config{
		Geo: GeoConfig{
			Enabled:       true,
			DatabasePath:  "/var/lib/aptgate/geoip.mmdb",
			DefaultAction: "allow",
			Rules: []GeoRuleConfig{
				{
					Name:     "block-ru",
					Enabled:  true,
					Priority: 10,
					Condition: GeoConditionConfig{
						Kind:  "country_code",
						Codes: []string{"RU"},
					},
					Action: GeoActionConfig{Kind: "deny"},
				},
				{
					Name:     "throttle-high-risk",
					Enabled:  true,
					Priority: 5,
					Condition: GeoConditionConfig{
						Kind:    "risk_score",
						RiskMin: &risk,
					},
					Action: GeoActionConfig{Kind: "rate_limit", ReqPerMinute: 10},
				},
			},
		},
	}

	policy := cfg.GeoPolicy()

	if !policy.Enabled {
		t.Error("expected Enabled = true")
	}
	if policy.DatabasePath != "/var/lib/aptgate/geoip.mmdb" {
		t.Errorf("DatabasePath = %q", policy.DatabasePath)
	}
	if len(policy.Rules) != 2 {
		t.Fatalf("len(Rules) = %d, want 2", len(policy.Rules))
	}

	r0 := policy.Rules[0]
	if r0.Name != "block-ru" || r0.Priority != 10 {
		t.Errorf("Rules[0] = %+v", r0)
	}
	if r0.Condition.Kind != geo.ConditionCountryCode {
		t.Errorf("Rules[0].Condition.Kind = %q, want country_code", r0.Condition.Kind)
	}
	if len(r0.Condition.Codes) != 1 || r0.Condition.Codes[0] != "RU" {
		t.Errorf("Rules[0].Condition.Codes = %v", r0.Condition.Codes)
	}
	if r0.Action.Kind != geo.ActionDeny {
		t.Errorf("Rules[0].Action.Kind = %q, want deny", r0.Action.Kind)
	}

	r1 := policy.Rules[1]
	if r1.Condition.RiskMin == nil || *r1.Condition.RiskMin != 50 {
		t.Errorf("Rules[1].Condition.RiskMin = %v, want 50", r1.Condition.RiskMin)
	}
	if r1.Action.Kind != geo.ActionRateLimit || r1.Action.ReqPerMinute != 10 {
		t.Errorf("Rules[1].Action = %+v", r1.Action)
	}
}

func TestGeoPolicy_CountryGroupTranslation(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Geo: GeoConfig{
			Rules: []GeoRuleConfig{
				{
					Name: "group-rule",
					Condition: GeoConditionConfig{
						Kind:   "country_group",
						Groups: []string{"europe", "asia_pacific"},
					},
					Action: GeoActionConfig{Kind: "log_only"},
				},
			},
		},
	}

	policy := cfg.GeoPolicy()
	groups := policy.Rules[0].Condition.Groups
	if len(groups) != 2 || groups[0] != geo.GroupEurope || groups[1] != geo.GroupAsiaPacific {
		t.Errorf("Groups = %v", groups)
	}
}

func TestGeoPolicy_ASNRangeTranslation(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Geo: GeoConfig{
			Rules: []GeoRuleConfig{
				{
					Name: "asn-rule",
					Condition: GeoConditionConfig{
						Kind:      "asn",
						ASNRanges: []GeoASNRangeConfig{{Start: 100, End: 200}},
					},
					Action: GeoActionConfig{Kind: "deny"},
				},
			},
		},
	}

	policy := cfg.GeoPolicy()
	ranges := policy.Rules[0].Condition.ASNRanges
	if len(ranges) != 1 || ranges[0].Start != 100 || ranges[0].End != 200 {
		t.Errorf("ASNRanges = %v", ranges)
	}
}

func TestGeoPolicy_DefaultAction(t *testing.T) {
	t.Parallel()

	cfg := &Config{Geo: GeoConfig{DefaultAction: "deny"}}
	policy := cfg.GeoPolicy()

	if policy.DefaultAction.Kind != geo.ActionDeny {
		t.Errorf("DefaultAction.Kind = %q, want deny", policy.DefaultAction.Kind)
	}
}
