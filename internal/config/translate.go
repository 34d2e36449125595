package config

import (
	"time"

	"github.com/Apt-Gate/Aptgate/internal/domain/archive"
	"github.com/Apt-Gate/Aptgate/internal/domain/cache"
	"github.com/Apt-Gate/Aptgate/internal/domain/geo"
)

// ArchivePolicy builds the archive policy engine's configuration from the
// loaded Config. Call only after Validate() has succeeded.
func (c *Config) ArchivePolicy() archive.PolicyConfig {
	return archive.NewPolicyConfig(
		c.Archive.AllowedSuites,
		c.Archive.AllowedComponents,
		c.Archive.AllowedArchitectures,
		c.Archive.DeniedArchitectures,
		c.Archive.DeniedPackages,
		c.Archive.MaxArtifactBytes,
	)
}

// CacheTTLs builds the artifact-class TTL configuration from the loaded
// Config, falling back to spec defaults for any duration that fails to
// parse or is unset.
func (c *Config) CacheTTLs() cache.TTLConfig {
	defaults := cache.DefaultTTLConfig()
	return cache.TTLConfig{
		Release: parseDurationOr(c.Cache.ReleaseTTL, defaults.Release),
		Package: parseDurationOr(c.Cache.PackageTTL, defaults.Package),
		Deb:     parseDurationOr(c.Cache.DebTTL, defaults.Deb),
		Default: parseDurationOr(c.Cache.DefaultTTL, defaults.Default),
	}
}

// CacheCleanupInterval parses Cache.CleanupInterval, falling back to 5m.
func (c *Config) CacheCleanupInterval() time.Duration {
	return parseDurationOr(c.Cache.CleanupInterval, 5*time.Minute)
}

// UpstreamTimeout parses Upstream.Timeout, falling back to 30s.
func (c *Config) UpstreamTimeout() time.Duration {
	return parseDurationOr(c.Upstream.Timeout, 30*time.Second)
}

// RateLimitCleanupInterval parses RateLimit.CleanupInterval, falling back
// to 5m.
func (c *Config) RateLimitCleanupInterval() time.Duration {
	return parseDurationOr(c.RateLimit.CleanupInterval, 5*time.Minute)
}

// RateLimitMaxTTL parses RateLimit.MaxTTL, falling back to 1h.
func (c *Config) RateLimitMaxTTL() time.Duration {
	return parseDurationOr(c.RateLimit.MaxTTL, time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GeoPolicy builds the geo engine's policy configuration from the loaded
// Config. Call only after Validate() has succeeded, since it assumes
// every Kind value is a member of the closed vocabularies.
func (c *Config) GeoPolicy() geo.PolicyConfig {
	rules := make([]geo.Rule, 0, len(c.Geo.Rules))
	for _, r := range c.Geo.Rules {
		rules = append(rules, geo.Rule{
			Name:      r.Name,
			Enabled:   r.Enabled,
			Priority:  uint8(r.Priority),
			Condition: conditionFromConfig(r.Condition),
			Action:    actionFromConfig(r.Action),
		})
	}

	return geo.PolicyConfig{
		Enabled:             c.Geo.Enabled,
		DatabasePath:        c.Geo.DatabasePath,
		Rules:               rules,
		DefaultAction:       geo.Action{Kind: geo.ActionKind(c.Geo.DefaultAction)},
		UpdateIntervalHours: uint64(c.Geo.UpdateIntervalHours),
	}
}

func conditionFromConfig(cc GeoConditionConfig) geo.Condition {
	groups := make([]geo.CountryGroup, 0, len(cc.Groups))
	for _, g := range cc.Groups {
		groups = append(groups, geo.CountryGroup(g))
	}

	asnRanges := make([]geo.AsnRange, 0, len(cc.ASNRanges))
	for _, r := range cc.ASNRanges {
		asnRanges = append(asnRanges, geo.AsnRange{Start: r.Start, End: r.End})
	}

	return geo.Condition{
		Kind:           geo.ConditionKind(cc.Kind),
		Codes:          cc.Codes,
		Regions:        cc.Regions,
		Cities:         cc.Cities,
		Groups:         groups,
		RiskMin:        cc.RiskMin,
		RiskMax:        cc.RiskMax,
		Latitude:       cc.Latitude,
		Longitude:      cc.Longitude,
		RadiusKM:       cc.RadiusKM,
		Zones:          cc.Zones,
		Enabled:        cc.Enabled,
		ASNRanges:      asnRanges,
		CustomField:    cc.CustomField,
		CustomOperator: cc.CustomOperator,
		CustomValue:    cc.CustomValue,
	}
}

func actionFromConfig(ac GeoActionConfig) geo.Action {
	return geo.Action{
		Kind:         geo.ActionKind(ac.Kind),
		ReqPerMinute: ac.ReqPerMinute,
		RedirectURL:  ac.RedirectURL,
	}
}
