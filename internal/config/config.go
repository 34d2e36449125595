// Package config provides configuration types for Aptgate, the
// Debian archive mirror proxy.
//
// A single Config struct is loaded via Viper (YAML file + environment
// variable overrides) and validated with struct tags plus a handful of
// cross-field rules.
package config

import (
	"os"
)

// Config is the top-level configuration for Aptgate.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Upstream configures the Debian mirror this proxy fetches from.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// Archive configures the archive-policy allow/deny sets and limits.
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`

	// Geo configures the geo-policy engine and its rule set.
	Geo GeoConfig `yaml:"geo" mapstructure:"geo"`

	// Verify configures signature/hash verification.
	Verify VerifyConfig `yaml:"verify" mapstructure:"verify"`

	// Cache configures artifact-class TTLs and in-memory cache sizing.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Audit configures where audit events are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// RateLimit configures geo-policy rate-limiting defaults.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// DevMode enables development features (verbose logging, permissive
	// defaults).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// UpstreamConfig configures the mirror this proxy fetches from.
type UpstreamConfig struct {
	// BaseURL is the upstream Debian archive base (e.g.
	// "https://deb.debian.org"). Defaults to "https://deb.debian.org".
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// Timeout is the total timeout for upstream fetches (e.g. "30s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
}

// ArchiveConfig configures the archive policy engine's allow/deny sets
// and size limit, per spec.md §4.4.
type ArchiveConfig struct {
	AllowedSuites        []string `yaml:"allowed_suites" mapstructure:"allowed_suites"`
	AllowedComponents    []string `yaml:"allowed_components" mapstructure:"allowed_components"`
	AllowedArchitectures []string `yaml:"allowed_architectures" mapstructure:"allowed_architectures"`
	DeniedArchitectures  []string `yaml:"denied_architectures" mapstructure:"denied_architectures"`
	DeniedPackages       []string `yaml:"denied_packages" mapstructure:"denied_packages"`

	// MaxArtifactBytes is the maximum artifact size in bytes. Defaults
	// to 0 (unlimited) if unset.
	MaxArtifactBytes int64 `yaml:"max_artifact_bytes" mapstructure:"max_artifact_bytes" validate:"omitempty,min=0"`
}

// GeoConfig configures the geo-policy engine, per spec.md §4.5.
type GeoConfig struct {
	// Enabled turns geo policy evaluation on or off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// DatabasePath is the path to a MaxMind GeoIP2/GeoLite2 .mmdb file.
	DatabasePath string `yaml:"database_path" mapstructure:"database_path" validate:"required_if=Enabled true"`

	// Rules are the geo-policy rules, evaluated in priority order.
	Rules []GeoRuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`

	// DefaultAction is applied when no rule matches, or the database is
	// unavailable. One of: allow, deny, log_only, redirect (rate_limit is
	// rejected as a default action by Validate).
	DefaultAction string `yaml:"default_action" mapstructure:"default_action" validate:"omitempty,geo_action"`

	// UpdateIntervalHours is how often to check whether the loaded
	// database is stale (loaded more than 30 days ago) and, if so, reopen
	// the file and swap it in via ReloadDatabase. 0 disables periodic reload.
	UpdateIntervalHours int `yaml:"update_interval_hours" mapstructure:"update_interval_hours" validate:"omitempty,min=0"`
}

// GeoRuleConfig configures a single geo-policy rule.
type GeoRuleConfig struct {
	Name     string `yaml:"name" mapstructure:"name" validate:"required"`
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Priority int    `yaml:"priority" mapstructure:"priority" validate:"gte=0,lte=255"`

	Condition GeoConditionConfig `yaml:"condition" mapstructure:"condition"`
	Action    GeoActionConfig    `yaml:"action" mapstructure:"action"`
}

// GeoConditionConfig configures one of the closed geo condition variants
// (spec.md §4.5). Only the fields relevant to Kind are consulted.
type GeoConditionConfig struct {
	Kind string `yaml:"kind" mapstructure:"kind" validate:"required,geo_condition_kind"`

	Codes   []string `yaml:"codes" mapstructure:"codes"`
	Regions []string `yaml:"regions" mapstructure:"regions"`
	Cities  []string `yaml:"cities" mapstructure:"cities"`
	Groups  []string `yaml:"groups" mapstructure:"groups"`
	Zones   []string `yaml:"zones" mapstructure:"zones"`

	RiskMin *int `yaml:"risk_min" mapstructure:"risk_min"`
	RiskMax *int `yaml:"risk_max" mapstructure:"risk_max"`

	Latitude  float64 `yaml:"latitude" mapstructure:"latitude"`
	Longitude float64 `yaml:"longitude" mapstructure:"longitude"`
	RadiusKM  float64 `yaml:"radius_km" mapstructure:"radius_km"`

	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	ASNRanges []GeoASNRangeConfig `yaml:"asn_ranges" mapstructure:"asn_ranges" validate:"omitempty,dive"`

	CustomField    string `yaml:"custom_field" mapstructure:"custom_field"`
	CustomOperator string `yaml:"custom_operator" mapstructure:"custom_operator"`
	CustomValue    string `yaml:"custom_value" mapstructure:"custom_value"`
}

// GeoASNRangeConfig configures an inclusive ASN range.
type GeoASNRangeConfig struct {
	Start uint32 `yaml:"start" mapstructure:"start"`
	End   uint32 `yaml:"end" mapstructure:"end" validate:"gtefield=Start"`
}

// GeoActionConfig configures the action taken when a rule (or the
// default) matches.
type GeoActionConfig struct {
	Kind string `yaml:"kind" mapstructure:"kind" validate:"required,geo_action"`

	// ReqPerMinute applies when Kind is "rate_limit".
	ReqPerMinute int `yaml:"req_per_minute" mapstructure:"req_per_minute" validate:"omitempty,min=1"`

	// RedirectURL applies when Kind is "redirect".
	RedirectURL string `yaml:"redirect_url" mapstructure:"redirect_url" validate:"omitempty,url"`
}

// VerifyConfig configures signature and hash verification.
type VerifyConfig struct {
	// KeyringPath is the path to the OpenPGP keyring used to verify
	// release file signatures. Required for signature verification to
	// be wired; if empty, the pipeline skips signature verification.
	KeyringPath string `yaml:"keyring_path" mapstructure:"keyring_path"`
}

// CacheConfig configures the in-memory response cache.
type CacheConfig struct {
	// ShardCount is the number of cache shards; any positive count is
	// accepted. Defaults to 32 if 0.
	ShardCount int `yaml:"shard_count" mapstructure:"shard_count" validate:"omitempty,min=1"`

	// CleanupInterval is how often expired entries are swept (e.g. "5m").
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty"`

	// ReleaseTTL, PackageTTL, DebTTL, DefaultTTL override spec.md §4.3's
	// artifact-class TTL defaults (e.g. "6h", "12h", "8760h", "1h").
	ReleaseTTL string `yaml:"release_ttl" mapstructure:"release_ttl" validate:"omitempty"`
	PackageTTL string `yaml:"package_ttl" mapstructure:"package_ttl" validate:"omitempty"`
	DebTTL     string `yaml:"deb_ttl" mapstructure:"deb_ttl" validate:"omitempty"`
	DefaultTTL string `yaml:"default_ttl" mapstructure:"default_ttl" validate:"omitempty"`
}

// AuditConfig configures audit event output.
type AuditConfig struct {
	// Dir is the directory where JSONL audit files are stored.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required"`

	// RetentionDays is the number of days to keep audit files. Defaults
	// to 7.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB is the per-file size before rotation, in megabytes.
	// Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`

	// CacheSize is the number of recent events kept in the in-memory
	// ring buffer. Defaults to 1000.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`

	// SQLitePath, if set, enables the durable queryable audit mirror
	// alongside the JSONL append log. Empty disables it.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// RateLimitConfig configures the GCRA rate limiter backing geo policy's
// RateLimit action.
type RateLimitConfig struct {
	// CleanupInterval is how often expired rate limit cells are swept
	// (e.g. "5m").
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty"`

	// MaxTTL is the maximum age of a rate limit cell before removal
	// (e.g. "1h").
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty"`
}

// SetDevDefaults applies permissive defaults for development mode,
// before validation, so a minimal config can run with just an upstream.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	if len(c.Archive.AllowedSuites) == 0 {
		c.Archive.AllowedSuites = []string{"stable", "testing", "unstable", "bookworm", "bullseye"}
	}
	if len(c.Archive.AllowedComponents) == 0 {
		c.Archive.AllowedComponents = []string{"main", "contrib", "non-free", "non-free-firmware"}
	}
	if len(c.Archive.AllowedArchitectures) == 0 {
		c.Archive.AllowedArchitectures = []string{"amd64", "arm64", "i386", "all"}
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = os.TempDir() + "/aptgate-audit"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://deb.debian.org"
	}
	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = "30s"
	}

	if c.Geo.DefaultAction == "" {
		c.Geo.DefaultAction = "allow"
	}

	if c.Cache.ShardCount == 0 {
		c.Cache.ShardCount = 32
	}
	if c.Cache.CleanupInterval == "" {
		c.Cache.CleanupInterval = "5m"
	}
	if c.Cache.ReleaseTTL == "" {
		c.Cache.ReleaseTTL = "6h"
	}
	if c.Cache.PackageTTL == "" {
		c.Cache.PackageTTL = "12h"
	}
	if c.Cache.DebTTL == "" {
		c.Cache.DebTTL = "8760h"
	}
	if c.Cache.DefaultTTL == "" {
		c.Cache.DefaultTTL = "1h"
	}

	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}
	if c.Audit.CacheSize == 0 {
		c.Audit.CacheSize = 1000
	}

	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}
}
