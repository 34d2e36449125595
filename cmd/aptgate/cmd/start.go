package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	inbound "github.com/Apt-Gate/Aptgate/internal/adapter/inbound/http"
	outboundaudit "github.com/Apt-Gate/Aptgate/internal/adapter/outbound/audit"
	auditfile "github.com/Apt-Gate/Aptgate/internal/adapter/outbound/audit/file"
	auditsqlite "github.com/Apt-Gate/Aptgate/internal/adapter/outbound/audit/sqlite"
	cachemem "github.com/Apt-Gate/Aptgate/internal/adapter/outbound/cache/memory"
	"github.com/Apt-Gate/Aptgate/internal/adapter/outbound/fetch/httpclient"
	"github.com/Apt-Gate/Aptgate/internal/adapter/outbound/geo/maxminddb"
	ratelimitmem "github.com/Apt-Gate/Aptgate/internal/adapter/outbound/ratelimit/memory"
	"github.com/Apt-Gate/Aptgate/internal/adapter/outbound/verify/openpgp"
	"github.com/Apt-Gate/Aptgate/internal/adapter/outbound/verify/sha256hash"
	"github.com/Apt-Gate/Aptgate/internal/config"
	"github.com/Apt-Gate/Aptgate/internal/domain/archive"
	"github.com/Apt-Gate/Aptgate/internal/domain/audit"
	"github.com/Apt-Gate/Aptgate/internal/domain/geo"
	"github.com/Apt-Gate/Aptgate/internal/domain/verify"
	"github.com/Apt-Gate/Aptgate/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the proxy server",
	Long: `Start the Aptgate archive mirror proxy.

Configure upstream.base_url, archive allow/deny sets, and the geo policy
engine in your config file, then run:

  aptgate start
  aptgate start --config /etc/aptgate/aptgate.yaml`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("aptgate stopped")
	return nil
}

// run wires every adapter named in cfg into a service.Pipeline and an
// inbound HTTP transport, then blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	cacheStore := cachemem.New(
		cachemem.WithShardCount(cfg.Cache.ShardCount),
		cachemem.WithCleanupInterval(cfg.CacheCleanupInterval()),
		cachemem.WithLogger(logger),
	)
	cacheStore.StartCleanup(ctx)
	defer cacheStore.Stop()

	fetcher := httpclient.New(cfg.Upstream.BaseURL,
		httpclient.WithTimeout(cfg.UpstreamTimeout()),
		httpclient.WithUserAgent("aptgate/"+Version),
		httpclient.WithLogger(logger),
	)

	archivePolicy := archive.NewPolicyEngine(cfg.ArchivePolicy())

	geoEngine, geoDB, err := buildGeoEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build geo engine: %w", err)
	}
	if geoDB != nil && cfg.Geo.UpdateIntervalHours > 0 {
		startGeoReload(ctx, cfg, geoEngine, geoDB, logger)
	}

	var sigVerifier verify.SignatureVerifier
	if cfg.Verify.KeyringPath != "" {
		v, err := openpgp.New(cfg.Verify.KeyringPath)
		if err != nil {
			return fmt.Errorf("failed to load signature keyring: %w", err)
		}
		sigVerifier = v
	}
	hashVerifier := sha256hash.New()

	auditStore, err := buildAuditStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build audit store: %w", err)
	}
	defer auditStore.Close()

	rateLimiter := ratelimitmem.New(cfg.RateLimitCleanupInterval(), cfg.RateLimitMaxTTL(), logger)
	rateLimiter.StartCleanup(ctx)
	defer rateLimiter.Stop()

	pipeline := service.New(service.Deps{
		Cache:             cacheStore,
		TTLConfig:         cfg.CacheTTLs(),
		ArchivePolicy:     archivePolicy,
		GeoEngine:         geoEngine,
		Fetcher:           fetcher,
		SignatureVerifier: sigVerifier,
		HashVerifier:      hashVerifier,
		AuditStore:        auditStore,
		RateLimiter:       rateLimiter,
		Logger:            logger,
	})

	healthChecker := inbound.NewHealthChecker(cacheStore, geoEngine, auditStore, rateLimiter, Version)

	transport := inbound.NewTransport(pipeline,
		inbound.WithAddr(cfg.Server.HTTPAddr),
		inbound.WithLogger(logger),
		inbound.WithHealthChecker(healthChecker),
	)

	logger.Info("starting aptgate", "addr", cfg.Server.HTTPAddr, "upstream", cfg.Upstream.BaseURL)
	return transport.Start(ctx)
}

func buildGeoEngine(cfg *config.Config, logger *slog.Logger) (*geo.Engine, *maxminddb.Database, error) {
	policy := cfg.GeoPolicy()

	if !cfg.Geo.Enabled || cfg.Geo.DatabasePath == "" {
		return geo.NewEngine(nil, policy), nil, nil
	}

	db, err := maxminddb.Open(cfg.Geo.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return geo.NewEngine(db, policy), db, nil
}

// startGeoReload periodically validates the loaded geo database and, once
// it is past staleAfter, reopens the file from disk and swaps it into
// geoEngine via ReloadDatabase. The interval is cfg.Geo.UpdateIntervalHours,
// per spec.md §4's geo-database staleness-check supplement. The stale
// handle is intentionally left open rather than closed immediately after
// a swap, since in-flight requests may still hold a reference to it.
func startGeoReload(ctx context.Context, cfg *config.Config, geoEngine *geo.Engine, initial *maxminddb.Database, logger *slog.Logger) {
	interval := time.Duration(cfg.Geo.UpdateIntervalHours) * time.Hour

	go func() {
		current := initial
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := current.Validate(); err != nil {
					logger.Warn("geo database validation failed", "path", cfg.Geo.DatabasePath, "error", err)
					continue
				}
				if !current.IsStale() {
					continue
				}

				fresh, err := maxminddb.Open(cfg.Geo.DatabasePath, logger)
				if err != nil {
					logger.Warn("geo database reload failed", "path", cfg.Geo.DatabasePath, "error", err)
					continue
				}
				geoEngine.ReloadDatabase(fresh)
				current = fresh
				logger.Info("geo database reloaded", "path", cfg.Geo.DatabasePath)
			}
		}
	}()
}

func buildAuditStore(cfg *config.Config, logger *slog.Logger) (audit.Store, error) {
	fileStore, err := auditfile.New(auditfile.Config{
		Dir:           cfg.Audit.Dir,
		RetentionDays: cfg.Audit.RetentionDays,
		MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
		CacheSize:     cfg.Audit.CacheSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Audit.SQLitePath == "" {
		return fileStore, nil
	}

	sqliteStore, err := auditsqlite.Open(cfg.Audit.SQLitePath)
	if err != nil {
		return nil, err
	}
	return outboundaudit.NewMultiStore(fileStore, sqliteStore), nil
}

// parseLogLevel converts a string log level to slog.Level. Returns
// slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// pidFilePath returns the standard location for the Aptgate PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".aptgate", "server.pid")
	}
	return filepath.Join(os.TempDir(), "aptgate-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
