// Package maxminddb adapts a MaxMind GeoIP2/GeoLite2 MMDB file to the
// geo.Database port.
package maxminddb

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"time"

	"github.com/oschwald/maxminddb-golang/v2"

	"github.com/Apt-Gate/Aptgate/internal/domain/geo"
)

// staleAfter is the age at which a loaded database is considered stale
// for operational purposes (spec.md supplemented feature: staleness
// check). A stale database is still used for lookups; staleness is
// reported by IsStale and logged by Validate, and the periodic reload in
// the start command uses it to decide when to reopen the file.
const staleAfter = 30 * 24 * time.Hour

// cityRecord mirrors the subset of the GeoIP2-City schema this adapter
// reads. Field tags follow the maxminddb library's struct-tag
// convention.
type cityRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	RepresentedCountry struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"represented_country"`
	Continent struct {
		Code string `maxminddb:"code"`
	} `maxminddb:"continent"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	Postal struct {
		Code string `maxminddb:"code"`
	} `maxminddb:"postal"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
		TimeZone  string  `maxminddb:"time_zone"`
	} `maxminddb:"location"`
	Traits struct {
		IsAnonymousProxy    bool   `maxminddb:"is_anonymous_proxy"`
		IsSatelliteProvider bool   `maxminddb:"is_satellite_provider"`
		AutonomousSystemNum uint32 `maxminddb:"autonomous_system_number"`
		Organization        string `maxminddb:"organization"`
	} `maxminddb:"traits"`
	RegisteredCountry struct {
		IsInEuropeanUnion bool `maxminddb:"is_in_european_union"`
	} `maxminddb:"registered_country"`
}

// Info is operational metadata about a loaded database, exposed for a
// health endpoint.
type Info struct {
	Path        string
	SizeBytes   int64
	BuildEpoch  int64
	DatabaseType string
	Languages   []string
	LoadedAt    time.Time
}

// Database is a geo.Database backed by an mmap'd MMDB file. Read-only
// after construction; Lookup is safe for concurrent use per the
// maxminddb library's own guarantees.
type Database struct {
	reader *maxminddb.Reader
	info   Info
	logger *slog.Logger
}

// Open reads and parses the MMDB file at path. The returned Database
// keeps the file open (mmap'd by the maxminddb reader) until Close is
// called.
func Open(path string, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}

	size := int64(0)
	if fi, statErr := os.Stat(path); statErr == nil {
		size = fi.Size()
	}

	info := Info{
		Path:         path,
		SizeBytes:    size,
		BuildEpoch:   reader.Metadata.BuildEpoch,
		DatabaseType: reader.Metadata.DatabaseType,
		Languages:    reader.Metadata.Languages,
		LoadedAt:     time.Now(),
	}

	logger.Info("geoip database loaded",
		"path", path,
		"type", info.DatabaseType,
		"size_bytes", info.SizeBytes,
		"languages", info.Languages)

	return &Database{reader: reader, info: info, logger: logger}, nil
}

// Lookup implements geo.Database.
func (d *Database) Lookup(ip string) (geo.Location, bool, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return geo.Location{}, false, fmt.Errorf("parse ip %q: %w", ip, err)
	}

	var rec cityRecord
	result := d.reader.Lookup(addr)
	if err := result.Decode(&rec); err != nil {
		return geo.Location{}, false, fmt.Errorf("decode geoip record: %w", err)
	}
	if !result.Found() {
		return geo.Location{}, false, nil
	}

	loc := geo.Location{
		IP:                ip,
		CountryCode:       firstNonEmpty(rec.Country.ISOCode, "Unknown"),
		CountryName:       firstNonEmpty(rec.Country.Names["en"], "Unknown"),
		City:              rec.City.Names["en"],
		PostalCode:        rec.Postal.Code,
		Timezone:          rec.Location.TimeZone,
		ContinentCode:     rec.Continent.Code,
		Latitude:          rec.Location.Latitude,
		Longitude:         rec.Location.Longitude,
		Organization:      rec.Traits.Organization,
		InEU:              rec.RegisteredCountry.IsInEuropeanUnion,
		AnonymousProxy:    rec.Traits.IsAnonymousProxy,
		SatelliteProvider: rec.Traits.IsSatelliteProvider,
	}
	if len(rec.Subdivisions) > 0 {
		loc.Region = rec.Subdivisions[0].Names["en"]
	}
	if rec.Traits.AutonomousSystemNum != 0 {
		loc.ASN = rec.Traits.AutonomousSystemNum
		loc.HasASN = true
	}

	return loc, true, nil
}

// Close implements geo.Database.
func (d *Database) Close() error {
	return d.reader.Close()
}

// Info returns operational metadata about the loaded database.
func (d *Database) Info() Info {
	return d.info
}

// IsStale reports whether the database was loaded more than staleAfter
// ago. A stale database is still usable for lookups.
func (d *Database) IsStale() bool {
	return time.Since(d.info.LoadedAt) > staleAfter
}

// Validate checks that the backing file still exists and logs a warning
// if the loaded database is stale. It does not reload or re-verify the
// file's contents.
func (d *Database) Validate() error {
	if _, err := os.Stat(d.info.Path); err != nil {
		return fmt.Errorf("geoip database file missing: %w", err)
	}
	if d.IsStale() {
		d.logger.Warn("geoip database is stale", "path", d.info.Path, "loaded_at", d.info.LoadedAt)
	}
	return nil
}

func firstNonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

var _ geo.Database = (*Database)(nil)
