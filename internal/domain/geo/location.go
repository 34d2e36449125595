// Package geo contains domain types for geo-location-based request policy:
// the location record derived from a client IP, the risk model, and the
// ordered rule engine that turns a location into a policy action.
package geo

import (
	"math"
	"time"
)

// Location is the structured result of looking up a client IP in the geo
// database.
type Location struct {
	IP                string
	CountryCode       string
	CountryName       string
	City              string
	Region            string
	PostalCode        string
	Timezone          string
	ContinentCode     string
	Latitude          float64
	Longitude         float64
	ASN               uint32
	HasASN            bool
	Organization      string
	InEU              bool
	AnonymousProxy    bool
	SatelliteProvider bool
}

// earthRadiusKM is the Haversine-formula Earth radius used by DistanceTo.
const earthRadiusKM = 6371.0

// DistanceTo computes the great-circle distance in kilometers between this
// location and (lat, lon) using the Haversine formula.
func (l Location) DistanceTo(lat, lon float64) float64 {
	lat1 := toRadians(l.Latitude)
	lat2 := toRadians(lat)
	deltaLat := lat2 - lat1
	deltaLon := toRadians(lon - l.Longitude)

	a := math.Pow(math.Sin(deltaLat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(deltaLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// CountryGroup is the fixed-vocabulary continental bucket used for policy.
type CountryGroup string

// The closed set of country groups.
const (
	GroupNorthAmerica CountryGroup = "north_america"
	GroupEurope       CountryGroup = "europe"
	GroupAsiaPacific  CountryGroup = "asia_pacific"
	GroupSouthAmerica CountryGroup = "south_america"
	GroupAfrica       CountryGroup = "africa"
	GroupMiddleEast   CountryGroup = "middle_east"
	GroupOther        CountryGroup = "other"
)

// countryGroups is the static ISO-code-to-group table. It is part of the
// specification, not runtime-modifiable data: every ISO code maps to
// exactly one group, defaulting to GroupOther when unmatched.
var countryGroups = map[string]CountryGroup{
	"US": GroupNorthAmerica, "CA": GroupNorthAmerica, "MX": GroupNorthAmerica,

	"GB": GroupEurope, "DE": GroupEurope, "FR": GroupEurope, "IT": GroupEurope,
	"ES": GroupEurope, "NL": GroupEurope, "BE": GroupEurope, "AT": GroupEurope,
	"CH": GroupEurope, "SE": GroupEurope, "NO": GroupEurope, "DK": GroupEurope,
	"FI": GroupEurope, "PL": GroupEurope, "CZ": GroupEurope, "HU": GroupEurope,
	"GR": GroupEurope, "PT": GroupEurope, "IE": GroupEurope,

	"CN": GroupAsiaPacific, "JP": GroupAsiaPacific, "KR": GroupAsiaPacific,
	"SG": GroupAsiaPacific, "AU": GroupAsiaPacific, "NZ": GroupAsiaPacific,
	"IN": GroupAsiaPacific, "TH": GroupAsiaPacific, "MY": GroupAsiaPacific,
	"ID": GroupAsiaPacific, "PH": GroupAsiaPacific,

	"BR": GroupSouthAmerica, "AR": GroupSouthAmerica, "CL": GroupSouthAmerica,
	"CO": GroupSouthAmerica, "PE": GroupSouthAmerica, "VE": GroupSouthAmerica,
	"EC": GroupSouthAmerica, "BO": GroupSouthAmerica, "UY": GroupSouthAmerica,
	"PY": GroupSouthAmerica,

	"ZA": GroupAfrica, "EG": GroupAfrica, "NG": GroupAfrica, "KE": GroupAfrica,
	"MA": GroupAfrica, "TN": GroupAfrica, "GH": GroupAfrica,

	"SA": GroupMiddleEast, "AE": GroupMiddleEast, "IL": GroupMiddleEast,
	"IR": GroupMiddleEast, "IQ": GroupMiddleEast, "JO": GroupMiddleEast,
	"LB": GroupMiddleEast, "SY": GroupMiddleEast, "TR": GroupMiddleEast,
}

// CountryGroupOf returns the fixed-vocabulary continental bucket for this
// location's country code, GroupOther if unmatched.
func (l Location) CountryGroupOf() CountryGroup {
	if g, ok := countryGroups[l.CountryCode]; ok {
		return g
	}
	return GroupOther
}

var highRiskCountries = map[string]struct{}{"CN": {}, "RU": {}, "KP": {}, "IR": {}}
var mediumRiskCountries = map[string]struct{}{"IN": {}, "BR": {}, "ID": {}, "PK": {}}
var lowRiskCountries = map[string]struct{}{"US": {}, "CA": {}, "GB": {}, "DE": {}, "FR": {}, "JP": {}, "AU": {}}

// RiskScore computes the 0-100 heuristic risk score for this location.
// Deterministic on (CountryCode, AnonymousProxy, SatelliteProvider);
// reproducible bit-for-bit per spec.md §4.5.
func (l Location) RiskScore() int {
	score := 50

	switch {
	case isIn(highRiskCountries, l.CountryCode):
		score += 30
	case isIn(mediumRiskCountries, l.CountryCode):
		score += 15
	case isIn(lowRiskCountries, l.CountryCode):
		score -= 10
	}

	if l.AnonymousProxy {
		score += 40
	}
	if l.SatelliteProvider {
		score += 20
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func isIn(set map[string]struct{}, code string) bool {
	_, ok := set[code]
	return ok
}

// timezoneUTCOffsets is the static timezone-to-UTC-offset table used by
// IsBusinessHours. Part of the specification, not runtime-modifiable.
var timezoneUTCOffsets = map[string]int{
	"UTC":                 0,
	"Europe/London":       0,
	"Europe/Paris":        1,
	"Europe/Berlin":       1,
	"Europe/Rome":         1,
	"Europe/Spain":        1,
	"Europe/Amsterdam":    1,
	"Europe/Stockholm":    1,
	"Europe/Warsaw":       1,
	"America/New_York":    -5,
	"America/Chicago":     -6,
	"America/Denver":      -7,
	"America/Los_Angeles": -8,
	"America/Phoenix":     -7,
	"America/Anchorage":   -9,
	"Pacific/Auckland":    12,
	"Australia/Sydney":    10,
	"Asia/Tokyo":          9,
	"Asia/Shanghai":       8,
	"Asia/Singapore":      8,
	"Asia/Dubai":          4,
	"Asia/Kolkata":        5,
}

// IsBusinessHours reports whether it is currently between 9am and 5pm
// (exclusive) local time at this location, using the static timezone
// offset table. Locations with an unmapped or empty timezone are never
// considered to be in business hours.
func (l Location) IsBusinessHours(now time.Time) bool {
	offset, ok := timezoneUTCOffsets[l.Timezone]
	if !ok {
		return false
	}
	localHour := (now.UTC().Hour() + offset + 24) % 24
	return localHour >= 9 && localHour < 17
}
