package geo

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Evaluate applies the rule set in priority order against a location and
// returns the resulting decision. Highest priority wins; ties are broken
// by rule order (first match wins among equal priorities, i.e. a stable
// sort). If no enabled rule matches, DefaultAction is taken.
//
// now is the time to evaluate BusinessHours conditions against; callers
// pass time.Now() in production and a fixed instant in tests.
func Evaluate(cfg PolicyConfig, loc Location, now time.Time) Decision {
	candidates := make([]Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if r.Enabled && evaluateCondition(r.Condition, loc, now) {
			candidates = append(candidates, r)
		}
	}

	if len(candidates) == 0 {
		return Decision{
			Action:   cfg.DefaultAction,
			Reason:   "no matching rule",
			Location: loc,
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	winner := candidates[0]
	return Decision{
		Action:      winner.Action,
		MatchedRule: winner.Name,
		Reason:      "matched rule: " + winner.Name,
		Location:    loc,
	}
}

func evaluateCondition(c Condition, loc Location, now time.Time) bool {
	switch c.Kind {
	case ConditionCountryCode:
		return contains(c.Codes, loc.CountryCode)
	case ConditionContinent:
		return contains(c.Codes, loc.ContinentCode)
	case ConditionRegion:
		return containsFold(c.Regions, loc.Region)
	case ConditionCity:
		return containsFold(c.Cities, loc.City)
	case ConditionCountryGroup:
		group := loc.CountryGroupOf()
		for _, g := range c.Groups {
			if g == group {
				return true
			}
		}
		return false
	case ConditionRiskScore:
		score := loc.RiskScore()
		if c.RiskMin != nil && score < *c.RiskMin {
			return false
		}
		if c.RiskMax != nil && score > *c.RiskMax {
			return false
		}
		return true
	case ConditionDistance:
		return loc.DistanceTo(c.Latitude, c.Longitude) <= c.RadiusKM
	case ConditionTimezone:
		return loc.Timezone != "" && contains(c.Zones, loc.Timezone)
	case ConditionBusinessHours:
		return c.Enabled == loc.IsBusinessHours(now)
	case ConditionAnonymousProxy:
		return c.Enabled == loc.AnonymousProxy
	case ConditionSatelliteProvider:
		return c.Enabled == loc.SatelliteProvider
	case ConditionASN:
		if !loc.HasASN {
			return false
		}
		for _, r := range c.ASNRanges {
			if loc.ASN >= r.Start && loc.ASN <= r.End {
				return true
			}
		}
		return false
	case ConditionCustom:
		return evaluateCustom(c.CustomField, c.CustomOperator, c.CustomValue, loc)
	default:
		// An unknown condition kind is rejected rather than silently
		// matched or ignored.
		return false
	}
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func containsFold(items []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range items {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// customFields resolves a Custom condition's field name to a value looked
// up from the location, the fixed set described in spec.md §4.5.
func customFields(loc Location) map[string]string {
	return map[string]string{
		"country_code":     loc.CountryCode,
		"country_name":     loc.CountryName,
		"city":             loc.City,
		"region":           loc.Region,
		"postal_code":      loc.PostalCode,
		"timezone":         loc.Timezone,
		"continent_code":   loc.ContinentCode,
		"country_grouping": string(loc.CountryGroupOf()),
		"risk_score":       strconv.Itoa(loc.RiskScore()),
	}
}

func evaluateCustom(field, operator, value string, loc Location) bool {
	fieldValue, ok := customFields(loc)[field]
	if !ok {
		return false
	}

	switch operator {
	case "equals":
		return fieldValue == value
	case "not_equals":
		return fieldValue != value
	case "contains":
		return strings.Contains(fieldValue, value)
	case "starts_with":
		return strings.HasPrefix(fieldValue, value)
	case "ends_with":
		return strings.HasSuffix(fieldValue, value)
	case "gt", "lt", "ge", "le":
		return evaluateNumeric(operator, fieldValue, value)
	default:
		return false
	}
}

func evaluateNumeric(operator, fieldValue, value string) bool {
	lhs, err1 := strconv.ParseFloat(fieldValue, 64)
	rhs, err2 := strconv.ParseFloat(value, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	switch operator {
	case "gt":
		return lhs > rhs
	case "lt":
		return lhs < rhs
	case "ge":
		return lhs >= rhs
	case "le":
		return lhs <= rhs
	default:
		return false
	}
}
