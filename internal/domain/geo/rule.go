package geo

// ConditionKind is the closed set of geo-rule condition variants.
type ConditionKind string

// The closed set of condition kinds (spec.md §4.5). Implementers must
// model these as a discriminated union; an unknown kind is rejected at
// decode time rather than silently ignored.
const (
	ConditionCountryCode       ConditionKind = "country_code"
	ConditionContinent         ConditionKind = "continent"
	ConditionRegion            ConditionKind = "region"
	ConditionCity              ConditionKind = "city"
	ConditionCountryGroup      ConditionKind = "country_group"
	ConditionRiskScore         ConditionKind = "risk_score"
	ConditionDistance          ConditionKind = "distance"
	ConditionTimezone          ConditionKind = "timezone"
	ConditionBusinessHours     ConditionKind = "business_hours"
	ConditionAnonymousProxy    ConditionKind = "anonymous_proxy"
	ConditionSatelliteProvider ConditionKind = "satellite_provider"
	ConditionASN               ConditionKind = "asn"
	ConditionCustom            ConditionKind = "custom"
)

// AsnRange is an inclusive [Start, End] ASN range.
type AsnRange struct {
	Start uint32
	End   uint32
}

// Condition is a discriminated union over the closed set of geo-rule
// condition variants. Exactly the fields relevant to Kind are populated;
// callers should treat the others as zero.
type Condition struct {
	Kind ConditionKind

	Codes   []string // CountryCode, Continent
	Regions []string // Region
	Cities  []string // City
	Groups  []CountryGroup

	RiskMin        *int
	RiskMax        *int
	Latitude       float64
	Longitude      float64
	RadiusKM       float64
	Zones          []string
	Enabled        bool // BusinessHours / AnonymousProxy / SatelliteProvider "blocked" flag
	ASNRanges      []AsnRange
	CustomField    string
	CustomOperator string
	CustomValue    string
}

// ActionKind is the closed set of geo-rule actions.
type ActionKind string

const (
	ActionAllow     ActionKind = "allow"
	ActionDeny      ActionKind = "deny"
	ActionRateLimit ActionKind = "rate_limit"
	ActionLogOnly   ActionKind = "log_only"
	ActionRedirect  ActionKind = "redirect"
)

// Action is a discriminated union over the closed set of geo-rule actions.
type Action struct {
	Kind         ActionKind
	ReqPerMinute int    // ActionRateLimit
	RedirectURL  string // ActionRedirect
}

// Rule is a single named, prioritized geo policy rule.
type Rule struct {
	Name      string
	Enabled   bool
	Priority  uint8
	Condition Condition
	Action    Action
}

// PolicyConfig configures the geo-policy engine.
type PolicyConfig struct {
	Enabled             bool
	DatabasePath        string
	Rules               []Rule
	DefaultAction       Action
	UpdateIntervalHours uint64
}

// Decision is the outcome of evaluating a PolicyConfig against a Location.
type Decision struct {
	Action      Action
	MatchedRule string // empty if the default action was taken
	Reason      string
	Location    Location
}
