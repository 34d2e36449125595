// Package audit contains domain types for the request-pipeline audit
// trail: one structured event per interesting pipeline step.
package audit

import "time"

// EventType is the closed set of audit event types the request pipeline
// may emit (spec.md §4.8). Modeled as a discriminated union rather than
// an open string so a decoder can reject anything outside the set.
type EventType string

const (
	EventRequest             EventType = "request"
	EventCacheHit            EventType = "cache_hit"
	EventFetchSuccess        EventType = "fetch_success"
	EventFetchError          EventType = "fetch_error"
	EventPolicyViolation     EventType = "policy_violation"
	EventVerificationSuccess EventType = "verification_success"
	EventVerificationFailed  EventType = "verification_failed"
	EventGeoIPAllowed        EventType = "geoip_allowed"
	EventGeoIPDenied         EventType = "geoip_denied"
	EventGeoIPRateLimit      EventType = "geoip_rate_limit"
	EventGeoIPRedirect       EventType = "geoip_redirect"
	EventGeoIPLogOnly        EventType = "geoip_log_only"
	EventGeoIPError          EventType = "geoip_error"
)

// Status is the closed set of outcome statuses an audit event may carry.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusInfo    Status = "info"
	StatusFailed  Status = "failed"
)

// Event is a single structured audit record emitted by the request
// pipeline. Pointer fields are omitted from JSON when unset rather than
// serialized as zero values, matching the optional fields of spec.md's
// AuditEvent.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  EventType `json:"event_type"`
	ClientIP   *string   `json:"client_ip,omitempty"`
	Method     *string   `json:"method,omitempty"`
	Path       string    `json:"path"`
	UserAgent  *string   `json:"user_agent,omitempty"`
	Status     Status    `json:"status"`
	Message    *string   `json:"message,omitempty"`
	DurationMs *int64    `json:"duration_ms,omitempty"`
}

// StringPtr is a small convenience for building Event literals from a
// plain string without an intermediate local variable.
func StringPtr(s string) *string { return &s }

// Int64Ptr is the DurationMs analogue of StringPtr.
func Int64Ptr(v int64) *int64 { return &v }
