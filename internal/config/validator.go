package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validGeoActions = map[string]struct{}{
	"allow":      {},
	"deny":       {},
	"log_only":   {},
	"rate_limit": {},
	"redirect":   {},
}

var validGeoConditionKinds = map[string]struct{}{
	"country_code":       {},
	"continent":          {},
	"region":             {},
	"city":               {},
	"country_group":      {},
	"risk_score":         {},
	"distance":           {},
	"timezone":           {},
	"business_hours":     {},
	"anonymous_proxy":    {},
	"satellite_provider": {},
	"asn":                {},
	"custom":             {},
}

// RegisterCustomValidators registers Aptgate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("geo_action", validateGeoAction); err != nil {
		return fmt.Errorf("failed to register geo_action validator: %w", err)
	}
	if err := v.RegisterValidation("geo_condition_kind", validateGeoConditionKind); err != nil {
		return fmt.Errorf("failed to register geo_condition_kind validator: %w", err)
	}
	return nil
}

// validateGeoAction validates a GeoActionConfig.Kind / Config.DefaultAction
// value against the closed set of action kinds (spec.md §4.5).
func validateGeoAction(fl validator.FieldLevel) bool {
	_, ok := validGeoActions[fl.Field().String()]
	return ok
}

// validateGeoConditionKind validates a GeoConditionConfig.Kind value
// against the closed set of condition variants (spec.md §4.5).
func validateGeoConditionKind(fl validator.FieldLevel) bool {
	_, ok := validGeoConditionKinds[fl.Field().String()]
	return ok
}

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error if validation fails, with actionable messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateRateLimitActions(); err != nil {
		return err
	}

	return nil
}

// validateRateLimitActions ensures every rate_limit geo action names a
// positive requests-per-minute figure, since the pipeline's rate-limit
// check denies every request at ReqPerMinute<=0 (fail closed) rather than
// erroring.
func (c *Config) validateRateLimitActions() error {
	for i, rule := range c.Geo.Rules {
		if rule.Action.Kind == "rate_limit" && rule.Action.ReqPerMinute <= 0 {
			return fmt.Errorf("geo.rules[%d]: rate_limit action requires req_per_minute > 0", i)
		}
	}
	if c.Geo.DefaultAction == "rate_limit" {
		return errors.New("geo.default_action: rate_limit is not a valid default action (no rule context to size it)")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a
// single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required for this configuration", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "geo_action":
		return fmt.Sprintf("%s must be one of: allow, deny, log_only, rate_limit, redirect", field)
	case "geo_condition_kind":
		return fmt.Sprintf("%s is not a recognized geo condition kind", field)
	case "gtefield":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
