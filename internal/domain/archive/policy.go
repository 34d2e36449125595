package archive

import (
	"fmt"
	"net/http"
)

// PolicyConfig holds the allow/deny sets and scalar limits that govern
// which archive paths may be served.
type PolicyConfig struct {
	AllowedSuites        map[string]struct{}
	AllowedComponents    map[string]struct{}
	AllowedArchitectures map[string]struct{}
	DeniedArchitectures  map[string]struct{}
	DeniedPackages       map[string]struct{}
	MaxArtifactBytes     int64
}

// NewPolicyConfig builds a PolicyConfig from slices, as loaded from
// configuration.
func NewPolicyConfig(allowedSuites, allowedComponents, allowedArchitectures, deniedArchitectures, deniedPackages []string, maxArtifactBytes int64) PolicyConfig {
	return PolicyConfig{
		AllowedSuites:        toSet(allowedSuites),
		AllowedComponents:    toSet(allowedComponents),
		AllowedArchitectures: toSet(allowedArchitectures),
		DeniedArchitectures:  toSet(deniedArchitectures),
		DeniedPackages:       toSet(deniedPackages),
		MaxArtifactBytes:     maxArtifactBytes,
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// Decision is the outcome of an archive policy check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...interface{}) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// PolicyEngine evaluates archive paths against a PolicyConfig.
type PolicyEngine struct {
	cfg PolicyConfig
}

// NewPolicyEngine creates a PolicyEngine over the given configuration.
func NewPolicyEngine(cfg PolicyConfig) *PolicyEngine {
	return &PolicyEngine{cfg: cfg}
}

// Check evaluates an HTTP method and request path against the policy.
// Method values other than GET/HEAD are always denied. The path is parsed
// internally; an unparsable path is denied with the parse error as reason.
func (e *PolicyEngine) Check(path, method string) Decision {
	if method != http.MethodGet && method != http.MethodHead {
		return deny("method %q is not allowed", method)
	}

	p, err := Parse(path)
	if err != nil {
		return deny("invalid archive path: %v", err)
	}

	switch p.Class {
	case ClassRelease:
		return e.checkRelease(p)
	case ClassPackage:
		return e.checkPackage(p)
	default:
		return deny("unknown path class")
	}
}

func (e *PolicyEngine) checkRelease(p Path) Decision {
	if _, ok := e.cfg.AllowedSuites[p.Suite]; !ok {
		return deny("suite %q is not allowed", p.Suite)
	}

	if p.HasComponent() {
		if _, ok := e.cfg.AllowedComponents[p.Component]; !ok {
			return deny("component %q is not allowed", p.Component)
		}
	}

	if p.HasArchitecture() {
		if _, denied := e.cfg.DeniedArchitectures[p.Architecture]; denied {
			return deny("architecture %q is explicitly denied", p.Architecture)
		}
		if _, ok := e.cfg.AllowedArchitectures[p.Architecture]; !ok {
			return deny("architecture %q is not allowed", p.Architecture)
		}
	}

	// A top-level release file (suite only, no component) is always
	// allowed once the suite gate passes.
	return allow()
}

func (e *PolicyEngine) checkPackage(p Path) Decision {
	if p.HasComponent() {
		if _, ok := e.cfg.AllowedComponents[p.Component]; !ok {
			return deny("component %q is not allowed", p.Component)
		}
	}

	if p.HasFilename() {
		if pkg := PackageName(p.Filename); pkg != "" {
			if _, denied := e.cfg.DeniedPackages[pkg]; denied {
				return deny("package %q is explicitly denied", pkg)
			}
		}
	}

	return allow()
}

// CheckSize reports whether an artifact of the given size is admissible
// under the configured maximum. bytes/(1024*1024) > MaxArtifactBytes fails.
func (e *PolicyEngine) CheckSize(bytes int64) Decision {
	sizeMB := bytes / (1024 * 1024)
	if sizeMB > e.cfg.MaxArtifactBytes {
		return deny("artifact size %dMB exceeds maximum %dMB", sizeMB, e.cfg.MaxArtifactBytes)
	}
	return allow()
}
