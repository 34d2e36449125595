// Package archive contains domain types for decomposing and authorizing
// Debian archive URL paths.
package archive

import (
	"errors"
	"strings"
)

// PathClass identifies the shape of an archive path.
type PathClass string

const (
	// ClassRelease is a path under dists/<suite>/... (release indices,
	// per-component/architecture package indices).
	ClassRelease PathClass = "release"
	// ClassPackage is a path under pool/<component>/<letter>/<package>/<file>.
	ClassPackage PathClass = "package"
)

// ErrNotArchivePath is returned when a path does not match any recognised
// archive path shape.
var ErrNotArchivePath = errors.New("not a recognised archive path")

// Path is the typed decomposition of an archive URL path.
//
// Invariant: a Package path always has Component and Filename set; a
// Release path always has Suite set.
type Path struct {
	Class        PathClass
	Suite        string
	Component    string
	Architecture string
	Filename     string
}

// HasComponent reports whether the path names a component.
func (p Path) HasComponent() bool { return p.Component != "" }

// HasArchitecture reports whether the path names an architecture.
func (p Path) HasArchitecture() bool { return p.Architecture != "" }

// HasFilename reports whether the path names a file (as opposed to a
// directory listing).
func (p Path) HasFilename() bool { return p.Filename != "" }

const debianPrefix = "/debian/"

// Parse decomposes an archive URL path into a typed Path description.
//
// Parse performs no I/O and does not URL-decode its input; callers must
// pass already-decoded paths. Parse is a pure function: parsing the same
// path twice always yields the same result.
func Parse(path string) (Path, error) {
	if !strings.HasPrefix(path, debianPrefix) {
		return Path{}, ErrNotArchivePath
	}
	rest := path[len(debianPrefix):]

	switch {
	case strings.HasPrefix(rest, "dists/"):
		return parseReleasePath(strings.TrimPrefix(rest, "dists/"))
	case strings.HasPrefix(rest, "pool/"):
		return parsePackagePath(strings.TrimPrefix(rest, "pool/"))
	default:
		return Path{}, ErrNotArchivePath
	}
}

// parseReleasePath parses the tail of a dists/<suite>/... path.
//
// Grammar (tail split on "/"):
//
//	len 1             -> suite only
//	len 2             -> suite, filename
//	len 3             -> suite, component, filename
//	len 4, trailing / -> suite, component, architecture (directory)
//	len 4, otherwise  -> suite, component, architecture, filename
//	len >= 5          -> suite, component (2nd elem), architecture (4th elem), filename (last elem)
func parseReleasePath(tail string) (Path, error) {
	parts := strings.Split(tail, "/")
	if len(parts) == 0 || parts[0] == "" {
		return Path{}, ErrNotArchivePath
	}

	p := Path{Class: ClassRelease, Suite: parts[0]}

	switch {
	case len(parts) == 1:
		// suite only
	case len(parts) == 2:
		p.Filename = parts[1]
	case len(parts) == 3:
		p.Component = parts[1]
		p.Filename = parts[2]
	case len(parts) == 4:
		p.Component = parts[1]
		if parts[3] == "" {
			// trailing slash: .../<component>/<architecture>/
			p.Architecture = parts[2]
		} else {
			p.Architecture = parts[2]
			p.Filename = parts[3]
		}
	default:
		p.Component = parts[1]
		if len(parts) > 3 {
			p.Architecture = parts[3]
		}
		p.Filename = parts[len(parts)-1]
	}

	return p, nil
}

// parsePackagePath parses the tail of a pool/<component>/<letter>/<package>/<file> path.
func parsePackagePath(tail string) (Path, error) {
	var parts []string
	for _, s := range strings.Split(tail, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) < 3 {
		return Path{}, ErrNotArchivePath
	}

	return Path{
		Class:     ClassPackage,
		Component: parts[0],
		Filename:  parts[len(parts)-1],
	}, nil
}

// PackageName extracts the package name from a .deb filename, the
// substring before the first underscore (e.g. "apt_2.6.1_amd64.deb" ->
// "apt"). Returns "" if filename does not look like a .deb artifact.
func PackageName(filename string) string {
	if !strings.HasSuffix(filename, ".deb") {
		return ""
	}
	idx := strings.IndexByte(filename, '_')
	if idx < 0 {
		return strings.TrimSuffix(filename, ".deb")
	}
	return filename[:idx]
}
