package extension

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// VersionLatest is the sentinel version meaning "whatever the archive carries".
const VersionLatest = "latest"

// Ref identifies one extension by publisher-qualified id and version.
// It is immutable once constructed.
type Ref struct {
	Publisher string
	Name      string
	Version   string
}

// ParseRef parses "publisher.name" or "publisher.name@version" into a Ref.
// A ref without a version gets VersionLatest.
func ParseRef(s string) (Ref, error) {
	spec := strings.TrimSpace(s)
	version := VersionLatest

	if at := strings.LastIndex(spec, "@"); at >= 0 {
		version = spec[at+1:]
		spec = spec[:at]
		if version == "" {
			return Ref{}, fmt.Errorf("extension %q: empty version after '@'", s)
		}
	}

	publisher, name, ok := strings.Cut(spec, ".")
	if !ok || publisher == "" || name == "" {
		return Ref{}, fmt.Errorf("extension %q: want publisher.name or publisher.name@version", s)
	}

	return Ref{Publisher: publisher, Name: name, Version: version}, nil
}

// ID returns the publisher-qualified id, e.g. "ms-python.python".
func (r Ref) ID() string {
	return r.Publisher + "." + r.Name
}

// DirName returns the install directory name in the VS Code layout,
// e.g. "ms-python.python-2024.2.1".
func (r Ref) DirName() string {
	return r.ID() + "-" + r.Version
}

// String returns the canonical "publisher.name@version" form.
func (r Ref) String() string {
	return r.ID() + "@" + r.Version
}

// ParseDirName splits an install directory name "publisher.name-version"
// back into a Ref. Publisher ids themselves contain hyphens (ms-python),
// so the split point is the last hyphen whose suffix parses as semver;
// when no suffix does, the last hyphen wins.
func ParseDirName(name string) (Ref, bool) {
	if !strings.Contains(name, ".") || !strings.Contains(name, "-") {
		return Ref{}, false
	}

	for i := len(name) - 1; i > 0; i-- {
		if name[i] != '-' || i == len(name)-1 {
			continue
		}
		if _, err := semver.NewVersion(name[i+1:]); err == nil {
			return splitDirName(name[:i], name[i+1:])
		}
	}

	cut := strings.LastIndex(name, "-")
	if cut <= 0 || cut == len(name)-1 {
		return Ref{}, false
	}
	return splitDirName(name[:cut], name[cut+1:])
}

func splitDirName(id, version string) (Ref, bool) {
	publisher, extName, ok := strings.Cut(id, ".")
	if !ok || publisher == "" || extName == "" {
		return Ref{}, false
	}
	return Ref{Publisher: publisher, Name: extName, Version: version}, true
}

// CompareVersions orders two version strings. Semver is preferred; versions
// that do not parse as semver fall back to a plain string compare so the
// ordering stays total (and the scanner tie-break stays deterministic).
// Returns -1 if a < b, 0 if equal, 1 if a > b.
func CompareVersions(a, b string) int {
	av, aerr := semver.NewVersion(strings.TrimPrefix(a, "v"))
	bv, berr := semver.NewVersion(strings.TrimPrefix(b, "v"))
	if aerr == nil && berr == nil {
		return av.Compare(bv)
	}
	return strings.Compare(a, b)
}
