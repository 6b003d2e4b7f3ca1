package manifest

import (
	"fmt"
	"os"
	"path"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/vsixgate/vsixgate/internal/extension"
)

// rawManifest mirrors the wire format.
type rawManifest struct {
	Created    string     `yaml:"created" json:"created"`
	Count      int        `yaml:"count" json:"count"`
	Extensions []rawEntry `yaml:"extensions" json:"extensions"`
}

type rawEntry struct {
	ID      string `yaml:"id" json:"id"`
	Version string `yaml:"version" json:"version"`
	Path    string `yaml:"path" json:"path"`
	SHA256  string `yaml:"sha256" json:"sha256"`
	Size    int64  `yaml:"size" json:"size"`
}

// Parse validates raw manifest bytes against the schema and returns the
// typed Manifest. Parse is pure: it touches nothing on disk.
func Parse(data []byte) (*Manifest, error) {
	issues, err := validateSchema(data)
	if err != nil {
		return nil, &Error{Reason: "not well-formed", Err: err}
	}
	if len(issues) > 0 {
		parts := make([]string, len(issues))
		for i, issue := range issues {
			parts[i] = issue.String()
		}
		return nil, &Error{Reason: "schema validation failed: " + strings.Join(parts, "; ")}
	}

	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Reason: "not well-formed", Err: err}
	}

	m := &Manifest{Created: raw.Created, Count: raw.Count}
	seen := make(map[string]bool, len(raw.Extensions))

	for _, re := range raw.Extensions {
		ref, err := extension.ParseRef(re.ID + "@" + re.Version)
		if err != nil {
			return nil, &Error{Reason: fmt.Sprintf("entry %q", re.ID), Err: err}
		}
		if seen[ref.ID()] {
			return nil, &Error{Reason: fmt.Sprintf("duplicate extension %q", ref.ID())}
		}
		seen[ref.ID()] = true

		if err := checkEntryPath(re.Path); err != nil {
			return nil, &Error{Reason: fmt.Sprintf("entry %q", ref.ID()), Err: err}
		}

		m.Entries = append(m.Entries, Entry{
			Ref:    ref,
			Path:   re.Path,
			SHA256: strings.ToLower(re.SHA256),
			Size:   re.Size,
		})
	}

	if raw.Count != len(m.Entries) {
		return nil, &Error{Reason: fmt.Sprintf("declared count %d but %d entries listed", raw.Count, len(m.Entries))}
	}

	return m, nil
}

// ParseFile reads and parses a manifest from disk.
func ParseFile(p string) (*Manifest, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, &Error{Reason: "reading manifest file", Err: err}
	}
	return Parse(data)
}

// checkEntryPath rejects any archive path that could escape the extraction
// root: absolute paths, backslash separators, and ".." segments.
func checkEntryPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty archive path")
	}
	if strings.Contains(p, `\`) {
		return fmt.Errorf("archive path %q contains backslash", p)
	}
	if path.IsAbs(p) {
		return fmt.Errorf("archive path %q is absolute", p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("archive path %q escapes the archive root", p)
	}
	return nil
}
