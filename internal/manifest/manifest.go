// Package manifest parses and validates the archive manifest produced by
// the packaging half of the pipeline. The manifest is untrusted input: it
// is schema-validated and every declared path is checked against traversal
// before anything else looks at the archive.
package manifest

import (
	"fmt"

	"github.com/vsixgate/vsixgate/internal/extension"
)

// Entry describes one packaged extension inside the archive.
// Read-only after parse.
type Entry struct {
	Ref    extension.Ref
	Path   string // relative path of the .vsix inside the archive
	SHA256 string // declared checksum, lowercase hex
	Size   int64
}

// Manifest is the declarative record of an archive's contents.
type Manifest struct {
	Created string
	Count   int
	Entries []Entry
}

// Lookup returns the entry for a publisher-qualified id, if present.
func (m *Manifest) Lookup(id string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Ref.ID() == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Error reports a malformed or untrusted manifest. It is fatal: the
// deployer aborts before any mutation when parse fails.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest: %s: %v", e.Reason, e.Err)
	}
	return "manifest: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }
