package manifest

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const goodChecksum = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func goodManifest() string {
	return fmt.Sprintf(`{
  "created": "2026-08-30T12:00:00Z",
  "count": 2,
  "extensions": [
    {"id": "ms-python.python", "version": "2024.2.1", "path": "extensions/ms-python.python-2024.2.1.vsix", "sha256": %q, "size": 100},
    {"id": "redhat.vscode-yaml", "version": "1.19.1", "path": "extensions/redhat.vscode-yaml-1.19.1.vsix", "sha256": %q, "size": 200}
  ]
}`, goodChecksum, goodChecksum)
}

func TestParseValidManifest(t *testing.T) {
	m, err := Parse([]byte(goodManifest()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(m.Entries))
	}
	if m.Entries[0].Ref.ID() != "ms-python.python" {
		t.Errorf("first entry id = %q", m.Entries[0].Ref.ID())
	}
	if _, ok := m.Lookup("redhat.vscode-yaml"); !ok {
		t.Error("Lookup missed redhat.vscode-yaml")
	}
}

func TestParseRejectsMalformedChecksum(t *testing.T) {
	data := strings.ReplaceAll(goodManifest(), goodChecksum, "nothex")
	assertManifestError(t, data)
}

func TestParseRejectsTraversalPath(t *testing.T) {
	data := strings.ReplaceAll(goodManifest(),
		"extensions/ms-python.python-2024.2.1.vsix",
		"../escape.vsix")
	assertManifestError(t, data)
}

func TestParseRejectsAbsolutePath(t *testing.T) {
	data := strings.ReplaceAll(goodManifest(),
		"extensions/ms-python.python-2024.2.1.vsix",
		"/etc/escape.vsix")
	assertManifestError(t, data)
}

func TestParseRejectsDuplicateExtension(t *testing.T) {
	data := strings.ReplaceAll(goodManifest(), "redhat.vscode-yaml", "ms-python.python")
	assertManifestError(t, data)
}

func TestParseRejectsCountMismatch(t *testing.T) {
	data := strings.Replace(goodManifest(), `"count": 2`, `"count": 5`, 1)
	assertManifestError(t, data)
}

func TestParseRejectsMissingFields(t *testing.T) {
	assertManifestError(t, `{"created": "2026-08-30", "count": 0}`)
}

func TestParseRejectsGarbage(t *testing.T) {
	assertManifestError(t, `{{{`)
}

func assertManifestError(t *testing.T, data string) {
	t.Helper()
	_, err := Parse([]byte(data))
	if err == nil {
		t.Fatal("Parse succeeded, want manifest error")
	}
	var merr *Error
	if !errors.As(err, &merr) {
		t.Fatalf("got %T, want *manifest.Error: %v", err, err)
	}
}
