package pack

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vsixgate/vsixgate/internal/extension"
	"github.com/vsixgate/vsixgate/internal/integrity"
	"github.com/vsixgate/vsixgate/internal/manifest"
)

func ref(t *testing.T, spec string) extension.Ref {
	t.Helper()
	r, err := extension.ParseRef(spec)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func writeVsix(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCollectParsesVsixFilenames(t *testing.T) {
	dir := t.TempDir()
	writeVsix(t, dir, "ms-python.python-2024.2.1.vsix", "a")
	writeVsix(t, dir, "redhat.vscode-yaml-1.19.1.vsix", "b")
	writeVsix(t, dir, "README.md", "not a vsix")
	writeVsix(t, dir, "unversioned.vsix", "no ref")

	files, err := New(zerolog.Nop()).Collect(dir)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("collected %d files, want 2", len(files))
	}
	for _, f := range files {
		if f.Ref.Version == "" {
			t.Errorf("unversioned ref collected: %+v", f)
		}
	}
}

func TestBuildRoundTripsThroughManifestParser(t *testing.T) {
	dir := t.TempDir()
	files := []File{
		{Ref: ref(t, "pub.alpha@1.0.0"), Path: writeVsix(t, dir, "pub.alpha-1.0.0.vsix", "alpha bytes")},
		{Ref: ref(t, "pub.beta@2.1.0"), Path: writeVsix(t, dir, "pub.beta-2.1.0.vsix", "beta bytes")},
	}

	out := t.TempDir()
	zipPath, manifestPath, err := New(zerolog.Nop()).Build(files, out, "bundle-{{date}}.zip")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	date := time.Now().UTC().Format("2006-01-02")
	if filepath.Base(zipPath) != "bundle-"+date+".zip" {
		t.Errorf("zip name = %q", filepath.Base(zipPath))
	}
	if manifestPath != strings.TrimSuffix(zipPath, ".zip")+".manifest.json" {
		t.Errorf("manifest path = %q", manifestPath)
	}

	m, err := manifest.ParseFile(manifestPath)
	if err != nil {
		t.Fatalf("generated manifest does not parse: %v", err)
	}
	if m.Count != 2 || len(m.Entries) != 2 {
		t.Fatalf("manifest count = %d", m.Count)
	}

	entry, ok := m.Lookup("pub.alpha")
	if !ok {
		t.Fatal("pub.alpha missing from manifest")
	}
	if entry.Path != "extensions/pub.alpha-1.0.0.vsix" {
		t.Errorf("entry path = %q", entry.Path)
	}
	if entry.Size != int64(len("alpha bytes")) {
		t.Errorf("entry size = %d", entry.Size)
	}

	// The archive member's bytes must hash to the declared checksum.
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	var found bool
	for _, f := range zr.File {
		if f.Name != entry.Path {
			continue
		}
		found = true
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		tmp := filepath.Join(t.TempDir(), "member.vsix")
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			t.Fatal(err)
		}
		sum, err := integrity.FileSHA256(tmp)
		if err != nil {
			t.Fatal(err)
		}
		if sum != entry.SHA256 {
			t.Errorf("member checksum %s, manifest declares %s", sum, entry.SHA256)
		}
	}
	if !found {
		t.Errorf("member %s not present in archive", entry.Path)
	}
}

func TestBuildRejectsEmptySet(t *testing.T) {
	if _, _, err := New(zerolog.Nop()).Build(nil, t.TempDir(), "bundle.zip"); err == nil {
		t.Fatal("Build accepted an empty file set")
	}
}

func TestFetchSubstitutesMarketplacePlaceholders(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("vsix bytes"))
	}))
	defer srv.Close()

	refs := []extension.Ref{ref(t, "ms-python.python@2024.2.1")}
	files, err := New(zerolog.Nop()).Fetch(context.Background(), refs,
		srv.URL+"/gallery/{publisher}/{name}/{version}/vspackage",
		t.TempDir(), 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if gotPath != "/gallery/ms-python/python/2024.2.1/vspackage" {
		t.Errorf("request path = %q", gotPath)
	}
	if len(files) != 1 || filepath.Base(files[0].Path) != "ms-python.python-2024.2.1.vsix" {
		t.Errorf("files = %+v", files)
	}
}

func TestFetchSkipFailedContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	refs := []extension.Ref{
		ref(t, "pub.broken@1.0.0"),
		ref(t, "pub.fine@1.0.0"),
	}
	url := srv.URL + "/gallery/{publisher}/{name}/{version}/vspackage"

	files, err := New(zerolog.Nop()).Fetch(context.Background(), refs, url, t.TempDir(), 0, true)
	if err != nil {
		t.Fatalf("Fetch with skip-failed: %v", err)
	}
	if len(files) != 1 || files[0].Ref.Name != "fine" {
		t.Fatalf("files = %+v", files)
	}

	if _, err := New(zerolog.Nop()).Fetch(context.Background(), refs, url, t.TempDir(), 0, false); err == nil {
		t.Fatal("Fetch without skip-failed swallowed the failure")
	}
}
