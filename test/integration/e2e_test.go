package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vsixgate/vsixgate/internal/backup"
	"github.com/vsixgate/vsixgate/internal/deploy"
	"github.com/vsixgate/vsixgate/internal/extension"
	"github.com/vsixgate/vsixgate/internal/fetch"
	"github.com/vsixgate/vsixgate/internal/integrity"
	"github.com/vsixgate/vsixgate/internal/manifest"
	"github.com/vsixgate/vsixgate/internal/pack"
	"github.com/vsixgate/vsixgate/internal/plan"
	"github.com/vsixgate/vsixgate/internal/scanner"
	"github.com/vsixgate/vsixgate/internal/server"
)

// writeVsix writes a minimal .vsix named publisher.name-version.vsix into dir.
func writeVsix(t *testing.T, dir, dirName string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"extension/package.json":  `{"name":"` + dirName + `"}`,
		"extension/dist/index.js": "module.exports = {}",
	} {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, dirName+".vsix"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// TestPackServeDeploy runs the whole pipeline: package .vsix files into an
// archive plus manifest, serve both over HTTP, download them, and reconcile
// an empty target directory against the manifest.
func TestPackServeDeploy(t *testing.T) {
	logger := zerolog.Nop()

	// Producer side: collect and package.
	vsixDir := t.TempDir()
	writeVsix(t, vsixDir, "pub.alpha-1.0.0")
	writeVsix(t, vsixDir, "pub.beta-2.1.0")

	packer := pack.New(logger)
	files, err := packer.Collect(vsixDir)
	if err != nil {
		t.Fatal(err)
	}
	filesDir := t.TempDir()
	zipPath, manifestPath, err := packer.Build(files, filesDir, "bundle.zip")
	if err != nil {
		t.Fatal(err)
	}

	// Distribution side: serve the output directory.
	srv := httptest.NewServer(server.New(filesDir, logger).Handler())
	defer srv.Close()

	// Deployer side: fetch both halves.
	workDir := t.TempDir()
	fetcher := fetch.New(0, logger)
	archiveLocal, err := fetcher.Download(context.Background(), srv.URL+"/zip/"+filepath.Base(zipPath), workDir)
	if err != nil {
		t.Fatal(err)
	}
	manifestLocal, err := fetcher.Download(context.Background(), srv.URL+"/manifest/"+filepath.Base(manifestPath), workDir)
	if err != nil {
		t.Fatal(err)
	}

	m, err := manifest.ParseFile(manifestLocal)
	if err != nil {
		t.Fatalf("fetched manifest does not parse: %v", err)
	}

	target := t.TempDir()
	state, err := scanner.Scan(target, logger)
	if err != nil {
		t.Fatal(err)
	}

	p := plan.Build(m, state, extension.Filter{}, plan.ModeNone)
	if len(p.Actions) != 2 {
		t.Fatalf("plan has %d actions, want 2 installs", len(p.Actions))
	}

	backups := backup.NewManager(filepath.Join(t.TempDir(), "backups"), logger)
	engine := deploy.NewEngine(archiveLocal, target, t.TempDir(), backups, integrity.LevelError, logger)
	report := engine.Apply(p, false)
	if !report.OK() {
		t.Fatalf("deploy failed: %+v", report.Failed())
	}

	for _, dirName := range []string{"pub.alpha-1.0.0", "pub.beta-2.1.0"} {
		if _, err := os.Stat(filepath.Join(target, dirName, "package.json")); err != nil {
			t.Errorf("%s not installed: %v", dirName, err)
		}
	}

	// Second run against the same target is a pure no-op plan.
	state, err = scanner.Scan(target, logger)
	if err != nil {
		t.Fatal(err)
	}
	p = plan.Build(m, state, extension.Filter{}, plan.ModeNone)
	for _, a := range p.Actions {
		if a.Op != plan.OpSkip {
			t.Errorf("rerun produced %s, want only skips", a)
		}
	}
}

// TestCleanModeRemovesUnmanaged covers the wipe half of reconciliation: an
// extension the archive does not provide is backed up and removed.
func TestCleanModeRemovesUnmanaged(t *testing.T) {
	logger := zerolog.Nop()

	vsixDir := t.TempDir()
	writeVsix(t, vsixDir, "pub.alpha-1.0.0")

	packer := pack.New(logger)
	files, err := packer.Collect(vsixDir)
	if err != nil {
		t.Fatal(err)
	}
	outDir := t.TempDir()
	zipPath, manifestPath, err := packer.Build(files, outDir, "bundle.zip")
	if err != nil {
		t.Fatal(err)
	}
	m, err := manifest.ParseFile(manifestPath)
	if err != nil {
		t.Fatal(err)
	}

	target := t.TempDir()
	stale := filepath.Join(target, "pub.stale-3.0.0")
	if err := os.MkdirAll(stale, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, "package.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	state, err := scanner.Scan(target, logger)
	if err != nil {
		t.Fatal(err)
	}
	p := plan.Build(m, state, extension.Filter{}, plan.ModeClean)

	backups := backup.NewManager(filepath.Join(t.TempDir(), "backups"), logger)
	engine := deploy.NewEngine(zipPath, target, t.TempDir(), backups, integrity.LevelError, logger)
	report := engine.Apply(p, false)
	if !report.OK() {
		t.Fatalf("deploy failed: %+v", report.Failed())
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("unmanaged extension survived a clean deploy")
	}
	if _, err := os.Stat(filepath.Join(target, "pub.alpha-1.0.0")); err != nil {
		t.Error("desired extension not installed")
	}

	entries, err := os.ReadDir(backups.Dir())
	if err != nil || len(entries) != 1 {
		t.Errorf("expected one backup snapshot, got %v (%v)", entries, err)
	}
}
