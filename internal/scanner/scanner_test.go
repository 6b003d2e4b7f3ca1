package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestScanCreatesMissingTargetDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "extensions")

	state, err := Scan(target, testLogger())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(state.ByID) != 0 {
		t.Errorf("fresh directory should scan empty, got %d", len(state.ByID))
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		t.Error("Scan should have created the target directory")
	}
}

func TestScanFindsInstalledExtensions(t *testing.T) {
	target := t.TempDir()
	mkExt(t, target, "ms-python.python-2024.2.1")
	mkExt(t, target, "redhat.vscode-yaml-1.19.1")
	// Files and dotdirs are not extensions.
	if err := os.WriteFile(filepath.Join(target, "extensions.json"), []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}
	mkExt(t, target, ".obsolete")

	state, err := Scan(target, testLogger())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(state.ByID) != 2 {
		t.Fatalf("got %d installed, want 2", len(state.ByID))
	}

	inst, ok := state.ByID["ms-python.python"]
	if !ok {
		t.Fatal("ms-python.python not found")
	}
	if inst.Ref.Version != "2024.2.1" {
		t.Errorf("version = %q", inst.Ref.Version)
	}
	if inst.Path != filepath.Join(target, "ms-python.python-2024.2.1") {
		t.Errorf("path = %q", inst.Path)
	}
}

func TestScanPicksHighestVersionAndFlagsOrphans(t *testing.T) {
	target := t.TempDir()
	mkExt(t, target, "pub.tool-1.2.0")
	mkExt(t, target, "pub.tool-1.10.0")
	mkExt(t, target, "pub.tool-1.9.0")

	state, err := Scan(target, testLogger())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if got := state.ByID["pub.tool"].Ref.Version; got != "1.10.0" {
		t.Errorf("resident version = %q, want 1.10.0", got)
	}
	if len(state.Orphans) != 2 {
		t.Fatalf("got %d orphans, want 2", len(state.Orphans))
	}
	for _, orphan := range state.Orphans {
		if orphan.Ref.Version == "1.10.0" {
			t.Error("resident version listed as orphan")
		}
	}
}

func TestScanFailsWhenTargetUncreatable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Scan(filepath.Join(blocker, "extensions"), testLogger())
	if err == nil {
		t.Fatal("Scan succeeded under a file, want ScanError")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("got %T, want *scanner.Error", err)
	}
}

func mkExt(t *testing.T, target, name string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(target, name), 0755); err != nil {
		t.Fatal(err)
	}
}
