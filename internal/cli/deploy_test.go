package cli

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vsixgate/vsixgate/internal/pack"
)

// writeVsix builds a minimal .vsix named publisher.name-version.vsix in dir.
func writeVsix(t *testing.T, dir, dirName string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("extension/package.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, dirName+".vsix"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDeployDryRunLeavesBackupDirAbsent(t *testing.T) {
	vsixDir := t.TempDir()
	writeVsix(t, vsixDir, "pub.alpha-1.0.0")

	packer := pack.New(zerolog.Nop())
	files, err := packer.Collect(vsixDir)
	if err != nil {
		t.Fatal(err)
	}
	zipPath, manifestPath, err := packer.Build(files, t.TempDir(), "bundle.zip")
	if err != nil {
		t.Fatal(err)
	}

	target := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backups")
	tempDir := filepath.Join(t.TempDir(), "work")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := `
plan:
  backup_dir: ` + backupDir + `
  temp_dir: ` + tempDir + `
source:
  archive_url: ` + zipPath + `
  manifest_url: ` + manifestPath + `
deployment:
  target_dir: ` + target + `
  dry_run: true
logging:
  level: ERROR
  syslog: false
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	if err := deployCmd.Flags().Set("config", cfgPath); err != nil {
		t.Fatal(err)
	}
	deployCmd.SetOut(io.Discard)

	if err := runDeploy(deployCmd, nil); err != nil {
		t.Fatalf("dry run returned error: %v", err)
	}

	if _, err := os.Stat(backupDir); !os.IsNotExist(err) {
		t.Error("dry run created the backup directory")
	}
	if entries, err := os.ReadDir(target); err != nil || len(entries) != 0 {
		t.Errorf("dry run touched the target directory: %v (%v)", entries, err)
	}
	// The temp dir is still prepared; downloads need it even on a dry run.
	if info, err := os.Stat(tempDir); err != nil || !info.IsDir() {
		t.Error("temp dir not prepared for a dry run")
	}
}
