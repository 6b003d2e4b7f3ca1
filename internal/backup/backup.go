// Package backup owns the backup directory lifecycle: every extension the
// engine is about to replace or remove is snapshotted first, and the
// snapshot path is kept in the run report for manual recovery.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/vsixgate/vsixgate/internal/scanner"
)

// Error reports a failed snapshot or restore (disk full, permissions).
// It fails only the action that needed the backup.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backup %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Manager snapshots install directories into a backup root.
type Manager struct {
	dir    string
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a Manager rooted at dir. The directory is created on
// first snapshot, not here, so a dry run never touches it.
func NewManager(dir string, logger zerolog.Logger) *Manager {
	return &Manager{dir: dir, logger: logger, now: time.Now}
}

// Dir returns the backup root.
func (m *Manager) Dir() string { return m.dir }

// Snapshot copies an installed extension's directory into the backup root
// under "<dirname>.<unix-timestamp>" and returns the snapshot path. The
// source is left untouched; the engine deletes it only after Snapshot
// succeeds.
func (m *Manager) Snapshot(inst scanner.Installed) (string, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", &Error{Op: "snapshot", Path: m.dir, Err: err}
	}

	dest := filepath.Join(m.dir, fmt.Sprintf("%s.%d", inst.Ref.DirName(), m.now().Unix()))
	if err := copyDir(inst.Path, dest); err != nil {
		// Leave no half-written snapshot behind.
		os.RemoveAll(dest)
		return "", &Error{Op: "snapshot", Path: inst.Path, Err: err}
	}

	m.logger.Debug().
		Str("extension", inst.Ref.String()).
		Str("backup", dest).
		Msg("snapshotted extension")

	return dest, nil
}

// Restore copies a snapshot back under targetDir using the snapshot's
// original directory name. It is exposed for manual recovery tooling; the
// engine never auto-invokes it.
func (m *Manager) Restore(backupPath, targetDir string) (string, error) {
	info, err := os.Stat(backupPath)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		return "", &Error{Op: "restore", Path: backupPath, Err: err}
	}

	name := filepath.Base(backupPath)
	if ext := filepath.Ext(name); ext != "" {
		// Strip the ".<unix-timestamp>" suffix added by Snapshot.
		name = name[:len(name)-len(ext)]
	}

	dest := filepath.Join(targetDir, name)
	if err := copyDir(backupPath, dest); err != nil {
		return "", &Error{Op: "restore", Path: backupPath, Err: err}
	}

	m.logger.Info().Str("backup", backupPath).Str("restored", dest).Msg("restored extension")
	return dest, nil
}

// Prune removes every snapshot from the backup root. The deployer never
// prunes on its own; snapshots stay until manual recovery tooling asks.
func (m *Manager) Prune() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &Error{Op: "prune", Path: m.dir, Err: err}
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(m.dir, entry.Name())); err != nil {
			return &Error{Op: "prune", Path: entry.Name(), Err: err}
		}
	}

	m.logger.Debug().Int("removed", len(entries)).Str("dir", m.dir).Msg("pruned backups")
	return nil
}

// copyDir recursively copies src to dst. Symlinks and other special files
// are skipped, matching what the installer itself writes.
func copyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, srcInfo.Mode().Perm()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		} else if entry.Type().IsRegular() {
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// copyFile copies a single file preserving its permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
