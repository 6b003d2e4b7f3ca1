// Package pathguard validates that the directories a run will write to
// exist and are writable before any action executes.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Ensure prepares each path for writing. A path with a file-like suffix
// (e.g. *.log, *.zip) gets its parent directory created and checked;
// anything else is treated as a directory itself.
func Ensure(paths ...string) error {
	for _, raw := range paths {
		if raw == "" {
			continue
		}

		dir := raw
		if looksLikeFile(raw) {
			dir = filepath.Dir(raw)
		}

		if err := ensureWritableDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// looksLikeFile reports whether the path names a file rather than a
// directory: an existing regular file, or a nonexistent path with a suffix.
func looksLikeFile(p string) bool {
	if info, err := os.Stat(p); err == nil {
		return !info.IsDir()
	}
	return filepath.Ext(p) != ""
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("directory is not writable: %s", dir)
	}
	return nil
}
