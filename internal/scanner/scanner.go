// Package scanner inspects a VS Code-style extensions directory and
// produces an immutable snapshot of what is installed. The snapshot is
// taken once per run and handed through the pipeline; nothing re-scans
// mid-run.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vsixgate/vsixgate/internal/extension"
)

// Installed is one extension resident in the target directory.
type Installed struct {
	Ref  extension.Ref
	Path string // absolute install path
}

// State is the snapshot of a target directory. ByID holds the resident
// version per extension id; when the directory carries several
// version-suffixed directories for one id, the highest version wins and
// the rest land in Orphans.
type State struct {
	ByID    map[string]Installed
	Orphans []Installed
}

// Error reports an unreachable target directory. It is fatal.
type Error struct {
	Dir string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scanning %s: %v", e.Dir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Scan enumerates targetDir and returns the installed-state snapshot.
// The directory is created when absent; Scan performs no other mutation.
func Scan(targetDir string, logger zerolog.Logger) (*State, error) {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, &Error{Dir: targetDir, Err: err}
	}

	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return nil, &Error{Dir: targetDir, Err: err}
	}

	state := &State{ByID: make(map[string]Installed)}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		ref, ok := extension.ParseDirName(entry.Name())
		if !ok {
			logger.Debug().Str("dir", entry.Name()).Msg("skipping unrecognized directory")
			continue
		}

		inst := Installed{Ref: ref, Path: filepath.Join(targetDir, entry.Name())}

		resident, exists := state.ByID[ref.ID()]
		if !exists {
			state.ByID[ref.ID()] = inst
			continue
		}

		// Highest version stays resident, the loser is an orphan.
		if extension.CompareVersions(ref.Version, resident.Ref.Version) > 0 {
			state.ByID[ref.ID()] = inst
			inst = resident
		}
		state.Orphans = append(state.Orphans, inst)
		logger.Warn().
			Str("extension", inst.Ref.ID()).
			Str("version", inst.Ref.Version).
			Msg("orphaned duplicate version in target directory")
	}

	logger.Debug().
		Int("installed", len(state.ByID)).
		Int("orphans", len(state.Orphans)).
		Str("target", targetDir).
		Msg("scanned target directory")

	return state, nil
}
