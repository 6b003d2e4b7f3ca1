// Package deploy applies a reconciliation plan to the target extensions
// directory. Execution is sequential by design: actions mutate a shared
// directory and backup-before-mutate ordering is a correctness
// requirement. One action's failure never blocks independent actions
// (skip_failed); the report carries every outcome for the caller.
package deploy

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vsixgate/vsixgate/internal/backup"
	"github.com/vsixgate/vsixgate/internal/integrity"
	"github.com/vsixgate/vsixgate/internal/manifest"
	"github.com/vsixgate/vsixgate/internal/plan"
)

// payloadPrefix is the directory inside a .vsix that holds the extension
// files proper.
const payloadPrefix = "extension/"

// stagingDir is the dot-directory inside the target that holds staged
// payloads. Staging on the target filesystem keeps commit's rename atomic;
// a temp dir elsewhere (tmpfs, another mount) would make the rename fail
// with a cross-device error. The scanner ignores dot-directories.
const stagingDir = ".staging"

// ExtractionError reports a failed payload extraction for one action.
type ExtractionError struct {
	Member string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Member, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Engine applies plans against one target directory.
type Engine struct {
	archivePath string
	target      string
	temp        string
	backups     *backup.Manager
	level       integrity.Level
	logger      zerolog.Logger
}

// NewEngine builds an Engine. The archive at archivePath must already be
// fetched and its manifest parsed; the engine never goes to the network.
func NewEngine(archivePath, targetDir, tempDir string, backups *backup.Manager, level integrity.Level, logger zerolog.Logger) *Engine {
	return &Engine{
		archivePath: archivePath,
		target:      targetDir,
		temp:        tempDir,
		backups:     backups,
		level:       level,
		logger:      logger,
	}
}

// Apply executes the plan in order and returns the report. With dryRun
// set, every action is checked for feasibility but nothing on disk moves;
// the process-level contract is that a dry run always exits zero.
func (e *Engine) Apply(p *plan.Plan, dryRun bool) *Report {
	report := &Report{DryRun: dryRun}

	archive, err := zip.OpenReader(e.archivePath)
	if err != nil {
		// Without a readable archive no install can proceed, but the
		// report still lists every action rather than aborting opaquely.
		openErr := fmt.Errorf("opening archive %s: %w", e.archivePath, err)
		for _, action := range p.Actions {
			report.append(Result{Action: action, Status: StatusFailed, Err: openErr})
		}
		return report
	}
	defer archive.Close()

	for _, action := range p.Actions {
		result := e.applyOne(&archive.Reader, action, dryRun)
		report.append(result)

		evt := e.logger.Info()
		if result.Err != nil {
			evt = e.logger.Error().Err(result.Err)
		}
		evt.Str("action", action.String()).Str("status", result.Status.String()).Msg("action evaluated")
	}

	return report
}

// applyOne executes a single action and never lets its error escape past
// the result record.
func (e *Engine) applyOne(archive *zip.Reader, action plan.Action, dryRun bool) Result {
	if dryRun {
		return e.rehearse(archive, action)
	}

	switch action.Op {
	case plan.OpSkip:
		return Result{Action: action, Status: StatusApplied}

	case plan.OpInstall:
		if err := e.install(archive, action.Entry); err != nil {
			return Result{Action: action, Status: StatusFailed, Err: err}
		}
		return Result{Action: action, Status: StatusApplied}

	case plan.OpReplace:
		backupPath, err := e.backups.Snapshot(action.Installed)
		if err != nil {
			return Result{Action: action, Status: StatusFailed, Err: err}
		}
		// Stage and verify the replacement before the old version goes
		// away, so an extraction failure leaves the target untouched.
		stage, err := e.stage(archive, action.Entry)
		if err != nil {
			return Result{Action: action, Status: StatusFailed, Err: err, BackupPath: backupPath}
		}
		if err := os.RemoveAll(action.Installed.Path); err != nil {
			os.RemoveAll(stage)
			os.Remove(filepath.Join(e.target, stagingDir))
			return Result{Action: action, Status: StatusFailed, Err: err, BackupPath: backupPath}
		}
		if err := e.commit(stage, action.Entry); err != nil {
			return Result{Action: action, Status: StatusFailed, Err: err, BackupPath: backupPath}
		}
		return Result{Action: action, Status: StatusApplied, BackupPath: backupPath}

	case plan.OpRemove:
		backupPath, err := e.backups.Snapshot(action.Installed)
		if err != nil {
			return Result{Action: action, Status: StatusFailed, Err: err}
		}
		if err := os.RemoveAll(action.Installed.Path); err != nil {
			return Result{Action: action, Status: StatusFailed, Err: err, BackupPath: backupPath}
		}
		return Result{Action: action, Status: StatusApplied, BackupPath: backupPath}

	default:
		return Result{Action: action, Status: StatusFailed, Err: fmt.Errorf("unhandled action %v", action.Op)}
	}
}

// rehearse evaluates an action's feasibility without mutating anything.
// Problems are recorded on the result but the status stays SkippedDryRun.
func (e *Engine) rehearse(archive *zip.Reader, action plan.Action) Result {
	result := Result{Action: action, Status: StatusSkippedDryRun}

	switch action.Op {
	case plan.OpInstall, plan.OpReplace:
		member, err := findMember(archive, action.Entry.Path)
		if err != nil {
			result.Err = err
			return result
		}
		if e.level != integrity.LevelNone {
			actual, err := memberSHA256(member)
			if err != nil {
				result.Err = &ExtractionError{Member: action.Entry.Path, Err: err}
				return result
			}
			if actual != action.Entry.SHA256 {
				// A live run only fails the action at LevelError; the
				// rehearsal mirrors that and warns otherwise.
				if e.level == integrity.LevelError {
					result.Err = &integrity.Error{
						Path:     action.Entry.Path,
						Declared: action.Entry.SHA256,
						Actual:   actual,
					}
				} else {
					e.logger.Warn().
						Str("path", action.Entry.Path).
						Str("declared", action.Entry.SHA256).
						Str("computed", actual).
						Msg("checksum mismatch")
				}
			}
		}
	case plan.OpRemove:
		if _, err := os.Stat(action.Installed.Path); err != nil {
			result.Err = fmt.Errorf("resident path unreachable: %w", err)
		}
	}

	return result
}

// install stages the payload and commits it under the target directory.
func (e *Engine) install(archive *zip.Reader, entry manifest.Entry) error {
	stage, err := e.stage(archive, entry)
	if err != nil {
		return err
	}
	return e.commit(stage, entry)
}

// stage extracts and verifies one entry's payload into a fresh directory
// under the target's staging area. On any failure the stage directory is
// removed, so no files are ever left partially written.
func (e *Engine) stage(archive *zip.Reader, entry manifest.Entry) (string, error) {
	member, err := findMember(archive, entry.Path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.temp, 0755); err != nil {
		return "", &ExtractionError{Member: entry.Path, Err: err}
	}

	// Copy the .vsix out of the archive so it can be hashed and reopened
	// as a zip in its own right.
	vsixFile, err := os.CreateTemp(e.temp, entry.Ref.DirName()+"-*.vsix")
	if err != nil {
		return "", &ExtractionError{Member: entry.Path, Err: err}
	}
	vsixPath := vsixFile.Name()
	defer os.Remove(vsixPath)

	src, err := member.Open()
	if err != nil {
		vsixFile.Close()
		return "", &ExtractionError{Member: entry.Path, Err: err}
	}
	_, copyErr := io.Copy(vsixFile, src)
	src.Close()
	if closeErr := vsixFile.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return "", &ExtractionError{Member: entry.Path, Err: copyErr}
	}

	if _, err := integrity.Check(vsixPath, entry.SHA256, e.level, e.logger); err != nil {
		return "", err
	}

	stageRoot := filepath.Join(e.target, stagingDir)
	if err := os.MkdirAll(stageRoot, 0755); err != nil {
		return "", &ExtractionError{Member: entry.Path, Err: err}
	}

	stage, err := os.MkdirTemp(stageRoot, entry.Ref.DirName()+"-*")
	if err != nil {
		return "", &ExtractionError{Member: entry.Path, Err: err}
	}

	if err := extractVsix(vsixPath, stage); err != nil {
		os.RemoveAll(stage)
		os.Remove(stageRoot)
		return "", &ExtractionError{Member: entry.Path, Err: err}
	}

	return stage, nil
}

// commit atomically renames a staged payload into its final directory.
// The stage and destination share a filesystem, so the rename never
// degrades into a cross-device copy.
func (e *Engine) commit(stage string, entry manifest.Entry) error {
	dest := filepath.Join(e.target, entry.Ref.DirName())
	err := os.Rename(stage, dest)
	if err != nil {
		os.RemoveAll(stage)
	}
	// Drop the staging area once it is empty again.
	os.Remove(filepath.Join(e.target, stagingDir))
	if err != nil {
		return &ExtractionError{Member: entry.Path, Err: err}
	}
	e.logger.Debug().Str("extension", entry.Ref.String()).Str("path", dest).Msg("installed extension")
	return nil
}

// extractVsix unpacks the extension/ payload of a .vsix into destDir.
func extractVsix(vsixPath, destDir string) error {
	r, err := zip.OpenReader(vsixPath)
	if err != nil {
		return fmt.Errorf("opening vsix: %w", err)
	}
	defer r.Close()

	extracted := 0
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, payloadPrefix) || f.Name == payloadPrefix {
			continue
		}

		rel := strings.TrimPrefix(f.Name, payloadPrefix)
		dest, err := securePath(destDir, rel)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0600)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		if closeErr := out.Close(); copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			return copyErr
		}
		extracted++
	}

	if extracted == 0 {
		return fmt.Errorf("no %s payload in vsix", payloadPrefix)
	}
	return nil
}

// securePath joins rel under root and rejects zip-slip escapes.
func securePath(root, rel string) (string, error) {
	dest := filepath.Join(root, filepath.FromSlash(rel))
	if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("member %q escapes extraction root", rel)
	}
	return dest, nil
}

// findMember locates a manifest-declared path in the archive.
func findMember(archive *zip.Reader, name string) (*zip.File, error) {
	for _, f := range archive.File {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, &ExtractionError{Member: name, Err: fmt.Errorf("not present in archive")}
}

// memberSHA256 hashes an archive member without extracting it.
func memberSHA256(member *zip.File) (string, error) {
	rc, err := member.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
