// Package integrity recomputes payload checksums against manifest
// declarations with a configurable strictness level.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the verification strictness.
type Level int

const (
	// LevelNone skips hashing entirely.
	LevelNone Level = iota
	// LevelWarn hashes and logs mismatches but lets the run continue.
	LevelWarn
	// LevelError hashes and fails the action on mismatch.
	LevelError
)

// ParseLevel maps the NONE/WARN/ERROR flag values onto a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case "", "NONE":
		return LevelNone, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelNone, fmt.Errorf("unknown integrity level %q (want NONE, WARN, or ERROR)", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "NONE"
	}
}

// Result of a single check.
type Result int

const (
	Pass Result = iota
	Warn
)

// Error reports a checksum mismatch at LevelError. It fails only the
// action for the affected extension, never the whole run.
type Error struct {
	Path     string
	Declared string
	Actual   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("integrity: %s: declared sha256 %s, computed %s", e.Path, e.Declared, e.Actual)
}

// Check hashes the file at path and compares it to the declared checksum.
// LevelNone returns Pass without touching the file.
func Check(path, declared string, level Level, logger zerolog.Logger) (Result, error) {
	if level == LevelNone {
		return Pass, nil
	}

	actual, err := FileSHA256(path)
	if err != nil {
		return Pass, fmt.Errorf("hashing %s: %w", path, err)
	}

	if actual == strings.ToLower(declared) {
		return Pass, nil
	}

	if level == LevelWarn {
		logger.Warn().
			Str("path", path).
			Str("declared", declared).
			Str("computed", actual).
			Msg("checksum mismatch")
		return Warn, nil
	}

	return Pass, &Error{Path: path, Declared: declared, Actual: actual}
}

// FileSHA256 returns the lowercase hex SHA-256 of a file's contents. The
// packaging half uses it when writing manifest entries.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
