// Package logging builds the zerolog logger the rest of the tool receives
// as an injected value. Components never reach for a global logger.
package logging

import (
	"io"
	"log/syslog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects the log sinks and verbosity for one invocation.
type Options struct {
	Level  string // DEBUG, INFO, WARNING, ERROR
	File   string // append target, empty disables
	Syslog bool   // also write to the local syslog daemon when reachable
}

// New constructs a logger writing human-readable output to stderr plus the
// optional file and syslog sinks. Sink setup failures are reported on the
// returned logger rather than aborting the run; log sinks are best-effort.
func New(opts Options) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	writers := []io.Writer{console}

	var sinkErrs []string

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err == nil {
			f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				writers = append(writers, f)
			} else {
				sinkErrs = append(sinkErrs, err.Error())
			}
		} else {
			sinkErrs = append(sinkErrs, err.Error())
		}
	}

	if opts.Syslog {
		if sw, err := syslog.New(syslog.LOG_INFO|syslog.LOG_USER, "vsixgate"); err == nil {
			writers = append(writers, zerolog.SyslogLevelWriter(sw))
		} else {
			sinkErrs = append(sinkErrs, err.Error())
		}
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger().
		Level(parseLevel(opts.Level))

	for _, e := range sinkErrs {
		logger.Warn().Str("error", e).Msg("log sink unavailable")
	}

	return logger
}

// parseLevel maps the config/CLI level names onto zerolog levels.
// WARNING is accepted alongside WARN.
func parseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARNING", "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
