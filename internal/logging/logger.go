// Package logging supplies a global, structured logger built on the
// standard library's log/slog, adapted from the teacher's slog-based
// wrapper (see DESIGN.md).
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Level aliases slog's levels and extends them with Fatal/Panic, matching
// the teacher's convention of modeling exit-worthy severities as levels
// rather than separate call sites.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelFatal = slog.Level(12)
	LevelPanic = slog.Level(13)
)

const (
	debugLevel = "debug"
	infoLevel  = "info"
	warnLevel  = "warn"
	errorLevel = "error"
	fatalLevel = "fatal"
	panicLevel = "panic"
)

// L wraps *slog.Logger with Fatal/Panic helpers.
type L struct {
	*slog.Logger
}

func newL(logger *slog.Logger) *L {
	return &L{Logger: logger}
}

// FatalExitCode is the process exit status used by Fatal, matching the
// original daemon's exit(255) convention for every setup/fatal error
// (device open, pidfile contention, privilege drop, config validation).
const FatalExitCode = 255

// Fatal logs at LevelFatal and terminates the process.
func (l *L) Fatal(msg string, args ...any) {
	l.Log(context.Background(), LevelFatal, msg, args...)
	osExit(FatalExitCode)
}

// Panic logs at LevelPanic and panics.
func (l *L) Panic(msg string, args ...any) {
	l.Log(context.Background(), LevelPanic, msg, args...)
	panic(msg)
}

// osExit is a var so tests can stub it without invoking os.Exit for real.
var osExit = os.Exit

// LevelFromString parses a level name (case-insensitive), defaulting to
// LevelInfo for anything unrecognized.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case debugLevel:
		return LevelDebug
	case warnLevel:
		return LevelWarn
	case errorLevel:
		return LevelError
	case fatalLevel:
		return LevelFatal
	case panicLevel:
		return LevelPanic
	default:
		return LevelInfo
	}
}
