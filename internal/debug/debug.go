// Package debug provides verbose output switches and the process logger.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	enabled     = os.Getenv("PLOTSYNC_DEBUG") != ""
	verboseMode = false
	quietMode   = false

	logMu   sync.Mutex
	logger  *slog.Logger
	logDest io.Writer = os.Stderr
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
	resetLogger()
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
	resetLogger()
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}

// Logger returns the process-wide structured logger. Its level follows the
// verbose and quiet switches: debug when verbose, warn when quiet.
func Logger() *slog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(logDest, &slog.HandlerOptions{Level: level()}))
	}
	return logger
}

// SetOutput redirects the structured logger. Tests use io.Discard.
func SetOutput(w io.Writer) {
	logMu.Lock()
	logDest = w
	logger = nil
	logMu.Unlock()
}

func level() slog.Level {
	switch {
	case enabled || verboseMode:
		return slog.LevelDebug
	case quietMode:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func resetLogger() {
	logMu.Lock()
	logger = nil
	logMu.Unlock()
}
