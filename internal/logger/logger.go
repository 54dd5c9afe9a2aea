package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the daemon's own log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Options configures the daemon logger. When Dir is set, a rotating
// watchdog.log is written there in addition to colored terminal output.
type Options struct {
	Level string // debug, info, warn, error
	Dir   string // directory for the rotating log file; empty = terminal only
}

// New builds the daemon's slog.Logger: a colored text handler on stderr,
// optionally teed into a lumberjack-rotated file.
func New(opts Options) *slog.Logger {
	level := parseLevel(opts.Level)
	var w io.Writer = os.Stderr
	if opts.Dir != "" {
		file := &lj.Logger{
			Filename:   filepath.Join(opts.Dir, "watchdog.log"),
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAge:     DefaultMaxAgeDays,
		}
		w = io.MultiWriter(os.Stderr, file)
	}
	h := NewColorTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
