// Package logging configures colored structured logging with tint.
//
// Environment variables:
//
//	LOG_LEVEL: debug, info, warn, error (default: info)
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup configures colored logging at the level specified by LOG_LEVEL env var
// (default: INFO). debug forces DEBUG regardless of the environment.
func Setup(debug bool) {
	level := levelFromEnv()
	if debug {
		level = slog.LevelDebug
	}
	SetupWithLevel(level)
}

// SetupWithLevel configures colored logging at the given level.
func SetupWithLevel(level slog.Level) {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			AddSource:  level == slog.LevelDebug,
		}),
	))
}

// Legacy returns a *log.Logger that writes through the default slog handler
// at level, with prefix prepended to every line. Libraries that only accept
// a Println/Printf logger are pointed at it.
func Legacy(prefix string, level slog.Level) *log.Logger {
	l := slog.NewLogLogger(slog.Default().Handler(), level)
	l.SetPrefix(prefix)
	return l
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
