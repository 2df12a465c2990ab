package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// Configure installs a text handler as the default slog logger and sets its
// level from name ("debug", "info", "warn", "error"). Unknown names mean info.
func Configure(name string) *slog.Logger {
	return ConfigureWriter(os.Stdout, name)
}

func ConfigureWriter(w io.Writer, name string) *slog.Logger {
	SetLevel(ParseLevel(name))

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func SetLevel(l slog.Level) {
	level.Set(l)
}

func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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
