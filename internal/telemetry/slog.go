package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger configures the global slog default logger from the logging
// section of the application configuration.
//
// format: "json" selects a JSONHandler (machine readable; recommended for
// production); anything else selects a TextHandler for local development.
//
// level: "debug", "info", "warn"/"warning", "error" (case-insensitive);
// unrecognised values default to "info".
//
// The configured logger is installed as the process default so slog.Info /
// slog.Warn / slog.Error calls everywhere in the application use it without
// carrying a *slog.Logger through every constructor. The audit pipeline in
// particular relies on this: its failure policy is "log loudly, never
// propagate", and those logs must land on the configured handler.
func SetupLogger(format, level string) {
	lvl := parseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug, // include file:line only when debugging
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", lvl.String())
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
