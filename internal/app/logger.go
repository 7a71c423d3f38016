package app

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// newLogger builds the App's own logger. The global logger is left alone so
// several Apps can run in one process, as the tests do.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(levelStr))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug && formatStr == "json",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Durations read better as "1.5s" than as nanoseconds.
			if a.Value.Kind() == slog.KindDuration {
				return slog.String(a.Key, a.Value.Duration().Round(time.Millisecond).String())
			}
			return a
		},
	}

	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
