package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup builds the process logger and installs it as the slog default.
// format is "text" (with source locations) or "json"; level is one of
// debug, info, warn, error and falls back to info. Logs go to stderr so
// they stay out of the chat transcript.
func Setup(format, level string) *slog.Logger {
	return SetupWriter(os.Stderr, format, level)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, format, level string) *slog.Logger {
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: ParseLevel(level),
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     ParseLevel(level),
			AddSource: true,
		})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

// Convenience functions
func Info(format string, v ...interface{}) {
	slog.Info(fmt.Sprintf(format, v...))
}

func Warn(format string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...))
}

func Debug(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...))
}

func Fatal(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}
