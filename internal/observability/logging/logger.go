package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger writes JSON to stdout and, when file is set, the same records
// to file.
func NewLogger(stdout, file io.Writer, service, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	handler := slog.Handler(slog.NewJSONHandler(stdout, opts))
	if file != nil {
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(file, opts))
	}
	return slog.New(handler).With("service", service)
}

// Setup opens logFile for appending when set. The returned close function
// is always safe to call.
func Setup(service, level, logFile string) (*slog.Logger, func() error) {
	return SetupConsole(os.Stdout, service, level, logFile)
}

// SetupConsole is Setup with the console stream chosen by the caller, for
// processes whose stdout carries a protocol.
func SetupConsole(console io.Writer, service, level, logFile string) (*slog.Logger, func() error) {
	if strings.TrimSpace(logFile) == "" {
		return NewLogger(console, nil, service, level), func() error { return nil }
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := NewLogger(console, nil, service, level)
		logger.Error("log_file_open_failed", "file", logFile, "error", err)
		return logger, func() error { return nil }
	}
	return NewLogger(console, file, service, level), file.Close
}

func parseLevel(level string) slog.Level {
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
