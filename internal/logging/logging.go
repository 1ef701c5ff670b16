package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Attribute keys shared across packages.
const (
	Error     = "error"
	SessionID = "session_id"
	RoomID    = "room_id"
	PeerID    = "peer_id"
	Event     = "event"
	State     = "state"
)

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewJSON builds the server logger and installs it as the default.
func NewJSON(w io.Writer, level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

// NewText builds the CLI logger and installs it as the default.
func NewText(w io.Writer, level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
