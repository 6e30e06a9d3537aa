// Package logger builds the process logger for each environment.
package logger

import (
	"io"
	"log/slog"
)

// Environments accepted by Setup.
const (
	EnvLocal = "local"
	EnvDebug = "debug"
	EnvProd  = "prod"
)

// Setup returns a logger for env: colored human output locally, JSON otherwise.
// Unknown environments get prod settings.
func Setup(env string, w io.Writer, verbose bool) *slog.Logger {
	switch env {
	case EnvLocal:
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		return slog.New(NewPrettyHandler(w, &slog.HandlerOptions{Level: level}))
	case EnvDebug:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
}
