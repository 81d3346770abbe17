// Package logger constructs the root slog logger for the service.
package logger

import (
	"log/slog"
	"os"
)

// New returns a structured JSON logger. Development mode lowers the level to
// debug and keeps the same format so log pipelines never need two parsers.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "development" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
