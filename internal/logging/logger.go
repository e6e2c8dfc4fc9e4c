package logging

import (
	"log/slog"
	"os"

	"gorm.io/gorm"
)

// Setup initializes the global slog logger with JSON output to stdout.
func Setup() {
	slog.SetDefault(slog.New(stdoutHandler()))
}

// AttachDatabase keeps stdout logging and additionally persists ERROR+
// records to system_logs. Stop the returned handler on shutdown.
func AttachDatabase(db *gorm.DB) *PGHandler {
	pg := NewPGHandler(db)
	slog.SetDefault(slog.New(NewMultiHandler(stdoutHandler(), pg)))
	return pg
}

func stdoutHandler() slog.Handler {
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
}
