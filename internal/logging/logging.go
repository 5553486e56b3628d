// Package logging wires slog to a size-rotated log file plus stdout.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tmsantos/pacsexport/internal/config"
)

// New builds the process logger. Records go to a rotating file at path
// and to stdout (for the scheduler's captured output). The returned
// closer flushes the file writer; close it at process exit.
//
// A failure to prepare the log directory degrades to stdout-only
// logging rather than failing the run.
func New(cfg config.LogConfig, path string) (*slog.Logger, io.Closer) {
	level := parseLevel(cfg.Level)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		logger.Warn("log directory unavailable, logging to stdout only", "path", path, "error", err)
		return logger, nopCloser{}
	}

	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	w := io.MultiWriter(os.Stdout, rotated)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), rotated
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(level string) slog.Level {
	switch level {
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
