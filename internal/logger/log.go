package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"my-page/internal/config"

	"gopkg.in/lumberjack.v2"
)

// Init installs the default slog logger. The returned closer releases the
// rotating log file, if one was configured.
func Init(cfg config.LogConfig) io.Closer {
	level := parseLevel(cfg.Level)

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	if cfg.Console {
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		}
		writers = append(writers, lj)
		closer = lj
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	h := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
	Info("logger.init", "level", cfg.Level, "file", cfg.File)
	return closer
}

// Silence routes the default logger to io.Discard. Used by tests and by the
// dashboard CLI when its output is meant for a terminal.
func Silence() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }
func Debug(msg string, args ...any) { slog.Debug(msg, args...) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
