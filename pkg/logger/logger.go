package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	slog *slog.Logger
}

// New builds a logger from LOG_FORMAT (text|json) and LOG_LEVEL
// (debug|info|warn|error). Text output is the default.
func New() *Logger {
	return NewWithWriter(os.Stdout, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
}

func NewWithWriter(w io.Writer, format, level string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{slog: slog.New(handler)}
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

// With returns a child logger that attaches args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) Info(format string, v ...any) {
	l.slog.Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Warn(format string, v ...any) {
	l.slog.Warn(fmt.Sprintf(format, v...))
}

func (l *Logger) Error(format string, v ...any) {
	l.slog.Error(fmt.Sprintf(format, v...))
}

func (l *Logger) Debug(format string, v ...any) {
	l.slog.Debug(fmt.Sprintf(format, v...))
}

func (l *Logger) Fatal(format string, v ...any) {
	l.slog.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Global logger instance
var GlobalLogger = New()

// Convenience functions
func With(args ...any) *Logger {
	return GlobalLogger.With(args...)
}

func Info(format string, v ...any) {
	GlobalLogger.Info(format, v...)
}

func Warn(format string, v ...any) {
	GlobalLogger.Warn(format, v...)
}

func Error(format string, v ...any) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...any) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...any) {
	GlobalLogger.Fatal(format, v...)
}
