package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu  sync.RWMutex
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// Init replaces the default logger with one at the given level ("debug",
// "info", "warn", "error"). Safe to call before any logging happens.
func Init(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	mu.Lock()
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	mu.Unlock()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// normalize lets callers pass a bare error as the only argument
// (logger.Error("Service:Op:Error", err)) as well as slog-style kv pairs.
func normalize(args []any) []any {
	if len(args) == 1 {
		if err, ok := args[0].(error); ok {
			return []any{"error", err}
		}
	}
	return args
}

func Debug(msg string, args ...any) {
	current().Debug(msg, normalize(args)...)
}

func Info(msg string, args ...any) {
	current().Info(msg, normalize(args)...)
}

func Warn(msg string, args ...any) {
	current().Warn(msg, normalize(args)...)
}

func Error(msg string, args ...any) {
	current().Error(msg, normalize(args)...)
}
