package gpucore

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with gpucore-specific context.
// It is the diagnostics channel for all reported (non-fatal) errors:
// collaborators treat its output as logging, never as control flow.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable diagnostics entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithKind adds a memory kind field to the logger.
func (l *Logger) WithKind(kind string) *Logger {
	return &Logger{
		Logger: l.Logger.With("kind", kind),
	}
}

// WithBytes adds a byte count field to the logger.
func (l *Logger) WithBytes(bytes int64) *Logger {
	return &Logger{
		Logger: l.Logger.With("bytes", bytes),
	}
}

// WithPointer adds a pointer address field to the logger.
func (l *Logger) WithPointer(addr uintptr) *Logger {
	return &Logger{
		Logger: l.Logger.With("ptr", addr),
	}
}
