package reviewdb

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/reviewdb/model"
)

// Logger wraps slog.Logger with reviewdb-specific context.
// This provides structured logging with consistent field names.
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
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000), // Unreachable level
		})),
	}
}

// WithDir adds the data directory to the logger.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dir", dir),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, ord model.Ordinal, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"ordinal", uint64(ord),
		)
	}
}

// LogBatchInsert logs a batch insert operation.
func (l *Logger) LogBatchInsert(ctx context.Context, count, written int, err error) {
	if err != nil {
		l.WarnContext(ctx, "batch insert stopped",
			"total", count,
			"written", written,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "batch insert completed",
			"count", count,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogSkipped logs a metadata line that could not be decoded.
func (l *Logger) LogSkipped(ctx context.Context, ord model.Ordinal, err error) {
	l.WarnContext(ctx, "skipping malformed record",
		"ordinal", uint64(ord),
		"error", err,
	)
}

// LogRecovery logs what Open had to repair.
func (l *Logger) LogRecovery(ctx context.Context, file string, droppedBytes int64, reason string) {
	l.WarnContext(ctx, "recovered damaged log tail",
		"file", file,
		"dropped_bytes", droppedBytes,
		"reason", reason,
	)
}

// LogRealign logs records dropped to bring both logs to the same length.
func (l *Logger) LogRealign(ctx context.Context, vectors, records, count uint64) {
	l.WarnContext(ctx, "realigned logs after incomplete write",
		"vectors", vectors,
		"records", records,
		"count", count,
	)
}

// LogBackup logs a backup operation.
func (l *Logger) LogBackup(ctx context.Context, id string, count uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "backup completed",
			"id", id,
			"count", count,
		)
	}
}
