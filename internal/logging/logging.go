// Package logging provides structured logging using Go's slog package.
package logging

import (
	"log/slog"
	"os"
	"time"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (text format, Warn level); the CLI
	// reconfigures it from flags.
	InitLogger(LevelWarn, FormatText)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatText outputs logs in human-readable text format.
	FormatText Format = iota
	// FormatJSON outputs logs in JSON format.
	FormatJSON
)

// InitLogger initializes the global logger with the specified level and format.
// Logs go to stderr so they never interleave with emitted SQL on stdout.
func InitLogger(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// Domain event helpers for the conversion side channel.

// UnsupportedType logs a column whose declared type could not be mapped.
func UnsupportedType(schema, table, column, declaredType string) {
	defaultLogger.Warn("unsupported_column_type",
		"schema", schema,
		"table", table,
		"column", column,
		"type", declaredType,
	)
}

// DuplicateTable logs a table skipped because its name already appeared in
// another schema.
func DuplicateTable(schema, table, firstSchema string) {
	defaultLogger.Warn("duplicate_table_skipped",
		"schema", schema,
		"table", table,
		"first_schema", firstSchema,
	)
}

// UnresolvedLob logs an external large-object reference that could not be
// read; the affected cell degrades to an empty literal.
func UnresolvedLob(treePath, file string, err error) {
	defaultLogger.Warn("unresolved_lob",
		"tree_path", treePath,
		"file", file,
		"error", err.Error(),
	)
}

// ArchiveIndexed logs a completed member-index scan for an opened archive.
func ArchiveIndexed(path string, entries int) {
	defaultLogger.Info("archive_indexed",
		"path", path,
		"entries", entries,
	)
}
