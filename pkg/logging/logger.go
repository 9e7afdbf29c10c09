// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// File log rotation.
const (
	// FileMaxSizeMB rotates the log file once it reaches this size.
	FileMaxSizeMB = 1

	// FileMaxBackups is the number of rotated files kept.
	FileMaxBackups = 10
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// File is the path of an additional rotating, compressed JSON log file
	// (empty disables it).
	File string

	// FileLevel is the minimum level written to File (default: Level).
	FileLevel LogLevel
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// ConfigFor derives the logger configuration from the run mode. Dev mode logs
// to a readable console at debug; otherwise JSON lines at the requested level
// (info when empty). The file log, when set, is debug in dev mode and info
// otherwise.
func ConfigFor(devMode bool, level, file string) Config {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	cfg.File = file
	cfg.FileLevel = LevelInfo
	if devMode {
		cfg.Pretty = true
		cfg.FileLevel = LevelDebug
		if level == "" {
			cfg.Level = LevelDebug
		}
	}
	return cfg
}

var (
	fileMu  sync.Mutex
	fileLog *lumberjack.Logger
)

// Setup configures the global zerolog logger. A previously opened log file is
// closed first.
func Setup(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.DateTime}
	}

	level := parseLevel(cfg.Level)
	fileMu.Lock()
	if fileLog != nil {
		_ = fileLog.Close()
		fileLog = nil
	}
	if cfg.File != "" {
		fileLevel := level
		if cfg.FileLevel != "" {
			fileLevel = parseLevel(cfg.FileLevel)
		}
		fileLog = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    FileMaxSizeMB,
			MaxBackups: FileMaxBackups,
			Compress:   true,
		}
		output = zerolog.MultiLevelWriter(
			&zerolog.FilteredLevelWriter{Writer: zerolog.LevelWriterAdapter{Writer: output}, Level: level},
			&zerolog.FilteredLevelWriter{Writer: zerolog.LevelWriterAdapter{Writer: fileLog}, Level: fileLevel},
		)
		level = min(level, fileLevel)
	}
	fileMu.Unlock()

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// Close flushes and closes the log file opened by Setup, if any.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()
	if fileLog == nil {
		return nil
	}
	err := fileLog.Close()
	fileLog = nil
	return err
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: internals
//   - Worker start/stop, cache hits and misses
//
// Info: normal run events
//   - Discovery result (total records, pages)
//   - Successful page requests (cached flag set for cache hits)
//   - Accepted records (page, record index)
//   - Batch summary (requests/sec, records/sec)
//
// Warn: data loss that does not stop the run
//   - Failed page requests (FetchError)
//   - Rejected records with their missing fields
//   - Records the sink skipped (page, index, column)
//   - Cache or report store errors
//
// Error: the run cannot continue or cannot be saved
//   - Discovery failure
//   - Sink failure
//   - Configuration errors
//
// Context Fields:
//   - collection: users, tracks or listen_history
//   - page: 0-based page index
//   - status: HTTP status code
//   - elapsed: request duration
//   - records: records in a page
//   - missing_fields: required fields absent from a rejected record
//   - run_id, version_id: run identity
