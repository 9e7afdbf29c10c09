package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo || cfg.Pretty {
		t.Errorf("DefaultConfig() = %+v, want info JSON", cfg)
	}
	if cfg.Output == nil {
		t.Error("DefaultConfig().Output should not be nil")
	}
}

func TestConfigFor(t *testing.T) {
	tests := []struct {
		name          string
		devMode       bool
		level         string
		wantLevel     LogLevel
		wantPretty    bool
		wantFileLevel LogLevel
	}{
		{"production default", false, "", LevelInfo, false, LevelInfo},
		{"production explicit", false, "WARN", LevelWarn, false, LevelInfo},
		{"dev default", true, "", LevelDebug, true, LevelDebug},
		{"dev explicit level", true, "error", LevelError, true, LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ConfigFor(tt.devMode, tt.level, "ingest.log")
			if cfg.Level != tt.wantLevel {
				t.Errorf("Level = %s, want %s", cfg.Level, tt.wantLevel)
			}
			if cfg.Pretty != tt.wantPretty {
				t.Errorf("Pretty = %v, want %v", cfg.Pretty, tt.wantPretty)
			}
			if cfg.File != "ingest.log" || cfg.FileLevel != tt.wantFileLevel {
				t.Errorf("File/FileLevel = %q/%s, want ingest.log/%s", cfg.File, cfg.FileLevel, tt.wantFileLevel)
			}
		})
	}
}

func TestSetup_JSONLines(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Output: buf})

	logger.Info().Int("page", 2).Int("records", 100).Msg("Page fetched")
	logger.Warn().Strs("missing_fields", []string{"id"}).Msg("Record rejected")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["page"] != float64(2) || entry["message"] != "Page fetched" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry should carry a timestamp")
	}
}

func TestSetup_PrettyOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger.Info().Str("collection", "users").Msg("batch complete")

	output := buf.String()
	if strings.HasPrefix(output, "{") {
		t.Errorf("Expected console output, got JSON: %q", output)
	}
	if !strings.Contains(output, "batch complete") || !strings.Contains(output, "collection=") {
		t.Errorf("Expected message and field in output, got %q", output)
	}
}

func TestSetup_DevModeLogsDebugDetail(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := ConfigFor(true, "", "")
	cfg.Pretty = false
	cfg.Output = buf
	Setup(cfg)

	devLogger := NewLogger("source-client")
	devLogger.Debug().Str("key", "dataflux:/users:page=1:size=100").Msg("Page cache hit")
	if !strings.Contains(buf.String(), "Page cache hit") {
		t.Errorf("dev mode should log debug lines, got %q", buf.String())
	}

	buf.Reset()
	cfg = ConfigFor(false, "", "")
	cfg.Output = buf
	Setup(cfg)

	prodLogger := NewLogger("source-client")
	prodLogger.Debug().Msg("Page cache hit")
	if buf.Len() != 0 {
		t.Errorf("production mode should drop debug lines, got %q", buf.String())
	}
}

func TestSetup_FileLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ingest.log")
	console := &bytes.Buffer{}

	Setup(Config{Level: LevelWarn, Output: console, File: path, FileLevel: LevelDebug})
	t.Cleanup(func() {
		_ = Close()
		Setup(DefaultConfig())
	})

	logger := NewLogger("batch-fetcher")
	logger.Debug().Int("worker_id", 3).Msg("Worker completed")
	logger.Warn().Int("page", 1).Msg("Page fetch failed")

	if err := Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("file has %d lines, want 2: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("file line is not JSON: %v", err)
	}
	if entry["level"] != "debug" || entry["component"] != "batch-fetcher" {
		t.Errorf("first file line = %v", entry)
	}

	// The console keeps its own level.
	if strings.Contains(console.String(), "Worker completed") {
		t.Error("debug line should not reach the warn-level console")
	}
	if !strings.Contains(console.String(), "Page fetch failed") {
		t.Errorf("console lacks warn line: %q", console.String())
	}
}

func TestClose_WithoutFile(t *testing.T) {
	Setup(Config{Level: LevelInfo, Output: &bytes.Buffer{}})
	if err := Close(); err != nil {
		t.Errorf("Close() without a file = %v, want nil", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("batch-fetcher")
	logger.Info().Msg("Starting batch fetch")
	logger.Warn().Int("page", 1).Msg("Page fetch failed")

	output := buf.String()
	if strings.Contains(output, "Starting batch fetch") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(output, `"component":"batch-fetcher"`) || !strings.Contains(output, "Page fetch failed") {
		t.Errorf("Expected component field and warn line, got %q", output)
	}
}
