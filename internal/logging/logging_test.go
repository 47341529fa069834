package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a config pointing at a temp log file
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")
	cfg := Config{
		Level:         "info",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	// When: logging a message
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("indexing started", "case_id", "smith-v-jones", "files", 3)
	cleanup()

	// Then: the file contains a JSON line with the attributes
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "indexing started", entry["msg"])
	assert.Equal(t, "smith-v-jones", entry["case_id"])
}

func TestSetup_RespectsLevel(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")
	cfg := Config{
		Level:         "warn",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Debug("should not appear")
	logger.Info("should not appear either")
	logger.Warn("should appear")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should not appear")
	assert.Contains(t, string(data), "should appear")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestRotatingWriter_RotatesAtMaxSize(t *testing.T) {
	// Given: a writer with a 1 MB cap
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	// When: writing past the cap
	chunk := strings.Repeat("x", 256*1024)
	for i := 0; i < 6; i++ {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	// Then: a rotated file exists
	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err, "expected rotated file server.log.1")
}

func TestRotatingWriter_KeepsAtMostMaxFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	chunk := strings.Repeat("y", 512*1024)
	for i := 0; i < 12; i++ {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(logPath + ".*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2, "should keep at most maxFiles rotated files")
}

func TestRotatingWriter_OldestLinesRotateFurthest(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	pad := strings.Repeat("z", 1024*1024)
	_, err = w.Write([]byte("first " + pad))
	require.NoError(t, err)
	_, err = w.Write([]byte("second " + pad))
	require.NoError(t, err)
	_, err = w.Write([]byte("third"))
	require.NoError(t, err)

	one, err := os.ReadFile(logPath + ".1")
	require.NoError(t, err)
	two, err := os.ReadFile(logPath + ".2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(two), "first"))
	assert.True(t, strings.HasPrefix(string(one), "second"))
}
