package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcrosbie/agentforge/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.input), tt.input)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentforge.log")
	log, closer, err := New(config.LogConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("run completed", "run_id", "01H")
	log.Debug("hidden")
	require.NoError(t, closer())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"run completed"`)
	assert.NotContains(t, string(raw), "hidden")
}

func TestNewStderrDefault(t *testing.T) {
	log, closer, err := New(config.LogConfig{})
	require.NoError(t, err)
	require.NotNil(t, log)
	require.NoError(t, closer())
}
