package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GRPC_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:50051", cfg.GRPCAddr)
	assert.Equal(t, "none", cfg.JournalDriver)
	assert.Equal(t, 64, cfg.Engine.SubscriberBuffer)
	assert.Equal(t, 30*time.Second, cfg.Engine.SampleInterval)
	assert.Equal(t, time.Second, cfg.Engine.StepLatencyMin)
	assert.Equal(t, 3*time.Second, cfg.Engine.StepLatencyMax)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentforge.yaml")
	body := `
http_addr: 0.0.0.0:9090
journal_driver: file
log:
  level: debug
  format: json
engine:
  step_latency_min: 10ms
  step_latency_max: 20ms
  admission_rps: 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", "127.0.0.1:7070")
	t.Setenv("ADMISSION_BURST", "3")
	t.Setenv("STEP_LATENCY_MAX", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7070", cfg.HTTPAddr)
	assert.Equal(t, "file", cfg.JournalDriver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10*time.Millisecond, cfg.Engine.StepLatencyMin)
	assert.Equal(t, 20*time.Millisecond, cfg.Engine.StepLatencyMax)
	assert.Equal(t, 5.0, cfg.Engine.AdmissionRPS)
	assert.Equal(t, 3, cfg.Engine.AdmissionBurst)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JOURNAL_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidateLatencyRange(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.StepLatencyMin = 2 * time.Second
	cfg.Engine.StepLatencyMax = time.Second
	require.Error(t, cfg.Validate())

	cfg.Engine.StepLatencyMin = 0
	cfg.Engine.StepLatencyMax = 0
	require.NoError(t, cfg.Validate())
}
