package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: \"8080\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 30, cfg.Pipeline.WindowSize)
	assert.Equal(t, 15, cfg.Pipeline.StepSize)
	assert.Equal(t, 15.0, cfg.Pipeline.SamplingRate)
	assert.Equal(t, 2.0, cfg.Pipeline.Cutoff)
	assert.Equal(t, 2, cfg.Pipeline.FilterOrder)
	assert.Equal(t, 0.2, cfg.Training.TestFraction)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 100, cfg.Training.Trees)
	assert.Equal(t, 5*time.Second, cfg.Stream.Timeout)
	assert.Equal(t, "http", cfg.Stream.Delivery)
}

func TestLoadConfig_ExpandsEnvironment(t *testing.T) {
	t.Setenv("DRINK_DEVICE", "AA:BB:CC:DD:EE:FF")
	cfg, err := LoadConfig(writeConfig(t, "stream:\n  device_id: ${DRINK_DEVICE}\n  timeout: 2s\n"))
	require.NoError(t, err)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Stream.DeviceID)
	assert.Equal(t, "wearable/AA:BB:CC:DD:EE:FF/imu", cfg.Stream.Topic())
	assert.Equal(t, 2*time.Second, cfg.Stream.Timeout)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadConfig_RejectsCutoffAboveNyquist(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "pipeline:\n  sampling_rate: 10\n  cutoff: 6\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.cutoff")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.StepSize = -1
	cfg.Training.TestFraction = 1.5
	cfg.Stream.Delivery = "carrier-pigeon"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step_size")
	assert.Contains(t, err.Error(), "test_fraction")
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
