package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "claude-code", cfg.Agent.Type)
	assert.Equal(t, "claude", cfg.Agent.Binary)
	assert.Equal(t, 2*time.Minute, cfg.Agent.DecisionTimeout)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 6, cfg.Detector.Window)
	assert.Equal(t, 4, cfg.Runner.MaxConcurrentLoops)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Database.Path)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/exeflow/exeflow.db
agent:
  model: sonnet
  max_turns: 12
detector:
  window: 8
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/exeflow/exeflow.db", cfg.Database.Path)
	assert.Equal(t, "sonnet", cfg.Agent.Model)
	assert.Equal(t, 12, cfg.Agent.MaxTurns)
	assert.Equal(t, 8, cfg.Detector.Window)
	// Untouched sections still get defaults
	assert.Equal(t, 5*time.Minute, cfg.Breaker.FailureWindow)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  model: sonnet\n"), 0o600))

	t.Setenv("EXEFLOW_AGENT_MODEL", "opus")
	t.Setenv("EXEFLOW_RUNNER_MAX_CONCURRENT_LOOPS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "opus", cfg.Agent.Model)
	assert.Equal(t, 9, cfg.Runner.MaxConcurrentLoops)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  type: telepathy\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent type")
}

func TestValidate_DetectorWindowTooSmall(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Detector.Window = 2
	require.Error(t, cfg.Validate())
}
