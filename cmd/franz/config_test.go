package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/agent"
	"github.com/hairizuan-noorazman/desktop-agent/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "dump", cfg.Dump.Dir)
	assert.Equal(t, "high", cfg.Capture.Resolution)
	assert.Equal(t, 200*time.Millisecond, cfg.Inspector.TextTimeout)
	assert.Equal(t, 1, cfg.Inspector.ChildDepth)
	assert.Equal(t, agent.DefaultTurnDelay, cfg.Agent.TurnDelay)
	assert.Zero(t, cfg.Agent.MaxIterations)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "qwen3-vl-2b-instruct", cfg.Model.Name)
	assert.Equal(t, 3, cfg.Model.RetryMax)
	assert.Equal(t, agent.DefaultSampling(), cfg.Model.Sampling)
	assert.True(t, cfg.Database.Enabled)
	assert.Empty(t, cfg.Archive.Type)
	assert.Empty(t, cfg.Status.Addr)
	assert.True(t, cfg.HUD.Enabled)
	assert.True(t, cfg.HUD.StartPaused)
	assert.Empty(t, cfg.HUD.StoryFile)

	db := cfg.databaseConfig()
	assert.Equal(t, database.DriverSQLite, db.Driver)
	assert.Equal(t, filepath.Join("dump", "franz.db"), db.Path)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "franz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
dump:
  dir: /tmp/franz-dump
capture:
  resolution: low
agent:
  max_iterations: 25
  time_limit: 10m
model:
  provider: bedrock
  bedrock_model: amazon.nova-lite-v1:0
  sampling:
    temperature: 0.2
    stop: ["</s>"]
archive:
  type: s3
  s3_bucket: franz-archive
status:
  addr: 127.0.0.1:8089
`), 0644))

	t.Setenv("FRANZ_AGENT_MAX_ITERATIONS", "7")
	t.Setenv("FRANZ_MODEL_NAME", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "low", cfg.Capture.Resolution)
	assert.Equal(t, 7, cfg.Agent.MaxIterations)
	assert.Equal(t, 10*time.Minute, cfg.Agent.TimeLimit)
	assert.Equal(t, "bedrock", cfg.Model.Provider)
	assert.Equal(t, "from-env", cfg.Model.Name)

	// unset sampling keys keep their defaults
	assert.Equal(t, 0.2, cfg.Model.Sampling.Temperature)
	assert.Equal(t, []string{"</s>"}, cfg.Model.Sampling.Stop)
	assert.Equal(t, 20, cfg.Model.Sampling.TopK)
	assert.Equal(t, int64(42), cfg.Model.Sampling.Seed)

	m := cfg.modelConfig("prompt")
	assert.Equal(t, "prompt", m.SystemPrompt)
	assert.Equal(t, "amazon.nova-lite-v1:0", m.BedrockModel)

	a := cfg.archiveConfig("run_20240101_120000")
	assert.Equal(t, "s3", a.Type)
	assert.Equal(t, "franz-archive", a.Bucket)
	assert.Equal(t, "us-east-1", a.Region)
	assert.Equal(t, "run_20240101_120000", a.Prefix)

	assert.Equal(t, "127.0.0.1:8089", cfg.Status.Addr)
	assert.Equal(t, filepath.Join("/tmp/franz-dump", "franz.db"), cfg.databaseConfig().Path)
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "franz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unterminated"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestRunDirName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local)
	assert.Equal(t, "run_20240309_070501", runDirName(ts))
}
