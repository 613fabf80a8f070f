package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWithEnvSecrets(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("BOT_GEMINI_API_KEY", "test-key")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "test-key", cfg.Gemini.APIKey)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.Logger.JSON)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.ModelName)
	assert.Equal(t, "imagen-3.0-generate-002", cfg.Gemini.ImageModelName)
	assert.Equal(t, "storage.db", cfg.Database.Path)
	assert.Equal(t, 60, cfg.Engagement.CheckIntervalSeconds)
	assert.Equal(t, 10, cfg.Engagement.StartupGraceSeconds)
	assert.Equal(t, 90, cfg.Engagement.PokeMinMinutes)
	assert.Equal(t, 2880, cfg.Engagement.PokeMaxMinutes)
	assert.Equal(t, 10, cfg.Engagement.ImageDailyLimit)
	assert.Contains(t, cfg.Scheduler.Tasks, "sql_maintenance")
	assert.Contains(t, cfg.Scheduler.Tasks, "image_log_cleanup")
}

func TestLoadConfigMissingTokenFails(t *testing.T) {
	t.Setenv("BOT_GEMINI_API_KEY", "test-key")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logger:
  level: debug
  json: true
telegram:
  token: 123:abc
gemini:
  api_key: file-key
  temperature: 1.2
engagement:
  poke_min_minutes: 30
  poke_max_minutes: 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Logger.JSON)
	assert.Equal(t, "file-key", cfg.Gemini.APIKey)
	assert.InDelta(t, 1.2, cfg.Gemini.Temperature, 0.001)
	assert.Equal(t, 30, cfg.Engagement.PokeMinMinutes)
	assert.Equal(t, 60, cfg.Engagement.PokeMaxMinutes)

	// Untouched sections keep their defaults.
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.ModelName)
	assert.Equal(t, 10, cfg.Engagement.ImageDailyLimit)
}

func TestLoadConfigRejectsInvertedPokeWindow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
telegram:
  token: 123:abc
gemini:
  api_key: k
engagement:
  poke_min_minutes: 120
  poke_max_minutes: 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logger:
  level: loud
telegram:
  token: 123:abc
gemini:
  api_key: k
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
