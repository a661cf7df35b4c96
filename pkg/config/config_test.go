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
	clearConfigEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "./workspaces", cfg.BaseWorkingPath)
	assert.Empty(t, cfg.AdminSecretKey)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 60*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 5, cfg.Engine.MaxWorkers)
	assert.Equal(t, 5*time.Second, cfg.Poller.PollInterval)
	assert.Equal(t, 0.5, cfg.Sync.TitleSimilarityThreshold)
	assert.False(t, cfg.Slack.Enabled())
}

func TestLoadFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/agentcore")
	t.Setenv("LLM_MODEL", "gpt-4o-mini")
	t.Setenv("MEMORY_TIMEOUT", "10")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "postgres://u:p@db:5432/agentcore", cfg.Database.URL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 10*time.Second, cfg.Memory.Timeout)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DB_PORT", "not-a-port")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
}

func TestLoadAppliesOverlay(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `
engine:
  max_workers: 12
  poll_interval: 30s
poller:
  batch_limit: 10
sync:
  title_similarity_threshold: 0.7
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Engine.MaxWorkers)
	assert.Equal(t, 30*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 10, cfg.Poller.BatchLimit)
	assert.Equal(t, 0.7, cfg.Sync.TitleSimilarityThreshold)

	// Untouched knobs keep their defaults.
	assert.Equal(t, 64, cfg.Engine.QueueSize)
	assert.Equal(t, 3, cfg.Poller.MaxWorkers)
}

func TestLoadMissingOverlayIsFine(t *testing.T) {
	clearConfigEnv(t)

	_, err := Load(t.TempDir())
	assert.NoError(t, err)
}

func TestLoadRejectsMalformedOverlay(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "engine: [not a map")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidOverlayValues(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `
sync:
  title_similarity_threshold: 1.5
`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title_similarity_threshold")
}

func TestDatabaseConfigDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: 5432, User: "agentcore", Password: "secret",
		Database: "agentcore", SSLMode: "require", SSLRoot: "/certs/root.crt",
	}
	assert.Equal(t,
		"host=db port=5432 user=agentcore password=secret dbname=agentcore sslmode=require sslrootcert=/certs/root.crt",
		c.DSN())

	c.URL = "postgres://elsewhere/db"
	assert.Equal(t, "postgres://elsewhere/db", c.DSN())
}

func TestSlackConfigEnabled(t *testing.T) {
	assert.False(t, SlackConfig{}.Enabled())
	assert.False(t, SlackConfig{Token: "xoxb-1"}.Enabled())
	assert.False(t, SlackConfig{Channel: "#jobs"}.Enabled())
	assert.True(t, SlackConfig{Token: "xoxb-1", Channel: "#jobs"}.Enabled())
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_PORT", "ADMIN_SECRET_KEY", "BASE_WORKING_PATH",
		"DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD",
		"DB_NAME", "DB_SSLMODE", "DB_SSLROOTCERT",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "LLM_MODEL", "EMBEDDING_MODEL",
		"MEMORY_BASE_URL", "MEMORY_TIMEOUT",
		"SLACK_BOT_TOKEN", "SLACK_CHANNEL",
	} {
		if _, ok := os.LookupEnv(key); ok {
			t.Setenv(key, "")
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
