package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Thresholds.WindowMaxEntries)
	assert.Equal(t, 200.0, cfg.Thresholds.PermBanScore)
	assert.Equal(t, 3, cfg.Enforcement.MaxAttempts)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
http_addr: ":9090"
postgres:
  host: db
  port: 5432
thresholds:
  rapid_fire_count: 6
  rapid_fire_window: 15s
enforcement:
  max_attempts: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, 6, cfg.Thresholds.RapidFireCount)
	assert.Equal(t, 15*time.Second, cfg.Thresholds.RapidFireWindow)
	assert.Equal(t, 5, cfg.Enforcement.MaxAttempts)
	// untouched fields keep their defaults
	assert.Equal(t, 60.0, cfg.Thresholds.FloodScore)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"token":"abc","redis":{"addr":"localhost:6379"},"thresholds":{"warn_score":45}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 45.0, cfg.Thresholds.WarnScore)
}

func TestLoadJSONDurations(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "thresholds": {"rapid_fire_window": "15s", "flood_window": 120000000000, "warn_score": 45},
  "enforcement": {"base_delay": "250ms", "max_attempts": 4},
  "cache": {"ttl": "1m"}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Thresholds.RapidFireWindow)
	assert.Equal(t, 2*time.Minute, cfg.Thresholds.FloodWindow)
	assert.Equal(t, 45.0, cfg.Thresholds.WarnScore)
	assert.Equal(t, 250*time.Millisecond, cfg.Enforcement.BaseDelay)
	assert.Equal(t, 4, cfg.Enforcement.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.Enabled)
	// absent durations keep their defaults
	assert.Equal(t, time.Hour, cfg.Thresholds.WindowMaxAge)
	assert.Equal(t, 30*time.Second, cfg.Thresholds.ShortSpamWindow)
}

func TestLoadJSONRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "config.json", `{"cache": {"ttl": "soon"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvertedBands(t *testing.T) {
	path := writeFile(t, "config.yaml", `
thresholds:
  warn_score: 90
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadUnknownExtension(t *testing.T) {
	path := writeFile(t, "config.toml", `token = "x"`)
	_, err := Load(path)
	assert.Error(t, err)
}
