package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_ids: [1000, 2000]
  poll_timeout: "15s"
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: "./bot.db"
broadcast:
  workers: 8
  rate_per_sec: 20
  retry_delay: "300ms"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, []int64{1000, 2000}, cfg.Telegram.OwnerIDs)
	assert.Equal(t, 8, cfg.Broadcast.Workers)
	assert.Equal(t, 20, cfg.Broadcast.RatePerSec)
	assert.Equal(t, 300*time.Millisecond, ParseDuration(cfg.Broadcast.RetryDelay, 0))
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "telegram": {"token": "123:abc", "owner_ids": [1]},
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
  "storage": {"path": "./bot.db"},
  "broadcast": {}
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "t"
  owner_ids: []
  typo_key: true
storage:
  path: "./bot.db"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownKeysJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "telegram": {"token": "t", "owner_ids": [], "typo_key": true},
  "storage": {"path": "./bot.db"}
}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsTrailingJSON(t *testing.T) {
	path := writeFile(t, "config.json",
		`{"telegram": {"token": "t"}, "storage": {"path": "./bot.db"}}{"extra": 1}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRequiresTokenAndStorage(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: ""
storage:
  path: ""
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("DATABASE_PATH", "/tmp/env.db")
	path := writeFile(t, "config.yaml", `
telegram:
  token: "file-token"
storage:
  path: "./file.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "/tmp/env.db", cfg.Storage.Path)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Second))
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
	assert.Equal(t, time.Second, ParseDuration("garbage", time.Second))
	assert.Equal(t, time.Second, ParseDuration("-2s", time.Second))
}
