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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.True(t, cfg.Quest.AutosaveEnabled)
	assert.Equal(t, 300*time.Second, cfg.Quest.AutosaveInterval)
	assert.Equal(t, 60*time.Second, cfg.Quest.ExpirationSweepInterval)
	assert.Equal(t, time.Second, cfg.Quest.SurviveTick)
	assert.Equal(t, 3, cfg.Quest.Limits.Default)
	assert.True(t, cfg.Quest.Limits.Enabled)
	assert.True(t, cfg.Server.AdminAudit)
}

func TestLoad_QuestSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
quest:
  autosave_enabled: false
  autosave_interval: 120s
  limits:
    default: 5
    groups:
      vip: 10
  player_groups:
    9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d: vip
  messages:
    quest-accepted: "Go: {quest}"
`))
	require.NoError(t, err)

	assert.False(t, cfg.Quest.AutosaveEnabled)
	assert.Equal(t, 2*time.Minute, cfg.Quest.AutosaveInterval)
	assert.Equal(t, 10, cfg.Quest.Limits.LimitForGroup("vip"))
	assert.Equal(t, 5, cfg.Quest.Limits.LimitForGroup("default"))
	assert.Equal(t, "vip", cfg.Quest.PlayerGroups["9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"])
	assert.Equal(t, "Go: {quest}", cfg.Quest.Messages["quest-accepted"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1024, cfg.Quest.PersistQueue)
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "./config/quests.yaml", cfg.Quest.CatalogPath)
	assert.Equal(t, 2*time.Second, cfg.Quest.ProgressNotifyInterval)
	assert.Equal(t, 5, cfg.Quest.Limits.LimitForGroup("vip"))
	assert.True(t, cfg.Quest.AuditLog)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTL)
}
