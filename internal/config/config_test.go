package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2*time.Minute, cfg.WebSocket.RPCTimeout)
	assert.Equal(t, "none", cfg.Storage.Driver)
	assert.Equal(t, rules.DefaultGameConfig(), cfg.Game.Rules)
	assert.Equal(t, "configs/definitions.yaml", cfg.Data.Definitions)

	behavior, err := cfg.Game.VersionBehavior()
	require.NoError(t, err)
	assert.Equal(t, rules.CurrentVersionBehavior(), behavior)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9000"
  max_matches: 3
websocket:
  rpc_timeout: 30s
storage:
  driver: sqlite
  sqlite_path: /tmp/x.db
game:
  random_seed: 99
  max_rounds_count: 5
  behavior: legacy
  always_omni: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 3, cfg.Server.MaxMatches)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.RPCTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 99, cfg.Game.Rules.RandomSeed)
	assert.Equal(t, 5, cfg.Game.Rules.MaxRoundsCount)
	assert.Equal(t, 5, cfg.Game.Rules.InitialHandsCount)
	assert.True(t, cfg.Game.AlwaysOmni)

	behavior, err := cfg.Game.VersionBehavior()
	require.NoError(t, err)
	assert.Equal(t, rules.LegacyVersionBehavior(), behavior)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TCG_SERVER_ADDRESS", ":7777")
	t.Setenv("TCG_GAME_MAX_ROUNDS_COUNT", "4")
	t.Setenv("TCG_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "server:\n  address: \":9000\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Address)
	assert.Equal(t, 4, cfg.Game.Rules.MaxRoundsCount)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("../../configs/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "storage:\n  driver: mongo\nlogging:\n  format: xml\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown storage.driver "mongo"`)
	assert.ErrorContains(t, err, `unknown logging.format "xml"`)

	_, err = Load(writeConfig(t, "game:\n  behavior: ancient\n"))
	assert.ErrorContains(t, err, "unknown game behavior")
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "tcg", Password: "p@ss", Name: "matches", SSLMode: "disable", MaxConns: 4}
	assert.Equal(t, "postgres://tcg:p%40ss@db:5433/matches?pool_max_conns=4&sslmode=disable", d.DSN())
}
