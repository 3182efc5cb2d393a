package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":5555", cfg.RawAddr)
	assert.Equal(t, ":5556", cfg.WSAddr)
	assert.Equal(t, 20, cfg.TickRate)
	assert.Equal(t, 180*time.Second, cfg.IdleTimeout)
	assert.Equal(t, RateLimit{Capacity: 10, RefillTicks: 2, RefillAmount: 1}, cfg.RateLimit)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 3600, cfg.TicksFor(cfg.IdleTimeout))
	assert.Equal(t, 1, cfg.TicksFor(time.Millisecond))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DUNGEON_RAW_ADDR", "127.0.0.1:7000")
	t.Setenv("DUNGEON_MAX_PLAYERS", "4")
	t.Setenv("DUNGEON_IDLE_TIMEOUT", "30s")
	t.Setenv("DUNGEON_LOG_CONSOLE", "true")
	t.Setenv("DUNGEON_ENEMIES_PER_MAP", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.RawAddr)
	assert.Equal(t, 4, cfg.MaxPlayers)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.True(t, cfg.Logging.Console)
	assert.Zero(t, cfg.EnemiesPerMap)
}

func TestLoadAggregatesProblems(t *testing.T) {
	t.Setenv("DUNGEON_TICK_RATE", "fast")
	t.Setenv("DUNGEON_HANDSHAKE_TIMEOUT", "-1s")
	t.Setenv("DUNGEON_LOG_LEVEL", "chatty")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DUNGEON_TICK_RATE")
	assert.Contains(t, err.Error(), "DUNGEON_HANDSHAKE_TIMEOUT")
	assert.Contains(t, err.Error(), "log level")
}

func TestValidateNeedsAListener(t *testing.T) {
	cfg := Default()
	cfg.RawAddr, cfg.WSAddr = "", ""
	assert.Error(t, cfg.Validate())
}
