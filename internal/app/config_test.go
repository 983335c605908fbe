package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "/join", cfg.Path)
	require.Equal(t, DriverNone, cfg.Driver)
	require.Equal(t, 1000, cfg.Capacity)
	require.Equal(t, 50, cfg.PageSize)
	require.Zero(t, cfg.TypingTTL)
	require.Equal(t, 100, cfg.APIRateLimit)
	require.Equal(t, 15*time.Minute, cfg.APIRateWindow)
	require.Equal(t, 20, cfg.ConnRateLimit)
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("CHATRELAY_ADDR", "127.0.0.1:9999")
	t.Setenv("CHATRELAY_PERSISTENCE", "sqlite")
	t.Setenv("CHATRELAY_CAPACITY", "10")
	t.Setenv("CHATRELAY_TYPING_TTL", "3s")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Addr)
	require.Equal(t, DriverSQLite, cfg.Driver)
	require.Equal(t, 10, cfg.Capacity)
	require.Equal(t, 3*time.Second, cfg.TypingTTL)
}

func TestLoadServerConfigRejectsBadValues(t *testing.T) {
	t.Setenv("CHATRELAY_CAPACITY", "lots")
	_, err := LoadServerConfig()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("CHATRELAY_DATA_DIR", dataDir)

	cfg := ServerConfig{Path: "ws", Driver: "SQLite", Capacity: 5, PageSize: 5}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "/ws", cfg.Path)
	require.Equal(t, DriverSQLite, cfg.Driver)
	require.Equal(t, filepath.Join(dataDir, "chatrelay.db"), cfg.DBPath)

	cfg = ServerConfig{Driver: DriverBadger, Capacity: 5, PageSize: 5}
	require.NoError(t, cfg.Validate())
	require.Equal(t, filepath.Join(dataDir, "chatrelay-badger"), cfg.DBPath)

	bad := []ServerConfig{
		{Driver: "postgres", Capacity: 1, PageSize: 1},
		{Path: "/", Capacity: 1, PageSize: 1},
		{Capacity: 0, PageSize: 1},
		{Capacity: 1, PageSize: 0},
		{Capacity: 1, PageSize: 1, TypingTTL: -time.Second},
	}
	for _, cfg := range bad {
		require.Error(t, cfg.Validate(), "%+v", cfg)
	}
}

func TestNormalizeJoinPath(t *testing.T) {
	require.Equal(t, "/join", NormalizeJoinPath(""))
	require.Equal(t, "/chat", NormalizeJoinPath("chat"))
	require.Equal(t, "/chat", NormalizeJoinPath("/chat"))
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("CHATRELAY_USER", "alice")
	cfg, err := LoadClientConfig()
	require.NoError(t, err)
	require.Equal(t, "alice", cfg.Username)
	require.Equal(t, "ws://localhost:8080/join", cfg.ServerURL)
}
