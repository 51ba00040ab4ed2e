package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresHostAndClientID(t *testing.T) {
	t.Setenv("VCHAT_HOST", "")
	t.Setenv("VCHAT_CLIENT_ID", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("VCHAT_HOST", "https://chat.example")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("VCHAT_CLIENT_ID", "guest-1")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://chat.example", cfg.Host)
	require.Equal(t, "guest-1", cfg.ClientID)
}

func TestLoadOptionalFields(t *testing.T) {
	t.Setenv("VCHAT_HOST", "https://chat.example")
	t.Setenv("VCHAT_CLIENT_ID", "guest-1")
	t.Setenv("VCHAT_FORCE_LONG_POLLING", "1")
	t.Setenv("VCHAT_NOOP_INTERVAL_MS", "250")
	t.Setenv("VCHAT_PROTOCOLS", "jpeg, hls")
	t.Setenv("VCHAT_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.ForceLongPolling)
	require.Equal(t, 250*time.Millisecond, cfg.NoopInterval)
	require.Equal(t, []string{"jpeg", "hls"}, cfg.Protocols)
	require.True(t, cfg.Debug)
}

func TestLoadRejectsBadInterval(t *testing.T) {
	t.Setenv("VCHAT_HOST", "https://chat.example")
	t.Setenv("VCHAT_CLIENT_ID", "guest-1")
	t.Setenv("VCHAT_NOOP_INTERVAL_MS", "soon")

	_, err := Load()
	require.Error(t, err)
}
