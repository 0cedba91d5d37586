package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadGateway_Defaults(t *testing.T) {
	cfg := LoadGateway()
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, int64(256), cfg.MaxInFlight)
	require.False(t, cfg.AuthRequired)
}

func TestLoadGateway_EnvOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_IN_FLIGHT", "16")
	t.Setenv("AUTH_REQUIRED", "true")

	cfg := LoadGateway()
	require.Equal(t, "9090", cfg.Port)
	require.EqualValues(t, 16, cfg.MaxInFlight)
	require.True(t, cfg.AuthRequired)
}

func TestLoadProcessor_Defaults(t *testing.T) {
	cfg := LoadProcessor()
	require.Equal(t, 5, cfg.MaxDeliver)
	require.Equal(t, 30*time.Second, cfg.AckDeadline)
	require.False(t, cfg.SweeperEnabled)
}

func TestEnvOrDuration_InvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("ACK_DEADLINE", "not-a-duration")
	cfg := LoadCDC()
	require.Equal(t, 30*time.Second, cfg.AckDeadline)
}
