package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.True(t, cb.Allow())
		cb.Failure()
	}

	require.Equal(t, "open", cb.State())
	require.False(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenAllowsExactlyOneProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	require.True(t, cb.Allow())
	cb.Failure()
	require.Equal(t, "open", cb.State())

	time.Sleep(20 * time.Millisecond)

	require.True(t, cb.Allow(), "first call after reset timeout should admit the probe")
	require.False(t, cb.Allow(), "a second concurrent call must not admit a second probe")
}

func TestCircuitBreaker_SuccessfulProbeCloses(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	require.True(t, cb.Allow())
	cb.Failure()
	time.Sleep(20 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.Success()

	require.Equal(t, "closed", cb.State())
	require.True(t, cb.Allow())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	require.True(t, cb.Allow())
	cb.Failure()
	time.Sleep(20 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.Failure()

	require.Equal(t, "open", cb.State())
	require.False(t, cb.Allow())
}
