package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorLimiter_AllowsWithinBurstThenRejects(t *testing.T) {
	l := NewActorLimiter(60, 2)

	require.True(t, l.Allow("actor:1"))
	require.True(t, l.Allow("actor:1"))
	require.False(t, l.Allow("actor:1"))
}

func TestActorLimiter_TracksActorsIndependently(t *testing.T) {
	l := NewActorLimiter(60, 1)

	require.True(t, l.Allow("actor:1"))
	require.True(t, l.Allow("actor:2"))
	require.False(t, l.Allow("actor:1"))
}

func TestActorID_PrefersAuthenticatedSubject(t *testing.T) {
	require.Equal(t, "actor:user-1", ActorID("user-1", "10.0.0.1:5555"))
	require.Equal(t, "ip:10.0.0.1", ActorID("", "10.0.0.1:5555"))
}
