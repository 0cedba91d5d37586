package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_DisabledConfigIsNoop(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_NilConfigIsDisabled(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestTrackOperation_RecordsTerminalError(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, done := p.TrackOperation(context.Background(), "write.users.create")
	require.NotNil(t, ctx)
	done(errors.New("boom"))
}

func TestDefaultConfig_NamesService(t *testing.T) {
	cfg := DefaultConfig("gateway")
	require.Equal(t, "gateway", cfg.ServiceName)
	require.True(t, cfg.Enabled)
}
