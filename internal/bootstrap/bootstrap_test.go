package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/maauso/thumbnail-studio/internal/pipeline"
	"github.com/maauso/thumbnail-studio/internal/session"
	"github.com/maauso/thumbnail-studio/internal/thumbnail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseIdle_ClosesExpiredSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reg := session.NewMemoryRegistry(session.WithClock(func() time.Time { return now }))
	deps := &Dependencies{Registry: reg}

	idle := pipeline.NewSession("idle", nil, nil, nil)
	recent := pipeline.NewSession("recent", nil, nil, nil)
	require.NoError(t, reg.Add(ctx, idle))
	require.NoError(t, reg.Add(ctx, recent))

	now = now.Add(50 * time.Minute)
	_, err := reg.Get(ctx, "recent")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, deps.closeIdle(ctx, time.Hour))

	_, err = reg.Get(ctx, "idle")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = idle.UpdateSettings(thumbnail.Defaults())
	assert.ErrorIs(t, err, pipeline.ErrSessionClosed)

	_, err = recent.UpdateSettings(thumbnail.Defaults())
	assert.NoError(t, err)
}

func TestSweepIdleSessions_StopsWithContext(t *testing.T) {
	deps := &Dependencies{Registry: session.NewMemoryRegistry()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		deps.SweepIdleSessions(ctx, time.Hour, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestClose_ClosesEverySession(t *testing.T) {
	ctx := context.Background()
	reg := session.NewMemoryRegistry()
	deps := &Dependencies{Registry: reg}
	s := pipeline.NewSession("a", nil, nil, nil)
	require.NoError(t, reg.Add(ctx, s))

	deps.Close(ctx)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = s.UpdateSettings(thumbnail.Defaults())
	assert.ErrorIs(t, err, pipeline.ErrSessionClosed)
}
