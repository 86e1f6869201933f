package shared_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/forecourt-io/forecourt/internal/shared"
	_ "github.com/forecourt-io/forecourt/testing"
)

func newSessionManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour)
}

func TestSessionRoundTrip(t *testing.T) {
	manager := newSessionManager(t)
	ctx := context.Background()

	token, err := manager.Create(ctx, shared.Actor{UserID: 7, Name: "Dewi", Role: shared.RoleManager, Stations: []int64{1}})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	actor, err := manager.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(7), actor.UserID)
	require.Equal(t, shared.RoleManager, actor.Role)
	require.True(t, actor.CanAccessStation(1))
	require.False(t, actor.CanAccessStation(2))
}

func TestSessionRejectsTamperedToken(t *testing.T) {
	manager := newSessionManager(t)
	ctx := context.Background()

	token, err := manager.Create(ctx, shared.Actor{UserID: 1, Role: shared.RoleStaff})
	require.NoError(t, err)

	_, err = manager.Resolve(ctx, token+"x")
	require.ErrorIs(t, err, shared.ErrSessionNotFound)
}

func TestSessionDestroy(t *testing.T) {
	manager := newSessionManager(t)
	ctx := context.Background()

	token, err := manager.Create(ctx, shared.Actor{UserID: 2, Role: shared.RoleStaff})
	require.NoError(t, err)
	require.NoError(t, manager.Destroy(ctx, token))

	_, err = manager.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrSessionNotFound)
}
