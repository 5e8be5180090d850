package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/serviosync/internal/session"
)

func newRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisStoreSaveAndToken(t *testing.T) {
	client, _ := newRedisClient(t)
	store := session.NewRedisStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", "tok-123", 0))

	token, err := store.Token(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
}

func TestRedisStoreMissingSession(t *testing.T) {
	client, _ := newRedisClient(t)
	store := session.NewRedisStore(client, "")

	_, err := store.Token(context.Background(), "nobody")
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	client, mr := newRedisClient(t)
	store := session.NewRedisStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", "tok-123", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Token(ctx, "u1")
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestRedisStoreDelete(t *testing.T) {
	client, _ := newRedisClient(t)
	store := session.NewRedisStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", "tok-123", 0))
	require.NoError(t, store.Delete(ctx, "u1"))

	_, err := store.Token(ctx, "u1")
	require.ErrorIs(t, err, session.ErrNoSession)
}
