package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/redis"
)

func connect(t *testing.T) *redis.Storage {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, redis.Healthcheck(client)(context.Background()))
	return redis.NewStorage(client)
}

func TestConnect_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: "://bad", ConnectTimeout: time.Second})
	assert.ErrorIs(t, err, redis.ErrFailedToParseConnString)
}

func TestStorage(t *testing.T) {
	s := connect(t)
	ctx := context.Background()
	key := "authflow:test:" + uuid.NewString()

	_, err := s.Get(ctx, key)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, s.Set(ctx, key, []byte("v"), time.Minute))
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	got, err = s.Take(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	_, err = s.Take(ctx, key)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, s.Set(ctx, key, []byte("v"), 0))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	assert.ErrorIs(t, s.Set(ctx, "", nil, 0), redis.ErrEmptyKey)
}
