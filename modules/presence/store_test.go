package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	active, err := s.IsActive(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, s.Claim(ctx, "alice", "c1"))
	require.NoError(t, s.Claim(ctx, "Alice", "c2"))

	active, err = s.IsActive(ctx, "ALICE")
	require.NoError(t, err)
	assert.True(t, active, "usernames compare case-insensitively")

	require.NoError(t, s.Release(ctx, "alice", "c1"))
	active, err = s.IsActive(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, active, "second connection still holds the name")

	require.NoError(t, s.Release(ctx, "alice", "c2"))
	active, err = s.IsActive(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, active)

	// Releasing an unknown claim is harmless.
	require.NoError(t, s.Release(ctx, "nobody", "c9"))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.NoError(t, s.Close())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := NewRedisStore(ctx,
		WithRedisAddr(addr),
		WithTTL(time.Minute),
		WithKeyPrefix("chat:presence:test:"+uuid.NewString()+":"),
	)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	exerciseStore(t, s)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, WithRedisAddr("127.0.0.1:1"))
	assert.Error(t, err)
}
