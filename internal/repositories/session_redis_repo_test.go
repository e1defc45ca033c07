package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/cache"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSessionRepositoryMiniredis(t *testing.T) {
	_, client := newMiniredisClient(t)
	runSessionRepositoryContract(t, func() SessionRepository {
		return NewRedisSessionRepository(cache.NewRedisCache(client), time.Hour)
	})
}

func TestRedisSessionKeysExpire(t *testing.T) {
	mr, client := newMiniredisClient(t)
	ctx := context.Background()
	repo := NewRedisSessionRepository(cache.NewRedisCache(client), time.Minute)

	s := newTestSession("s-ttl", 2)
	require.NoError(t, repo.Create(ctx, s))
	_, err := repo.AddChunk(ctx, s.ID, 0)
	require.NoError(t, err)

	// 收到分片会刷新过期时间
	mr.FastForward(50 * time.Second)
	_, err = repo.AddChunk(ctx, s.ID, 1)
	require.NoError(t, err)
	mr.FastForward(50 * time.Second)
	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got.ReceivedChunks)

	mr.FastForward(2 * time.Minute)
	_, err = repo.Get(ctx, s.ID)
	assert.ErrorIs(t, err, xerr.ErrUploadSessionNotFound)
	_, err = repo.AddChunk(ctx, s.ID, 0)
	assert.ErrorIs(t, err, xerr.ErrUploadSessionNotFound)
}

func TestRedisSetStatusKeepsChunks(t *testing.T) {
	_, client := newMiniredisClient(t)
	ctx := context.Background()
	repo := NewRedisSessionRepository(cache.NewRedisCache(client), time.Hour)

	s := newTestSession("s-status", 1)
	require.NoError(t, repo.Create(ctx, s))
	_, err := repo.AddChunk(ctx, s.ID, 0)
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, s.ID, models.UploadStatusCompleted))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusCompleted, got.Status)
	assert.Equal(t, []int{0}, got.ReceivedChunks)
}

func TestRedisLockRefreshExtendsExpiry(t *testing.T) {
	mr, client := newMiniredisClient(t)
	ctx := context.Background()
	repo := NewRedisSessionRepository(cache.NewRedisCache(client), time.Hour)

	token, ok, err := repo.TryLock(ctx, "s", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(800 * time.Millisecond)
	ok, err = repo.RefreshLock(ctx, "s", token, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(800 * time.Millisecond)
	_, ok, err = repo.TryLock(ctx, "s", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Second)
	ok, err = repo.RefreshLock(ctx, "s", token, time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "expired lock cannot be refreshed")
}

// 需要真实的 Redis，例如 REDIS_ADDR=localhost:6379 go test ./internal/repositories/
func TestRedisSessionRepository(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.Del(ctx, cache.SessionIndexKey).Err())

	runSessionRepositoryContract(t, func() SessionRepository {
		return NewRedisSessionRepository(cache.NewRedisCache(client), time.Hour)
	})
}
