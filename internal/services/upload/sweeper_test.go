package upload

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) seedSession(t *testing.T, status models.UploadStatus, updatedAt time.Time) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, e.sessions.Create(ctx, &models.UploadSession{
		ID:           id,
		Filename:     "seed.bin",
		DeclaredSize: 1024,
		ChunkSize:    1024,
		TotalChunks:  1,
		Status:       status,
		CreatedAt:    updatedAt,
		UpdatedAt:    updatedAt,
	}))
	require.NoError(t, e.chunks.Put(ctx, id, 0, bytes.NewReader(chunkData(0, 1024)), 1024))
	return id
}

func newTestSweeper(env *testEnv) *Sweeper {
	return NewSweeper(env.sessions, env.chunks, 24*time.Hour, 10*time.Minute, time.Minute)
}

func TestSweeperReclaimsExpiredSessions(t *testing.T) {
	env := newTestEnv(t, CodecNone)
	ctx := context.Background()

	stale := env.seedSession(t, models.UploadStatusInProgress, time.Now().Add(-25*time.Hour))
	fresh := env.seedSession(t, models.UploadStatusInProgress, time.Now().Add(-time.Hour))

	res, err := newTestSweeper(env).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredSessions)

	_, err = env.sessions.Get(ctx, stale)
	assert.ErrorIs(t, err, xerr.ErrUploadSessionNotFound)
	env.assertNoWorkspace(t, stale)

	_, err = env.sessions.Get(ctx, fresh)
	assert.NoError(t, err)
	ids, err := env.chunks.ListUploadIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, fresh)
}

func TestSweeperReclaimsCompletedLeftovers(t *testing.T) {
	env := newTestEnv(t, CodecNone)
	ctx := context.Background()

	leftover := env.seedSession(t, models.UploadStatusCompleted, time.Now().Add(-time.Hour))
	// 仍在合并锁有效期内，不能动
	recent := env.seedSession(t, models.UploadStatusCompleted, time.Now().Add(-time.Minute))

	res, err := newTestSweeper(env).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CompletedLeftovers)

	_, err = env.sessions.Get(ctx, leftover)
	assert.ErrorIs(t, err, xerr.ErrUploadSessionNotFound)
	env.assertNoWorkspace(t, leftover)
	_, err = env.sessions.Get(ctx, recent)
	assert.NoError(t, err)
}

func TestSweeperSkipsLockedSessions(t *testing.T) {
	env := newTestEnv(t, CodecNone)
	ctx := context.Background()

	id := env.seedSession(t, models.UploadStatusInProgress, time.Now().Add(-48*time.Hour))
	_, ok, err := env.sessions.TryLock(ctx, id, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := newTestSweeper(env).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredSessions)
	_, err = env.sessions.Get(ctx, id)
	assert.NoError(t, err)
}

func TestSweeperRemovesOrphanWorkspaces(t *testing.T) {
	env := newTestEnv(t, CodecNone)
	ctx := context.Background()

	orphan := uuid.NewString()
	require.NoError(t, env.chunks.Put(ctx, orphan, 0, bytes.NewReader(chunkData(0, 1024)), 1024))
	live := env.initiate(t, "live.bin", 1024, 1024, 1)
	env.upload(t, live, 0, chunkData(0, 1024))

	res, err := newTestSweeper(env).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrphanWorkspaces)

	ids, err := env.chunks.ListUploadIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{live}, ids)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, CodecNone)
	sweeper := NewSweeper(env.sessions, env.chunks, time.Hour, time.Minute, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
