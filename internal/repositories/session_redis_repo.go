package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/cache"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KEYS[1] 元数据 hash, KEYS[2] 分片 set, KEYS[3] 会话索引 zset
// ARGV[1] 分片序号, ARGV[2] 当前时间(ns), ARGV[3] ttl(ms), ARGV[4] 会话 id, ARGV[5] 当前时间(s)
// 返回 -1 表示会话不存在或已完成
var addChunkScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status or status == 'completed' then
	return -1
end
redis.call('SADD', KEYS[2], ARGV[1])
if status == 'initiated' then
	redis.call('HSET', KEYS[1], 'status', 'in_progress', 'updated_at', ARGV[2])
else
	redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[5], ARGV[4])
return redis.call('SCARD', KEYS[2])
`)

// KEYS[1] 元数据 hash, ARGV[1] 新状态, ARGV[2] 当前时间(ns)
var setStatusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'updated_at', ARGV[2])
return 1
`)

// 只有持有者才能释放锁
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// 只有持有者才能续期，key 过期后 GET 返回 nil，续期失败
var refreshLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

type redisSessionRepository struct {
	cache cache.Cache
	ttl   time.Duration // 会话 key 的过期时间，每次收到分片时刷新
}

// NewRedisSessionRepository 创建基于 Redis 的会话存储，多实例部署时共享会话
func NewRedisSessionRepository(c cache.Cache, ttl time.Duration) SessionRepository {
	return &redisSessionRepository{cache: c, ttl: ttl}
}

func (r *redisSessionRepository) Create(ctx context.Context, session *models.UploadSession) error {
	metaKey := cache.GenerateSessionKey(session.ID)
	pipe := r.cache.TxPipeline()
	pipe.HSet(ctx, metaKey, sessionToMap(session))
	pipe.Expire(ctx, metaKey, r.ttl)
	if len(session.ReceivedChunks) > 0 {
		chunksKey := cache.GenerateReceivedChunksKey(session.ID)
		members := make([]any, len(session.ReceivedChunks))
		for i, idx := range session.ReceivedChunks {
			members[i] = idx
		}
		pipe.SAdd(ctx, chunksKey, members...)
		pipe.Expire(ctx, chunksKey, r.ttl)
	}
	pipe.ZAdd(ctx, cache.SessionIndexKey, &redis.Z{
		Score:  float64(session.UpdatedAt.Unix()),
		Member: session.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("Create: Failed to save upload session to Redis", zap.String("uploadID", session.ID), zap.Error(err))
		return fmt.Errorf("session repository: create %s: %w", session.ID, err)
	}
	return nil
}

func (r *redisSessionRepository) Get(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	fields, err := r.cache.HGetAll(ctx, cache.GenerateSessionKey(uploadID))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, xerr.ErrUploadSessionNotFound
		}
		return nil, fmt.Errorf("session repository: get %s: %w", uploadID, err)
	}
	session, err := sessionFromMap(uploadID, fields)
	if err != nil {
		return nil, fmt.Errorf("session repository: decode %s: %w", uploadID, err)
	}

	members, err := r.cache.SMembers(ctx, cache.GenerateReceivedChunksKey(uploadID))
	if err != nil {
		return nil, fmt.Errorf("session repository: get chunks %s: %w", uploadID, err)
	}
	session.ReceivedChunks = make([]int, 0, len(members))
	for _, m := range members {
		idx, err := strconv.Atoi(m)
		if err != nil {
			logger.Warn("Get: Ignoring malformed chunk index", zap.String("uploadID", uploadID), zap.String("member", m))
			continue
		}
		session.ReceivedChunks = append(session.ReceivedChunks, idx)
	}
	sort.Ints(session.ReceivedChunks)
	return session, nil
}

func (r *redisSessionRepository) AddChunk(ctx context.Context, uploadID string, index int) (int, error) {
	now := time.Now()
	res, err := r.cache.RunScript(ctx, addChunkScript,
		[]string{cache.GenerateSessionKey(uploadID), cache.GenerateReceivedChunksKey(uploadID), cache.SessionIndexKey},
		index, now.UnixNano(), r.ttl.Milliseconds(), uploadID, now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("session repository: add chunk %s/%d: %w", uploadID, index, err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("session repository: unexpected script result %T", res)
	}
	if n < 0 {
		return 0, xerr.ErrUploadSessionNotFound
	}
	return int(n), nil
}

func (r *redisSessionRepository) SetStatus(ctx context.Context, uploadID string, status models.UploadStatus) error {
	res, err := r.cache.RunScript(ctx, setStatusScript,
		[]string{cache.GenerateSessionKey(uploadID)},
		string(status), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("session repository: set status %s: %w", uploadID, err)
	}
	if n, _ := res.(int64); n < 0 {
		return xerr.ErrUploadSessionNotFound
	}
	return nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, uploadID string) error {
	pipe := r.cache.TxPipeline()
	pipe.Del(ctx, cache.GenerateSessionKey(uploadID), cache.GenerateReceivedChunksKey(uploadID))
	pipe.ZRem(ctx, cache.SessionIndexKey, uploadID)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("Delete: Failed to delete upload session from Redis", zap.String("uploadID", uploadID), zap.Error(err))
		return fmt.Errorf("session repository: delete %s: %w", uploadID, err)
	}
	return nil
}

func (r *redisSessionRepository) TryLock(ctx context.Context, uploadID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.cache.SetNX(ctx, cache.GenerateCompleteLockKey(uploadID), token, ttl)
	if err != nil {
		return "", false, fmt.Errorf("session repository: lock %s: %w", uploadID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *redisSessionRepository) RefreshLock(ctx context.Context, uploadID, token string, ttl time.Duration) (bool, error) {
	res, err := r.cache.RunScript(ctx, refreshLockScript, []string{cache.GenerateCompleteLockKey(uploadID)}, token, ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("session repository: refresh lock %s: %w", uploadID, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (r *redisSessionRepository) Unlock(ctx context.Context, uploadID, token string) error {
	_, err := r.cache.RunScript(ctx, unlockScript, []string{cache.GenerateCompleteLockKey(uploadID)}, token)
	if err != nil {
		return fmt.Errorf("session repository: unlock %s: %w", uploadID, err)
	}
	return nil
}

func (r *redisSessionRepository) ListUpdatedBefore(ctx context.Context, before time.Time, limit int) ([]string, error) {
	ids, err := r.cache.ZRangeByScore(ctx, cache.SessionIndexKey, float64(before.Unix()), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("session repository: list stale sessions: %w", err)
	}
	return ids, nil
}

func (r *redisSessionRepository) Ping(ctx context.Context) error {
	return r.cache.Ping(ctx)
}

// sessionToMap 将会话元数据展开为 hash 字段，时间以纳秒存储
func sessionToMap(s *models.UploadSession) map[string]any {
	return map[string]any{
		"id":            s.ID,
		"filename":      s.Filename,
		"declared_size": s.DeclaredSize,
		"chunk_size":    s.ChunkSize,
		"total_chunks":  s.TotalChunks,
		"status":        string(s.Status),
		"created_at":    s.CreatedAt.UnixNano(),
		"updated_at":    s.UpdatedAt.UnixNano(),
	}
}

func sessionFromMap(uploadID string, m map[string]string) (*models.UploadSession, error) {
	declared, err := strconv.ParseInt(m["declared_size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("declared_size: %w", err)
	}
	chunkSize, err := strconv.ParseInt(m["chunk_size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chunk_size: %w", err)
	}
	total, err := strconv.Atoi(m["total_chunks"])
	if err != nil {
		return nil, fmt.Errorf("total_chunks: %w", err)
	}
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updated, err := strconv.ParseInt(m["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &models.UploadSession{
		ID:           uploadID,
		Filename:     m["filename"],
		DeclaredSize: declared,
		ChunkSize:    chunkSize,
		TotalChunks:  total,
		Status:       models.UploadStatus(m["status"]),
		CreatedAt:    time.Unix(0, created),
		UpdatedAt:    time.Unix(0, updated),
	}, nil
}
