package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var ErrCacheMiss error = errors.New("缓存未命中,key不存在")

type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		logger.Error("Failed to SetNX in Redis", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("SetNX 操作失败: %w", err)
	}
	return ok, nil
}

func (r *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	resultMap, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error("Failed to HGetAll from Redis", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("HGetAll 操作失败: %w", err)
	}
	// key 不存在时 HGetAll 返回空 map
	if len(resultMap) == 0 {
		return nil, ErrCacheMiss
	}
	return resultMap, nil
}

func (r *RedisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		logger.Error("Failed to SMembers from Redis", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("SMembers 操作失败: %w", err)
	}
	return members, nil
}

// ZRangeByScore 返回 score <= max 的成员，最多 limit 个
func (r *RedisCache) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]string, error) {
	members, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(max, 'f', -1, 64),
		Count: limit,
	}).Result()
	if err != nil {
		logger.Error("Failed to ZRangeByScore from Redis", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("ZRangeByScore 操作失败: %w", err)
	}
	return members, nil
}

// RunScript 优先 EVALSHA，脚本未加载时自动回退到 EVAL
func (r *RedisCache) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	res, err := script.Run(ctx, r.client, keys, args...).Result()
	if err != nil && err != redis.Nil {
		logger.Error("Failed to run Lua script in Redis", zap.Strings("keys", keys), zap.Error(err))
		return nil, fmt.Errorf("执行 Lua 脚本失败: %w", err)
	}
	return res, nil
}

func (r *RedisCache) TxPipeline() redis.Pipeliner {
	return r.client.TxPipeline()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
