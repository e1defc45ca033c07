package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 缓存通用接口
type Cache interface {
	// SetNX 仅当 key 不存在时写入，用作简单的分布式锁
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)

	// HGetAll key 不存在时返回 ErrCacheMiss
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]string, error)

	// RunScript 执行 Lua 脚本，脚本内的多条命令原子执行
	RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)

	// 多个写操作需要一起生效时使用
	TxPipeline() redis.Pipeliner
	Ping(ctx context.Context) error
}

// 会话元数据 hash
func GenerateSessionKey(uploadID string) string {
	return fmt.Sprintf("upload:session:%s", uploadID)
}

// 已收到的分片序号 set
func GenerateReceivedChunksKey(uploadID string) string {
	return fmt.Sprintf("upload:session:%s:chunks", uploadID)
}

// 合并锁
func GenerateCompleteLockKey(uploadID string) string {
	return fmt.Sprintf("upload:session:%s:lock", uploadID)
}

// 所有会话的索引，score 为最后更新时间，供清理任务扫描
const SessionIndexKey = "upload:sessions"
