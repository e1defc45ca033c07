package setup

import (
	"context"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var RedisClientGlobal *redis.Client

// InitRedis 仅在会话存储为 redis 时调用
func InitRedis(ctx context.Context, cfg *config.RedisConfig) *redis.Client {
	RedisClientGlobal = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := RedisClientGlobal.Ping(pingCtx).Result(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	logger.Info("Connected to Redis successfully!", zap.String("addr", cfg.Addr))
	return RedisClientGlobal
}

func CloseRedis() {
	if RedisClientGlobal == nil {
		return
	}
	if err := RedisClientGlobal.Close(); err != nil {
		logger.Error("Error closing Redis connection", zap.Error(err))
	} else {
		logger.Info("Redis connection closed.")
	}
}
