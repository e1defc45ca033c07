package worker

import (
	"context"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/mq"
	"go.uber.org/zap"
)

// StartAllWorkers 启动应用中所有定义的后台 Worker
// 没有 RabbitMQ 或搜索索引时不启动
func StartAllWorkers(ctx context.Context, cfg *config.Config, mqClient *mq.RabbitMQClient, indexer FileIndexer) {
	if mqClient == nil || indexer == nil {
		logger.Info("Background workers disabled")
		return
	}

	// --- 启动文件索引 Worker ---
	indexWorker := NewIndexWorker(mqClient, indexer, cfg.RabbitMQ.UploadQueue)
	if err := indexWorker.Start(ctx); err != nil {
		logger.Error("Failed to start index worker", zap.Error(err))
		return
	}

	logger.Info("所有后台工作进程已启动。")
}
