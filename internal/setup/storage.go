// internal/setup/storage.go

package setup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/storage"
)

// InitStorage 根据配置创建存储服务并确保存储桶（或本地根目录）存在
func InitStorage(cfg *config.Config) storage.StorageService {
	svc, err := storage.NewStorageService(cfg)
	if err != nil {
		logger.Fatal("初始化存储服务失败，请检查配置", zap.String("type", cfg.Storage.Type), zap.Error(err))
	}

	// 为外部调用使用带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.EnsureBucket(ctx); err != nil {
		logger.Fatal("检查或创建存储桶失败", zap.String("type", svc.Type()), zap.String("bucket", svc.Bucket()), zap.Error(err))
	}

	logger.Info("存储服务已初始化", zap.String("type", svc.Type()), zap.String("bucket", svc.Bucket()))
	return svc
}
