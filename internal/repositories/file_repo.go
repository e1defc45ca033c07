package repositories

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileRepository 合并完成的文件记录，uploaded_files 表只写不改
type FileRepository interface {
	Create(ctx context.Context, file *models.UploadedFile) error
}

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *models.UploadedFile) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		logger.Error("Create: Failed to create file record in DB",
			zap.String("uploadID", file.UploadID),
			zap.String("objectKey", file.ObjectKey),
			zap.Error(err))
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}
