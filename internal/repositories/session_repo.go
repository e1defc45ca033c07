package repositories

import (
	"context"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
)

// SessionRepository 上传会话存储
// 所有方法在会话不存在时返回 xerr.ErrUploadSessionNotFound（Delete 除外）
type SessionRepository interface {
	Create(ctx context.Context, session *models.UploadSession) error
	// Get 返回会话快照，ReceivedChunks 升序
	Get(ctx context.Context, uploadID string) (*models.UploadSession, error)
	// AddChunk 原子地把 index 加入已收到集合，返回加入后的分片数
	// 首个分片会把状态从 initiated 改为 in_progress
	AddChunk(ctx context.Context, uploadID string, index int) (int, error)
	SetStatus(ctx context.Context, uploadID string, status models.UploadStatus) error
	// Delete 删除会话，不存在时不返回错误
	Delete(ctx context.Context, uploadID string) error

	// TryLock 获取合并锁，锁在 ttl 后自动失效，返回的 token 用于释放
	TryLock(ctx context.Context, uploadID string, ttl time.Duration) (token string, ok bool, err error)
	// RefreshLock 在 token 仍持有锁时把有效期重置为 ttl，锁已过期或被他人持有时返回 false
	RefreshLock(ctx context.Context, uploadID, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, uploadID, token string) error

	// ListUpdatedBefore 返回最后更新时间早于 before 的会话 id，最多 limit 个
	ListUpdatedBefore(ctx context.Context, before time.Time, limit int) ([]string, error)
	Ping(ctx context.Context) error
}
