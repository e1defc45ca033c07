package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/metrics"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/storage"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/3Eeeecho/go-chunkupload/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxFilenameBytes   = 255
	lockPollInterval   = 50 * time.Millisecond
	minRenewInterval   = 10 * time.Millisecond
	defaultContentType = "application/octet-stream"
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,16}$`)

// UploadService 分片上传会话的生命周期
type UploadService interface {
	Initiate(ctx context.Context, req *models.InitiateUploadRequest) (string, error)
	UploadChunk(ctx context.Context, uploadID string, index int, chunk io.Reader, size int64) (*ChunkResult, error)
	Complete(ctx context.Context, uploadID string) (*models.CompletedUpload, error)
	GetProgress(ctx context.Context, uploadID string) (*models.UploadProgress, error)
	Cancel(ctx context.Context, uploadID string) error
}

// ChunkResult 单个分片上传后的进度
type ChunkResult struct {
	Progress       float64 `json:"progress"`
	UploadedChunks int     `json:"uploaded_chunks"`
	TotalChunks    int     `json:"total_chunks"`
}

// EventPublisher 合并成功后的通知，发送失败不影响上传结果
type EventPublisher interface {
	PublishUploadCompleted(ctx context.Context, event *models.UploadCompletedEvent) error
}

type UploadServiceDeps struct {
	Sessions  repositories.SessionRepository
	Chunks    *ChunkStore
	Assembler *Assembler
	Storage   storage.StorageService
	Files     repositories.FileRepository // 可为 nil
	Publisher EventPublisher              // 可为 nil
	Config    config.UploadConfig
}

type uploadService struct {
	deps UploadServiceDeps
	now  func() time.Time
}

func NewUploadService(deps UploadServiceDeps) UploadService {
	return &uploadService{deps: deps, now: time.Now}
}

// Initiate 校验参数并创建新的上传会话
func (s *uploadService) Initiate(ctx context.Context, req *models.InitiateUploadRequest) (string, error) {
	// 校验时忽略首尾空白，保存和返回的仍是客户端给出的原始文件名
	if err := s.validateInitiate(strings.TrimSpace(req.Filename), req); err != nil {
		return "", err
	}

	now := s.now()
	session := &models.UploadSession{
		ID:             uuid.NewString(),
		Filename:       req.Filename,
		DeclaredSize:   req.FileSize,
		ChunkSize:      req.ChunkSize,
		TotalChunks:    req.TotalChunks,
		ReceivedChunks: []int{},
		Status:         models.UploadStatusInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.deps.Sessions.Create(ctx, session); err != nil {
		logger.Error("Initiate: Failed to create upload session", zap.Error(err))
		return "", err
	}

	metrics.UploadsInitiated.Inc()
	logger.Info("Initiate: Upload session created",
		zap.String("uploadID", session.ID),
		zap.String("filename", req.Filename),
		zap.Int64("declaredSize", req.FileSize),
		zap.Int64("chunkSize", req.ChunkSize),
		zap.Int("totalChunks", req.TotalChunks))
	return session.ID, nil
}

func (s *uploadService) validateInitiate(filename string, req *models.InitiateUploadRequest) error {
	cfg := s.deps.Config
	switch {
	case filename == "":
		return xerr.NewValidationError("filename", "must not be empty")
	case len(req.Filename) > maxFilenameBytes:
		return xerr.NewValidationError("filename", fmt.Sprintf("must be at most %d bytes", maxFilenameBytes))
	case req.FileSize < 1:
		return xerr.NewValidationError("filesize", "must be at least 1")
	case cfg.MaxFileSize > 0 && req.FileSize > cfg.MaxFileSize:
		return xerr.NewValidationError("filesize", fmt.Sprintf("must be at most %d", cfg.MaxFileSize))
	case req.ChunkSize < 1 || req.ChunkSize < cfg.MinChunkSize || req.ChunkSize > cfg.MaxChunkSize:
		return xerr.NewValidationError("chunk_size", fmt.Sprintf("must be between %d and %d", cfg.MinChunkSize, cfg.MaxChunkSize))
	case req.TotalChunks < 1:
		return xerr.NewValidationError("total_chunks", "must be at least 1")
	case cfg.MaxChunks > 0 && req.TotalChunks > cfg.MaxChunks:
		return xerr.NewValidationError("total_chunks", fmt.Sprintf("must be at most %d", cfg.MaxChunks))
	// 用除法比较，max_chunks 为 0 时乘法可能溢出
	case (req.FileSize-1)/req.ChunkSize >= int64(req.TotalChunks):
		return xerr.NewValidationError("filesize", "exceeds chunk_size * total_chunks")
	}
	return nil
}

// UploadChunk 保存一个分片并记录序号，同一序号重复上传时后写入的覆盖先写入的
func (s *uploadService) UploadChunk(ctx context.Context, uploadID string, index int, chunk io.Reader, size int64) (*ChunkResult, error) {
	session, err := s.getSession(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, fmt.Errorf("%w: %d is not in [0, %d)", xerr.ErrInvalidChunkIndex, index, session.TotalChunks)
	}
	if size <= 0 {
		return nil, xerr.NewValidationError("chunk", "must not be empty")
	}
	if size > session.ChunkSize {
		return nil, xerr.NewValidationError("chunk", fmt.Sprintf("is %d bytes, larger than chunk_size %d", size, session.ChunkSize))
	}

	if err := s.deps.Chunks.Put(ctx, uploadID, index, chunk, size); err != nil {
		logger.Error("UploadChunk: Failed to store chunk",
			zap.String("uploadID", uploadID), zap.Int("chunkIndex", index), zap.Error(err))
		return nil, xerr.NewCodeError(xerr.StorageErrorCode, err)
	}

	received, err := s.deps.Sessions.AddChunk(ctx, uploadID, index)
	if err != nil {
		if errors.Is(err, xerr.ErrUploadSessionNotFound) {
			// 会话在写入期间被取消或已完成，分片不再需要
			_ = s.deps.Storage.RemoveObject(ctx, s.deps.Chunks.chunkKey(uploadID, index))
		}
		return nil, err
	}

	metrics.ChunksReceived.Inc()
	metrics.ChunkBytes.Add(float64(size))
	logger.Debug("UploadChunk: Chunk stored",
		zap.String("uploadID", uploadID), zap.Int("chunkIndex", index), zap.Int("received", received))
	return &ChunkResult{
		Progress:       models.Progress(received, session.TotalChunks),
		UploadedChunks: received,
		TotalChunks:    session.TotalChunks,
	}, nil
}

// Complete 合并全部分片并发布最终文件
// 同一会话并发调用时只有一个会执行合并，其余等待锁释放后得到 SessionNotFound
func (s *uploadService) Complete(ctx context.Context, uploadID string) (*models.CompletedUpload, error) {
	session, err := s.getSession(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if !session.IsComplete() {
		return nil, &xerr.IncompleteUploadError{Uploaded: len(session.ReceivedChunks), Total: session.TotalChunks}
	}

	token, err := s.acquireCompleteLock(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	defer func() {
		// 请求可能已被取消，释放锁使用独立的 ctx
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Sessions.Unlock(unlockCtx, uploadID, token); err != nil {
			logger.Warn("Complete: Failed to release completion lock", zap.String("uploadID", uploadID), zap.Error(err))
		}
	}()
	lockCtx, stopRenew := s.keepCompleteLock(ctx, uploadID, token)
	defer stopRenew()

	// 拿到锁之后重新读取，前一个持有者可能已经完成了合并
	session, err = s.getSession(lockCtx, uploadID)
	if err != nil {
		return nil, err
	}
	if !session.IsComplete() {
		return nil, &xerr.IncompleteUploadError{Uploaded: len(session.ReceivedChunks), Total: session.TotalChunks}
	}

	start := s.now()
	result, err := s.assembleAndPublish(lockCtx, session, token)
	if err != nil {
		if errors.Is(context.Cause(lockCtx), xerr.ErrCompletionLockLost) {
			err = xerr.ErrCompletionLockLost
		}
		metrics.UploadsCompleted.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.UploadsCompleted.WithLabelValues("success").Inc()
	metrics.AssembleDuration.Observe(s.now().Sub(start).Seconds())
	return result, nil
}

func (s *uploadService) assembleAndPublish(ctx context.Context, session *models.UploadSession, token string) (*models.CompletedUpload, error) {
	uploadID := session.ID
	assembled, err := s.deps.Assembler.Assemble(ctx, session)
	if err != nil {
		var missing *xerr.MissingChunkError
		if errors.As(err, &missing) && !s.sessionExists(ctx, uploadID) {
			// 合并期间会话被取消，分片随之被删除
			return nil, xerr.ErrUploadSessionNotFound
		}
		logger.Error("Complete: Failed to assemble chunks", zap.String("uploadID", uploadID), zap.Error(err))
		return nil, err
	}
	defer assembled.Close()

	if !s.sessionExists(ctx, uploadID) {
		logger.Info("Complete: Session cancelled during assembly, discarding output", zap.String("uploadID", uploadID))
		return nil, xerr.ErrUploadSessionNotFound
	}

	if err := s.checkCompleteLock(ctx, uploadID, token); err != nil {
		return nil, err
	}

	now := s.now()
	fileUUID := uuid.NewString()
	ext := safeExt(session.Filename)
	objectKey := storage.JoinKey(s.deps.Config.FilePrefix, now.Format("2006/01/02"), fileUUID+ext)
	contentType := contentTypeFor(ext)

	put, err := s.deps.Assembler.Publish(ctx, assembled, objectKey, contentType)
	if err != nil {
		logger.Error("Complete: Failed to publish assembled file", zap.String("uploadID", uploadID), zap.Error(err))
		return nil, xerr.NewCodeError(xerr.StorageErrorCode, err)
	}

	// 上传最终文件耗时最长，期间锁可能已被他人取得
	if err := s.checkCompleteLock(ctx, uploadID, token); err != nil {
		_ = s.deps.Storage.RemoveObject(context.Background(), put.Key)
		return nil, err
	}

	if s.deps.Files != nil {
		record := &models.UploadedFile{
			UUID:             fileUUID,
			UploadID:         uploadID,
			OriginalFilename: session.Filename,
			StorageType:      s.deps.Storage.Type(),
			ObjectKey:        put.Key,
			Size:             assembled.Size,
			MimeType:         contentType,
			SHA256:           assembled.Checksum,
		}
		if bucket := s.deps.Storage.Bucket(); bucket != "" && s.deps.Storage.Type() != storage.TypeLocal {
			record.Bucket = &bucket
		}
		if err := s.deps.Files.Create(ctx, record); err != nil {
			// 记录失败时撤销发布，会话保持原样，客户端可以重试
			_ = s.deps.Storage.RemoveObject(context.Background(), put.Key)
			return nil, xerr.NewCodeError(xerr.DatabaseErrorCode, err)
		}
	}

	// 此后失败的清理交给后台清理任务
	if err := s.deps.Sessions.SetStatus(ctx, uploadID, models.UploadStatusCompleted); err != nil && !errors.Is(err, xerr.ErrUploadSessionNotFound) {
		logger.Warn("Complete: Failed to mark session completed", zap.String("uploadID", uploadID), zap.Error(err))
	}
	if err := s.deps.Chunks.RemoveAll(ctx, uploadID); err != nil {
		logger.Warn("Complete: Failed to remove chunk workspace", zap.String("uploadID", uploadID), zap.Error(err))
	}
	if err := s.deps.Sessions.Delete(ctx, uploadID); err != nil {
		logger.Warn("Complete: Failed to delete session", zap.String("uploadID", uploadID), zap.Error(err))
	}

	result := &models.CompletedUpload{
		UploadID:    uploadID,
		FilePath:    put.Key,
		FileSize:    assembled.Size,
		Filename:    session.Filename,
		ContentType: contentType,
		Checksum:    assembled.Checksum,
	}
	s.publishCompleted(ctx, fileUUID, result, now)

	logger.Info("Complete: Upload assembled and published",
		zap.String("uploadID", uploadID),
		zap.String("objectKey", put.Key),
		zap.Int64("size", assembled.Size),
		zap.String("sha256", assembled.Checksum))
	return result, nil
}

func (s *uploadService) publishCompleted(ctx context.Context, fileUUID string, r *models.CompletedUpload, at time.Time) {
	if s.deps.Publisher == nil {
		return
	}
	event := &models.UploadCompletedEvent{
		UploadID:    r.UploadID,
		FileUUID:    fileUUID,
		ObjectKey:   r.FilePath,
		Filename:    r.Filename,
		Size:        r.FileSize,
		ContentType: r.ContentType,
		Checksum:    r.Checksum,
		CompletedAt: at,
	}
	if err := s.deps.Publisher.PublishUploadCompleted(ctx, event); err != nil {
		logger.Warn("Complete: Failed to publish completion event", zap.String("uploadID", r.UploadID), zap.Error(err))
	}
}

// GetProgress 只读查询
func (s *uploadService) GetProgress(ctx context.Context, uploadID string) (*models.UploadProgress, error) {
	session, err := s.getSession(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	indices := session.ReceivedChunks
	if indices == nil {
		indices = []int{}
	}
	return &models.UploadProgress{
		UploadID:        session.ID,
		Progress:        session.Progress(),
		UploadedChunks:  len(session.ReceivedChunks),
		TotalChunks:     session.TotalChunks,
		Status:          session.Status,
		Filename:        session.Filename,
		ReceivedIndices: indices,
	}, nil
}

// Cancel 幂等，未知的 id 同样返回成功
// 先删除元数据，使并发的分片上传和合并都能感知到取消
func (s *uploadService) Cancel(ctx context.Context, uploadID string) error {
	if _, err := uuid.Parse(uploadID); err != nil {
		return nil
	}
	if err := s.deps.Sessions.Delete(ctx, uploadID); err != nil {
		logger.Error("Cancel: Failed to delete session", zap.String("uploadID", uploadID), zap.Error(err))
		return err
	}
	if err := s.deps.Chunks.RemoveAll(ctx, uploadID); err != nil {
		logger.Error("Cancel: Failed to remove chunk workspace", zap.String("uploadID", uploadID), zap.Error(err))
		return xerr.NewCodeError(xerr.StorageErrorCode, err)
	}
	metrics.UploadsCancelled.Inc()
	logger.Info("Cancel: Upload session cancelled", zap.String("uploadID", uploadID))
	return nil
}

// getSession 非 UUID 的 id 直接视为不存在，避免拼接出异常的存储路径
// completed 状态的会话正在或已经完成合并，对外同样不存在
func (s *uploadService) getSession(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	if _, err := uuid.Parse(uploadID); err != nil {
		return nil, xerr.ErrUploadSessionNotFound
	}
	session, err := s.deps.Sessions.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.UploadStatusCompleted || session.Status == models.UploadStatusCancelled {
		return nil, xerr.ErrUploadSessionNotFound
	}
	return session, nil
}

func (s *uploadService) sessionExists(ctx context.Context, uploadID string) bool {
	_, err := s.getSession(ctx, uploadID)
	return err == nil
}

func (s *uploadService) acquireCompleteLock(ctx context.Context, uploadID string) (string, error) {
	deadline := s.now().Add(s.deps.Config.CompleteWaitTimeout)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		token, ok, err := s.deps.Sessions.TryLock(ctx, uploadID, s.deps.Config.CompleteLockTTL)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if !s.now().Before(deadline) {
			return "", xerr.ErrCompletionInFlight
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// keepCompleteLock 合并期间按 ttl/3 续期合并锁
// 续期失败说明锁已过期并可能被他人取得，返回的 ctx 随之取消，cause 为 ErrCompletionLockLost
func (s *uploadService) keepCompleteLock(ctx context.Context, uploadID, token string) (context.Context, func()) {
	ttl := s.deps.Config.CompleteLockTTL
	interval := ttl / 3
	if interval < minRenewInterval {
		interval = minRenewInterval
	}
	lockCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-lockCtx.Done():
				return
			case <-ticker.C:
			}
			ok, err := s.deps.Sessions.RefreshLock(lockCtx, uploadID, token, ttl)
			if err != nil {
				// 暂时性错误，下次继续，锁真的过期时由发布前的检查兜底
				logger.Warn("Complete: Failed to renew completion lock", zap.String("uploadID", uploadID), zap.Error(err))
				continue
			}
			if !ok {
				logger.Error("Complete: Completion lock lost, aborting", zap.String("uploadID", uploadID))
				cancel(xerr.ErrCompletionLockLost)
				return
			}
		}
	}()

	return lockCtx, func() {
		close(stop)
		<-stopped
		cancel(nil)
	}
}

// checkCompleteLock 确认仍持有合并锁，同时续期
func (s *uploadService) checkCompleteLock(ctx context.Context, uploadID, token string) error {
	if errors.Is(context.Cause(ctx), xerr.ErrCompletionLockLost) {
		return xerr.ErrCompletionLockLost
	}
	ok, err := s.deps.Sessions.RefreshLock(ctx, uploadID, token, s.deps.Config.CompleteLockTTL)
	if err != nil {
		logger.Error("Complete: Failed to verify completion lock", zap.String("uploadID", uploadID), zap.Error(err))
		return err
	}
	if !ok {
		logger.Error("Complete: Completion lock lost, discarding output", zap.String("uploadID", uploadID))
		return xerr.ErrCompletionLockLost
	}
	return nil
}

// safeExt 从不可信的文件名中取出扩展名，只保留小写字母和数字
func safeExt(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

func contentTypeFor(ext string) string {
	if ext == "" {
		return defaultContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultContentType
}
