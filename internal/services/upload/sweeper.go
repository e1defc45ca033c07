package upload

import (
	"context"
	"errors"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/metrics"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/3Eeeecho/go-chunkupload/internal/repositories"
	"go.uber.org/zap"
)

const sweepBatchSize = 500

// Sweeper 定期回收过期会话、崩溃后遗留的 completed 会话以及没有会话的分片目录
type Sweeper struct {
	sessions   repositories.SessionRepository
	chunks     *ChunkStore
	sessionTTL time.Duration
	lockTTL    time.Duration
	interval   time.Duration
	now        func() time.Time
}

func NewSweeper(sessions repositories.SessionRepository, chunks *ChunkStore, sessionTTL, lockTTL, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessions:   sessions,
		chunks:     chunks,
		sessionTTL: sessionTTL,
		lockTTL:    lockTTL,
		interval:   interval,
		now:        time.Now,
	}
}

// Run 阻塞直到 ctx 结束
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		logger.Info("Sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logger.Info("Sweeper started", zap.Duration("interval", s.interval), zap.Duration("sessionTTL", s.sessionTTL))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Sweeper: sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepResult 一次清理的统计
type SweepResult struct {
	ExpiredSessions    int
	CompletedLeftovers int
	OrphanWorkspaces   int
}

// SweepOnce 执行一次清理
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	// completed 状态只会在合并锁有效期内短暂存在，超过锁的有效期说明合并进程已经退出
	cutoff := now.Add(-s.lockTTL)
	if s.sessionTTL < s.lockTTL {
		cutoff = now.Add(-s.sessionTTL)
	}
	ids, err := s.sessions.ListUpdatedBefore(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		session, err := s.sessions.Get(ctx, id)
		if err != nil {
			if errors.Is(err, xerr.ErrUploadSessionNotFound) {
				// 元数据已过期，只剩索引和分片
				_ = s.sessions.Delete(ctx, id)
				s.removeWorkspace(ctx, id)
				res.ExpiredSessions++
				continue
			}
			return res, err
		}
		switch {
		case session.Status == models.UploadStatusCompleted:
			if s.reclaim(ctx, id) {
				res.CompletedLeftovers++
			}
		case now.Sub(session.UpdatedAt) > s.sessionTTL:
			if s.reclaim(ctx, id) {
				res.ExpiredSessions++
			}
		}
	}

	orphans, err := s.sweepOrphanWorkspaces(ctx)
	res.OrphanWorkspaces = orphans
	if err != nil {
		return res, err
	}

	metrics.SessionsSwept.WithLabelValues("expired").Add(float64(res.ExpiredSessions))
	metrics.SessionsSwept.WithLabelValues("completed").Add(float64(res.CompletedLeftovers))
	metrics.SessionsSwept.WithLabelValues("orphan").Add(float64(res.OrphanWorkspaces))
	if res != (SweepResult{}) {
		logger.Info("Sweeper: reclaimed upload resources",
			zap.Int("expired", res.ExpiredSessions),
			zap.Int("completed", res.CompletedLeftovers),
			zap.Int("orphans", res.OrphanWorkspaces))
	}
	return res, nil
}

// reclaim 持有合并锁时删除会话和分片，锁被占用说明正在合并，跳过
func (s *Sweeper) reclaim(ctx context.Context, id string) bool {
	token, ok, err := s.sessions.TryLock(ctx, id, s.lockTTL)
	if err != nil || !ok {
		return false
	}
	defer func() { _ = s.sessions.Unlock(ctx, id, token) }()

	if err := s.sessions.Delete(ctx, id); err != nil {
		logger.Warn("Sweeper: failed to delete session", zap.String("uploadID", id), zap.Error(err))
		return false
	}
	s.removeWorkspace(ctx, id)
	return true
}

func (s *Sweeper) removeWorkspace(ctx context.Context, id string) {
	if err := s.chunks.RemoveAll(ctx, id); err != nil {
		logger.Warn("Sweeper: failed to remove workspace", zap.String("uploadID", id), zap.Error(err))
	}
}

// sweepOrphanWorkspaces 删除没有对应会话的分片目录
// 分片先于 AddChunk 写入，会话被删除后到达的分片会留下这种目录
func (s *Sweeper) sweepOrphanWorkspaces(ctx context.Context) (int, error) {
	ids, err := s.chunks.ListUploadIDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		_, err := s.sessions.Get(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, xerr.ErrUploadSessionNotFound) {
			return n, err
		}
		s.removeWorkspace(ctx, id)
		n++
	}
	return n, nil
}
