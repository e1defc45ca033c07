package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/google/uuid"
)

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// memorySessionRepository 单进程内的会话存储，重启后会话丢失
type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
	locks    map[string]memoryLock
	now      func() time.Time
}

// NewMemorySessionRepository 创建内存会话存储
func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{
		sessions: make(map[string]*models.UploadSession),
		locks:    make(map[string]memoryLock),
		now:      time.Now,
	}
}

func (r *memorySessionRepository) Create(ctx context.Context, session *models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *memorySessionRepository) Get(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uploadID]
	if !ok {
		return nil, xerr.ErrUploadSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *memorySessionRepository) AddChunk(ctx context.Context, uploadID string, index int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uploadID]
	if !ok || s.Status == models.UploadStatusCompleted {
		return 0, xerr.ErrUploadSessionNotFound
	}
	i := sort.SearchInts(s.ReceivedChunks, index)
	if i == len(s.ReceivedChunks) || s.ReceivedChunks[i] != index {
		s.ReceivedChunks = append(s.ReceivedChunks, 0)
		copy(s.ReceivedChunks[i+1:], s.ReceivedChunks[i:])
		s.ReceivedChunks[i] = index
	}
	if s.Status == models.UploadStatusInitiated {
		s.Status = models.UploadStatusInProgress
	}
	s.UpdatedAt = r.now()
	return len(s.ReceivedChunks), nil
}

func (r *memorySessionRepository) SetStatus(ctx context.Context, uploadID string, status models.UploadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uploadID]
	if !ok {
		return xerr.ErrUploadSessionNotFound
	}
	s.Status = status
	s.UpdatedAt = r.now()
	return nil
}

func (r *memorySessionRepository) Delete(ctx context.Context, uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, uploadID)
	return nil
}

func (r *memorySessionRepository) TryLock(ctx context.Context, uploadID string, ttl time.Duration) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if l, ok := r.locks[uploadID]; ok && now.Before(l.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	r.locks[uploadID] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (r *memorySessionRepository) RefreshLock(ctx context.Context, uploadID, token string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	l, ok := r.locks[uploadID]
	if !ok || l.token != token || !now.Before(l.expiresAt) {
		return false, nil
	}
	l.expiresAt = now.Add(ttl)
	r.locks[uploadID] = l
	return true, nil
}

func (r *memorySessionRepository) Unlock(ctx context.Context, uploadID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[uploadID]; ok && l.token == token {
		delete(r.locks, uploadID)
	}
	return nil
}

func (r *memorySessionRepository) ListUpdatedBefore(ctx context.Context, before time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *memorySessionRepository) Ping(ctx context.Context) error { return nil }

func cloneSession(s *models.UploadSession) *models.UploadSession {
	c := *s
	c.ReceivedChunks = append([]int(nil), s.ReceivedChunks...)
	return &c
}
