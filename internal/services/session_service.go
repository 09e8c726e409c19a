// internal/services/session_service.go
package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/state"
	"github.com/Corphon/ScriptStudioMCP/internal/storage"
	"github.com/Corphon/ScriptStudioMCP/internal/utils"
)

// Session 一个创作会话：ID + 状态存储
type Session struct {
	ID        string
	Store     *state.Store
	CreatedAt time.Time
}

// SessionService 管理所有活动会话
type SessionService struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
	ttl      time.Duration
	storage  *storage.FileStorage
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSessionService 创建会话服务实例。
// fileStorage可为nil；传入时会话移除会连带删除其导出产物目录。
func NewSessionService(ttl time.Duration, fileStorage *storage.FileStorage) *SessionService {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	s := &SessionService{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		storage:  fileStorage,
		stopCh:   make(chan struct{}),
	}

	// 启动过期会话清理
	go s.cleanupLoop()

	return s
}

// CreateSession 创建新会话
func (s *SessionService) CreateSession() *Session {
	session := &Session{
		ID:        uuid.NewString(),
		Store:     state.NewStore(),
		CreatedAt: time.Now(),
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions[session.ID] = session

	return session
}

// GetSession 获取会话，不存在时返回未找到错误
func (s *SessionService) GetSession(id string) (*Session, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, apperrors.NewNotFoundError("会话不存在: "+id, nil)
	}

	return session, nil
}

// RemoveSession 删除会话及其导出产物
func (s *SessionService) RemoveSession(id string) {
	s.mutex.Lock()
	delete(s.sessions, id)
	s.mutex.Unlock()

	s.removeArtifacts(id)
}

// Count 返回活动会话数
func (s *SessionService) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sessions)
}

// Stop 停止清理循环
func (s *SessionService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// cleanupLoop 周期性移除超过TTL未活动的会话
func (s *SessionService) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *SessionService) removeExpired() {
	cutoff := time.Now().Add(-s.ttl)
	var expired []string

	s.mutex.Lock()
	for id, session := range s.sessions {
		if session.Store.LastTouched().Before(cutoff) {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	s.mutex.Unlock()

	for _, id := range expired {
		s.removeArtifacts(id)
		utils.GetLogger().WithField("session_id", id).Info("清理过期会话")
	}
}

// removeArtifacts 删除会话的导出产物目录，失败只记日志
func (s *SessionService) removeArtifacts(id string) {
	if s.storage == nil {
		return
	}
	if err := s.storage.RemoveDir(id); err != nil {
		utils.GetLogger().WithFields(map[string]interface{}{
			"session_id": id,
			"error":      err.Error(),
		}).Warn("清理会话导出产物失败")
	}
}
