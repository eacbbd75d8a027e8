package game

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/board-sync/internal/cache"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
)

// SessionManager 游戏会话管理器：打开/关闭界面对应会话的创建与拆除
type SessionManager struct {
	mu           sync.RWMutex
	sessions     map[models.GameID]*Session
	logger       *zap.Logger
	transport    Transport
	lobby        *Gateway
	variant      *models.Variant
	username     string
	pollInterval time.Duration
	idleTimeout  time.Duration
	maxSessions  int
	onSyncError  func(id models.GameID, err error)
	observers    []cache.Observer
}

// SessionConfig 会话管理器配置
type SessionConfig struct {
	Logger       *zap.Logger
	Transport    Transport
	Variant      *models.Variant
	Username     string
	PollInterval time.Duration
	IdleTimeout  time.Duration // 已结束会话保留时长
	MaxSessions  int
	OnSyncError  func(id models.GameID, err error)
	Observers    []cache.Observer // 挂到每个新会话上
}

// NewSessionManager 创建会话管理器
func NewSessionManager(config *SessionConfig) *SessionManager {
	l := config.Logger
	if l == nil {
		l = zap.NewNop()
	}
	maxSessions := config.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 16
	}
	return &SessionManager{
		sessions:     make(map[models.GameID]*Session),
		logger:       l,
		transport:    config.Transport,
		lobby:        NewGateway(config.Transport, 0, nil, l),
		variant:      config.Variant,
		username:     config.Username,
		pollInterval: config.PollInterval,
		idleTimeout:  config.IdleTimeout,
		maxSessions:  maxSessions,
		onSyncError:  config.OnSyncError,
		observers:    config.Observers,
	}
}

// OpenSession 打开会话并开始轮询。observers 在轮询开始前订阅，能收到首次同步的通知；
// 会话已打开时直接返回，并向新的订阅者补发当前全部实体。
func (sm *SessionManager) OpenSession(ctx context.Context, id models.GameID, observers ...cache.Observer) (*Session, error) {
	sm.mu.Lock()
	if session, exists := sm.sessions[id]; exists {
		sm.mu.Unlock()
		for _, o := range observers {
			session.Subscribe(o)
			session.Replay(o)
		}
		return session, nil
	}
	defer sm.mu.Unlock()

	// 检查会话数量限制
	if len(sm.sessions) >= sm.maxSessions {
		return nil, apperrors.Newf(apperrors.ErrSessionLimit, "上限=%d", sm.maxSessions)
	}

	opts := SessionOptions{
		GameID:       id,
		Variant:      sm.variant,
		Username:     sm.username,
		Transport:    sm.transport,
		PollInterval: sm.pollInterval,
		Logger:       sm.logger,
		Observers:    append(append([]cache.Observer(nil), sm.observers...), observers...),
	}
	if sm.onSyncError != nil {
		onSyncError := sm.onSyncError
		opts.OnSyncError = func(err error) { onSyncError(id, err) }
	}

	session, err := NewSession(opts)
	if err != nil {
		return nil, err
	}
	if err := session.Start(); err != nil {
		return nil, err
	}
	sm.sessions[id] = session

	sm.logger.Info("打开游戏会话",
		zap.Int64("game_id", int64(id)),
		zap.String("username", sm.username))

	return session, nil
}

// NewSession 请求服务器创建新会话并打开
func (sm *SessionManager) NewSession(ctx context.Context, observers ...cache.Observer) (*Session, error) {
	id, err := sm.lobby.RequestNewSession(ctx)
	if err != nil {
		return nil, err
	}
	return sm.OpenSession(ctx, id, observers...)
}

// Lobby 获取大厅列表
func (sm *SessionManager) Lobby(ctx context.Context) ([]models.LobbyGame, error) {
	return sm.lobby.Lobby(ctx)
}

// GetSession 获取会话
func (sm *SessionManager) GetSession(id models.GameID) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[id]
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "会话不存在: %d", id)
	}
	return session, nil
}

// CloseSession 关闭并移除会话
func (sm *SessionManager) CloseSession(id models.GameID) error {
	sm.mu.Lock()
	session, exists := sm.sessions[id]
	if !exists {
		sm.mu.Unlock()
		return apperrors.Newf(apperrors.ErrNotFound, "会话不存在: %d", id)
	}
	delete(sm.sessions, id)
	sm.mu.Unlock()

	session.Close()

	sm.logger.Info("移除游戏会话",
		zap.Int64("game_id", int64(id)),
		zap.Duration("duration", time.Since(session.StartTime)))

	return nil
}

// CloseAll 关闭全部会话
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[models.GameID]*Session)
	sm.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

// CleanupFinishedSessions 清理结束超过保留时长的会话
func (sm *SessionManager) CleanupFinishedSessions() {
	sm.mu.Lock()
	now := time.Now()
	var toRemove []*Session

	for id, session := range sm.sessions {
		session.mu.Lock()
		finishedAt := session.FinishedAt
		session.mu.Unlock()

		if !finishedAt.IsZero() && now.Sub(finishedAt) > sm.idleTimeout {
			toRemove = append(toRemove, session)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, session := range toRemove {
		session.Close()
		sm.logger.Info("清理已结束会话", zap.Int64("game_id", int64(session.ID())))
	}
}

// StartCleanupTask 启动清理任务
func (sm *SessionManager) StartCleanupTask(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				sm.logger.Info("停止会话清理任务")
				return
			case <-ticker.C:
				sm.CleanupFinishedSessions()
			}
		}
	}()
}

// SetPollInterval 调整全部会话的轮询间隔（配置热更新）
func (sm *SessionManager) SetPollInterval(d time.Duration) {
	sm.mu.Lock()
	sm.pollInterval = d
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		sessions = append(sessions, session)
	}
	sm.mu.Unlock()

	for _, session := range sessions {
		session.Scheduler().SetInterval(d)
	}
	sm.logger.Info("更新轮询间隔", zap.Duration("interval", d))
}

// GetActiveSessions 获取活跃会话数
func (sm *SessionManager) GetActiveSessions() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// GetSessionStats 获取会话统计
func (sm *SessionManager) GetSessionStats(id models.GameID) (map[string]interface{}, error) {
	session, err := sm.GetSession(id)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	status, _ := session.cache.Status()
	stats := map[string]interface{}{
		"game_id":      int64(session.id),
		"status":       status.String(),
		"cursor":       int64(session.cache.Cursor()),
		"local_player": int64(session.localPlayer),
		"selection":    string(session.selection.State()),
		"units":        len(session.cache.Units()),
		"history":      len(session.cache.History()),
		"start_time":   session.StartTime,
		"duration":     time.Since(session.StartTime).Seconds(),
	}

	return stats, nil
}
