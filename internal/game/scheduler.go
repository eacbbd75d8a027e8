package game

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/board-sync/internal/cache"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/logger"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
)

// DefaultPollInterval 默认轮询间隔
const DefaultPollInterval = 2 * time.Second

// SchedulerState 调度器状态
type SchedulerState string

const (
	SchedulerIdle    SchedulerState = "idle"
	SchedulerPolling SchedulerState = "polling"
	SchedulerStopped SchedulerState = "stopped"
)

// SnapshotFetcher 按游标拉取快照
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, id models.GameID, cursor models.Cursor) (*models.Snapshot, error)
}

// SyncTarget 快照的合并目标（会话）
type SyncTarget interface {
	Cursor() models.Cursor
	// Apply 合并快照，返回变更以及会话是否已结束
	Apply(snap *models.Snapshot) (changes []cache.Change, finished bool)
	// Notify 在调度器释放锁之后分发变更
	Notify(changes []cache.Change)
}

// Scheduler 轮询调度器：拉取 -> 合并 -> 决定是否重新排期。
// 同一时刻最多一个请求在途；下一次轮询只在上一次完成后排期。
type Scheduler struct {
	mu       sync.Mutex
	gameID   models.GameID
	fetcher  SnapshotFetcher
	target   SyncTarget
	interval time.Duration
	logger   *zap.Logger

	state    SchedulerState
	inFlight bool
	pending  bool
	timer    *time.Timer
	gen      uint64

	ctx    context.Context
	cancel context.CancelFunc

	onError func(err error)
}

// NewScheduler 创建调度器
func NewScheduler(gameID models.GameID, fetcher SnapshotFetcher, target SyncTarget, interval time.Duration, l *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if l == nil {
		l = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gameID:   gameID,
		fetcher:  fetcher,
		target:   target,
		interval: interval,
		logger:   l,
		state:    SchedulerIdle,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnError 设置拉取失败回调
func (s *Scheduler) OnError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// State 获取当前状态
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Interval 获取轮询间隔
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval 修改轮询间隔，已排期的下一次轮询按新间隔重新排期
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interval = d
	if s.state == SchedulerPolling && !s.inFlight {
		s.arm()
	}
}

// Start Idle -> Polling，并立即发起一次拉取
func (s *Scheduler) Start() error {
	s.mu.Lock()
	switch s.state {
	case SchedulerStopped:
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrSessionStopped)
	case SchedulerPolling:
		s.mu.Unlock()
		return apperrors.Newf(apperrors.ErrInvalidTransition, "调度器已在运行")
	}

	s.state = SchedulerPolling
	if s.inFlight {
		// 正在进行的 SyncNow 完成后会排期
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.mu.Unlock()

	logger.LogSyncEvent(s.logger, "start", int64(s.gameID), 0)
	go s.run(s.ctx)
	return nil
}

// Stop 停止调度。返回后不会再发生任何合并，也不会再触发轮询。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == SchedulerStopped {
		s.mu.Unlock()
		return
	}
	s.state = SchedulerStopped
	s.pending = false
	s.disarm()
	s.cancel()
	s.mu.Unlock()

	logger.LogSyncEvent(s.logger, "stop", int64(s.gameID), 0)
}

// SyncNow 绕过定时器立即同步一次。
// 已有请求在途时只记录一次待办，由在途请求完成后立即补发，本次直接返回。
func (s *Scheduler) SyncNow(ctx context.Context) error {
	s.mu.Lock()
	if s.state == SchedulerStopped {
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrSessionStopped)
	}
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.disarm()
	s.mu.Unlock()

	return s.run(ctx)
}

// run 执行一次拉取，并串行补发期间积累的待办请求；调用前 inFlight 已置位
func (s *Scheduler) run(ctx context.Context) error {
	again, err := s.flight(ctx)
	for again {
		// 补发的请求属于调度器自身，不再受调用方上下文约束
		again, _ = s.flight(s.ctx)
	}
	return err
}

func (s *Scheduler) flight(ctx context.Context) (bool, error) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	cursor := s.target.Cursor()
	snap, fetchErr := s.fetcher.FetchSnapshot(fctx, s.gameID, cursor)

	s.mu.Lock()
	if s.state == SchedulerStopped {
		s.inFlight = false
		s.mu.Unlock()
		logger.LogSyncEvent(s.logger, "late_response_dropped", int64(s.gameID), int64(cursor))
		return false, apperrors.New(apperrors.ErrSessionStopped)
	}

	var changes []cache.Change
	if fetchErr == nil {
		var finished bool
		changes, finished = s.target.Apply(snap)
		if finished {
			s.state = SchedulerStopped
			s.cancel()
			logger.LogSyncEvent(s.logger, "finished", int64(s.gameID), int64(s.target.Cursor()))
		}
	}

	again := s.pending && s.state != SchedulerStopped
	s.pending = false
	if !again {
		s.inFlight = false
		if s.state == SchedulerPolling {
			s.arm()
		}
	}
	onError := s.onError
	s.mu.Unlock()

	if len(changes) > 0 {
		s.target.Notify(changes)
	}

	if fetchErr != nil {
		err := fetchErr
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.Wrap(fetchErr, apperrors.ErrTransport)
		}
		s.logger.Warn("拉取快照失败",
			zap.Int64("game_id", int64(s.gameID)),
			zap.Int64("cursor", int64(cursor)),
			zap.Error(err))
		if onError != nil {
			onError(err)
		}
		return again, err
	}

	logger.LogSyncEvent(s.logger, "synced", int64(s.gameID), int64(cursor), zap.Int("changes", len(changes)))
	return again, nil
}

// arm 排期下一次轮询；调用方需持有锁
func (s *Scheduler) arm() {
	s.disarm()
	gen := s.gen
	s.timer = time.AfterFunc(s.interval, func() { s.tick(gen) })
}

// disarm 取消已排期的轮询；调用方需持有锁
func (s *Scheduler) disarm() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != SchedulerPolling || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.inFlight = true
	s.mu.Unlock()

	_ = s.run(s.ctx)
}
