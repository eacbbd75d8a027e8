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

// SessionOptions 会话参数
type SessionOptions struct {
	GameID       models.GameID
	Variant      *models.Variant
	Username     string // 本地玩家，用于在快照中识别自己
	Transport    Transport
	PollInterval time.Duration
	Logger       *zap.Logger
	OnSyncError  func(err error)
	// Observers 在开始轮询前挂上，保证首次同步的通知不会丢失
	Observers []cache.Observer
}

// Session 游戏会话：缓存、合并器、选择状态机、调度器与指令网关的上下文。
// mu 串行化所有缓存写入；调度器的锁总是先于 mu 获取。
type Session struct {
	mu          sync.Mutex
	id          models.GameID
	username    string
	localPlayer models.PlayerID
	cache       *cache.Cache
	reconciler  *cache.Reconciler
	selection   *Selection
	observers   []cache.Observer
	closed      bool
	// epoch 每次选择转换或成功合并时递增，用于识别过期的拒绝结果
	epoch uint64

	StartTime    time.Time
	LastActivity time.Time
	FinishedAt   time.Time

	scheduler *Scheduler
	gateway   *Gateway
	logger    *zap.Logger
}

// NewSession 创建会话（尚未开始轮询）
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Transport == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "transport 不能为空")
	}
	if opts.GameID <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "无效的游戏ID: %d", opts.GameID)
	}
	variant := opts.Variant
	if variant == nil {
		variant = models.Chess
	}
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	l = l.With(zap.Int64("game_id", int64(opts.GameID)))

	c := cache.New(variant)
	now := time.Now()
	s := &Session{
		id:           opts.GameID,
		username:     opts.Username,
		cache:        c,
		reconciler:   cache.NewReconciler(l),
		selection:    NewSelection(c, l),
		observers:    append([]cache.Observer(nil), opts.Observers...),
		StartTime:    now,
		LastActivity: now,
		logger:       l,
	}
	s.selection.OnStateChange(s.selectionChanged)
	s.scheduler = NewScheduler(opts.GameID, opts.Transport, s, opts.PollInterval, l)
	if opts.OnSyncError != nil {
		s.scheduler.OnError(opts.OnSyncError)
	}
	s.gateway = NewGateway(opts.Transport, opts.GameID, s.scheduler, l)
	return s, nil
}

// ID 会话ID
func (s *Session) ID() models.GameID {
	return s.id
}

// Scheduler 返回轮询调度器
func (s *Session) Scheduler() *Scheduler {
	return s.scheduler
}

// Gateway 返回指令网关
func (s *Session) Gateway() *Gateway {
	return s.gateway
}

// Start 开始轮询
func (s *Session) Start() error {
	return s.scheduler.Start()
}

// Close 拆除会话：同步停止轮询，之后不会再有任何合并
func (s *Session) Close() {
	s.scheduler.Stop()

	s.mu.Lock()
	s.closed = true
	s.observers = nil
	s.mu.Unlock()

	s.logger.Info("关闭游戏会话")
}

// Closed 是否已关闭
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Subscribe 订阅变更通知
func (s *Session) Subscribe(o cache.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Replay 向订阅者补发当前全部实体，用于会话已在轮询时才挂上的视图
func (s *Session) Replay(o cache.Observer) {
	s.mu.Lock()
	changes := s.cache.Current()
	s.mu.Unlock()

	for _, change := range changes {
		o.OnChange(change)
	}
}

// Read 在会话锁内只读访问缓存
func (s *Session) Read(fn func(c *cache.Cache)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cache)
}

// LocalPlayer 本地玩家ID，0 表示尚未出现在快照中
func (s *Session) LocalPlayer() models.PlayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localPlayer
}

// SelectionState 当前选择状态
func (s *Session) SelectionState() SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.State()
}

// Selected 当前选中的单位
func (s *Session) Selected() (models.UnitID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Selected()
}

// Rejection 最近一次被拒绝的走子
func (s *Session) Rejection() (Rejection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Rejection()
}

// Finished 会话是否已结束
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Finished()
}

// Cursor 实现 SyncTarget
func (s *Session) Cursor() models.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Cursor()
}

// Apply 实现 SyncTarget：合并快照并重置选择
func (s *Session) Apply(snap *models.Snapshot) ([]cache.Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}

	res := s.reconciler.Merge(s.cache, snap)
	if res.Outcome == cache.OutcomeDiscarded {
		s.logger.Debug("丢弃快照", zap.Error(res.Reason))
		return nil, s.cache.Finished()
	}

	s.resolveLocalPlayer()
	changes := append(res.Changes, s.selection.Reconciled()...)
	s.epoch++
	s.LastActivity = time.Now()

	finished := s.cache.Finished()
	if finished && s.FinishedAt.IsZero() {
		s.FinishedAt = s.LastActivity
		s.logger.Info("游戏结束",
			zap.Int64("winner", int64(s.cache.Winner())),
			zap.Int64("cursor", int64(s.cache.Cursor())))
	}
	return changes, finished
}

// Notify 实现 SyncTarget：在锁外通知订阅者
func (s *Session) Notify(changes []cache.Change) {
	s.mu.Lock()
	observers := make([]cache.Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, change := range changes {
		for _, o := range observers {
			o.OnChange(change)
		}
	}
}

// selectionChanged 选择状态转换回调；调用方持有锁
func (s *Session) selectionChanged(from, to SelectionState) {
	s.epoch++
	s.logger.Debug("选择状态变更",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Uint64("epoch", s.epoch))
}

// resolveLocalPlayer 按用户名识别本地玩家；调用方需持有锁
func (s *Session) resolveLocalPlayer() {
	if s.localPlayer != 0 {
		return
	}
	if p, ok := s.cache.PlayerByName(s.username); ok {
		s.localPlayer = p.ID
		s.logger.Info("识别本地玩家",
			zap.String("username", s.username),
			zap.Int64("player_id", int64(p.ID)))
	}
}

// ClickCell 处理用户点击。产生走子意图时提交给网关；
// 被服务器拒绝时进入 CommandRejected 并返回错误。
func (s *Session) ClickCell(ctx context.Context, pos models.Position) (ClickResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ClickResult{}, apperrors.New(apperrors.ErrSessionStopped)
	}
	res, changes := s.selection.Click(pos, s.localPlayer)
	epoch := s.epoch
	s.LastActivity = time.Now()
	s.mu.Unlock()

	s.Notify(changes)

	if res.Outcome != ClickMoveIntent {
		if res.Reason != nil {
			s.logger.Debug("忽略点击",
				zap.String("cell", string(pos)),
				zap.Error(res.Reason))
		}
		return res, nil
	}

	err := s.gateway.SubmitMove(ctx, res.Unit, res.Target)
	if err == nil {
		return res, nil
	}

	s.mu.Lock()
	if s.closed || s.epoch != epoch || !s.selection.CanTransition(EventCommandRejected) {
		// 提交期间已有新的选择或合并，过期的拒绝结果只返回给调用方
		s.mu.Unlock()
		s.logger.Debug("丢弃过期的拒绝结果",
			zap.Int64("unit", int64(res.Unit)),
			zap.String("target", string(res.Target)),
			zap.Error(err))
		return res, err
	}
	changes, rejectErr := s.selection.Reject(res.Unit, res.Target, err)
	s.mu.Unlock()
	if rejectErr != nil {
		s.logger.Debug("未记录被拒绝的走子", zap.Error(rejectErr))
	}
	s.Notify(changes)
	return res, err
}

// SubmitMessage 提交文字
func (s *Session) SubmitMessage(ctx context.Context, text string) error {
	if s.Closed() {
		return apperrors.New(apperrors.ErrSessionStopped)
	}
	return s.gateway.SubmitMessage(ctx, text)
}

// AddBot 添加机器人
func (s *Session) AddBot(ctx context.Context) error {
	if s.Closed() {
		return apperrors.New(apperrors.ErrSessionStopped)
	}
	return s.gateway.AddBot(ctx)
}

// StartGame 开始对局
func (s *Session) StartGame(ctx context.Context) error {
	if s.Closed() {
		return apperrors.New(apperrors.ErrSessionStopped)
	}
	return s.gateway.StartGame(ctx)
}
