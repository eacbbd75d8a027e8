package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/board-sync/internal/cache"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
)

func newTestSession(t *testing.T, transport *fakeTransport) *Session {
	s, err := NewSession(SessionOptions{
		GameID:       7,
		Variant:      models.Chess,
		Username:     "alice",
		Transport:    transport,
		PollInterval: time.Hour,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func highlighted(s *Session) []models.Position {
	var out []models.Position
	s.Read(func(c *cache.Cache) { out = c.Highlighted() })
	return out
}

func unitAt(s *Session, id models.UnitID) models.Position {
	var pos models.Position
	s.Read(func(c *cache.Cache) {
		u, _ := c.Unit(id)
		pos = u.Position
	})
	return pos
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(SessionOptions{GameID: 1})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))

	_, err = NewSession(SessionOptions{GameID: 0, Transport: &fakeTransport{}})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))
}

// 开局 -> 选中 -> 走子 -> 立即同步 -> 高亮清除
func TestSession_MoveScenario(t *testing.T) {
	ctx := context.Background()
	players := []models.PlayerRecord{
		{ID: 10, Name: "alice", Color: models.ColorWhite},
		{ID: 20, Name: "bob", Color: models.ColorBlack},
	}
	transport := &fakeTransport{}
	transport.setFetch(scriptedFetch(
		&models.Snapshot{
			Status:              models.StatusPtr(models.StatusActive),
			Cursor:              5,
			Units:               []models.UnitRecord{{ID: 1, Kind: models.KindPawn, Owner: 10, Position: "E2"}},
			Players:             players,
			CurrentTurnPlayerID: 10,
		},
		&models.Snapshot{
			Status:              models.StatusPtr(models.StatusActive),
			Cursor:              5,
			Moves:               map[models.UnitID][]models.Position{1: {"E3", "E4"}},
			CurrentTurnPlayerID: 10,
		},
		&models.Snapshot{
			Status:              models.StatusPtr(models.StatusActive),
			Cursor:              6,
			Units:               []models.UnitRecord{{ID: 1, Kind: models.KindPawn, Owner: 10, Position: "E4"}},
			History:             []models.HistoryRecord{{ID: 1, UnitID: 1, From: "E2", To: "E4"}},
			CurrentTurnPlayerID: 20,
		},
	))
	s := newTestSession(t, transport)
	obs := &recordingObserver{}
	s.Subscribe(obs)

	require.NoError(t, s.Scheduler().SyncNow(ctx))
	assert.Equal(t, models.Cursor(5), s.Cursor())
	assert.Equal(t, models.Position("E2"), unitAt(s, 1))
	assert.Empty(t, highlighted(s))
	assert.Equal(t, models.PlayerID(10), s.LocalPlayer())
	assert.Contains(t, obs.all(), cache.Change{Kind: cache.ChangeSession})

	require.NoError(t, s.Scheduler().SyncNow(ctx))

	res, err := s.ClickCell(ctx, "E2")
	require.NoError(t, err)
	assert.Equal(t, ClickSelected, res.Outcome)
	assert.ElementsMatch(t, []models.Position{"E3", "E4"}, highlighted(s))

	res, err = s.ClickCell(ctx, "E4")
	require.NoError(t, err)
	assert.Equal(t, ClickMoveIntent, res.Outcome)
	assert.Equal(t, []moveCall{{unit: 1, target: "E4"}}, transport.moveCalls())

	// 确认后立即同步
	assert.Equal(t, 3, transport.fetchCount())
	assert.Equal(t, models.Cursor(6), s.Cursor())
	assert.Equal(t, models.Position("E4"), unitAt(s, 1))
	assert.Empty(t, highlighted(s))
	assert.Equal(t, StateNoSelection, s.SelectionState())

	s.Read(func(c *cache.Cache) {
		h := c.History()
		require.Len(t, h, 1)
		assert.Equal(t, "PAWN E2-E4", h[0].Description)
	})

	// 轮到对方，点击无效
	res, err = s.ClickCell(ctx, "E4")
	require.NoError(t, err)
	assert.Equal(t, ClickIgnored, res.Outcome)
	assert.Equal(t, apperrors.ErrNotYourTurn, res.Reason.Code)
}

func TestSession_DiscardLeavesEverythingUnchanged(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	transport.setFetch(scriptedFetch(openingSnapshot(5)))
	s := newTestSession(t, transport)

	require.NoError(t, s.Scheduler().SyncNow(ctx))
	_, err := s.ClickCell(ctx, "E2")
	require.NoError(t, err)

	var before *cache.Cache
	s.Read(func(c *cache.Cache) { before = c.Clone() })

	obs := &recordingObserver{}
	s.Subscribe(obs)

	// 脚本用完后返回 {}
	require.NoError(t, s.Scheduler().SyncNow(ctx))

	s.Read(func(c *cache.Cache) { assert.Equal(t, before, c) })
	id, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, models.UnitID(1), id)
	assert.Empty(t, obs.all())
}

func TestSession_ReconcileClearsSelection(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	transport.setFetch(scriptedFetch(openingSnapshot(5), openingSnapshot(6)))
	s := newTestSession(t, transport)

	require.NoError(t, s.Scheduler().SyncNow(ctx))
	_, err := s.ClickCell(ctx, "G1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Position{"F3", "H3"}, highlighted(s))

	require.NoError(t, s.Scheduler().SyncNow(ctx))
	_, ok := s.Selected()
	assert.False(t, ok)
	assert.Empty(t, highlighted(s))
}

func TestSession_RejectedCommand(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{moveErr: apperrors.New(apperrors.ErrCommandRejected, "403")}
	transport.setFetch(scriptedFetch(openingSnapshot(5), openingSnapshot(6)))
	s := newTestSession(t, transport)

	require.NoError(t, s.Scheduler().SyncNow(ctx))
	_, err := s.ClickCell(ctx, "E2")
	require.NoError(t, err)

	res, err := s.ClickCell(ctx, "E3")
	assert.Equal(t, ClickMoveIntent, res.Outcome)
	assert.True(t, apperrors.Is(err, apperrors.ErrCommandRejected))
	assert.Equal(t, StateCommandRejected, s.SelectionState())

	rej, ok := s.Rejection()
	require.True(t, ok)
	assert.Equal(t, models.Position("E3"), rej.Target)

	// 失败不触发同步
	assert.Equal(t, 1, transport.fetchCount())

	require.NoError(t, s.Scheduler().SyncNow(ctx))
	assert.Equal(t, StateNoSelection, s.SelectionState())
}

// 提交期间已合并了新快照，迟到的拒绝不再覆盖更新的状态
func TestSession_StaleRejectionDropped(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{moveErr: apperrors.New(apperrors.ErrCommandRejected, "403")}
	transport.setFetch(scriptedFetch(openingSnapshot(5)))
	s := newTestSession(t, transport)
	transport.onMove = func() {
		s.Apply(openingSnapshot(6))
	}

	require.NoError(t, s.Scheduler().SyncNow(ctx))
	_, err := s.ClickCell(ctx, "E2")
	require.NoError(t, err)

	res, err := s.ClickCell(ctx, "E4")
	assert.Equal(t, ClickMoveIntent, res.Outcome)
	assert.True(t, apperrors.Is(err, apperrors.ErrCommandRejected))

	assert.Equal(t, models.Cursor(6), s.Cursor())
	assert.Equal(t, StateNoSelection, s.SelectionState())
	_, ok := s.Rejection()
	assert.False(t, ok)

	// 新的选择同样使旧结果过期
	transport.onMove = func() {
		s.ClickCell(ctx, "G1")
	}
	_, err = s.ClickCell(ctx, "E2")
	require.NoError(t, err)
	_, err = s.ClickCell(ctx, "E3")
	assert.True(t, apperrors.Is(err, apperrors.ErrCommandRejected))
	assert.Equal(t, StateUnitSelected, s.SelectionState())
	id, _ := s.Selected()
	assert.Equal(t, models.UnitID(3), id)
}

func TestSession_TransportFailureOnMove(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{moveErr: context.DeadlineExceeded}
	transport.setFetch(scriptedFetch(openingSnapshot(5)))
	s := newTestSession(t, transport)

	require.NoError(t, s.Scheduler().SyncNow(ctx))
	_, _ = s.ClickCell(ctx, "E2")
	_, err := s.ClickCell(ctx, "E4")

	assert.True(t, apperrors.Is(err, apperrors.ErrTransport))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, StateCommandRejected, s.SelectionState())
}

func TestSession_PollingStopsAtFinish(t *testing.T) {
	transport := &fakeTransport{}
	finished := openingSnapshot(9)
	finished.Status = models.StatusPtr(models.StatusFinished)
	finished.WinnerPlayerID = 10
	transport.setFetch(scriptedFetch(openingSnapshot(5), finished))

	s, err := NewSession(SessionOptions{
		GameID:       7,
		Username:     "alice",
		Transport:    transport,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Start())
	assert.Eventually(t, s.Finished, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return s.Scheduler().State() == SchedulerStopped }, time.Second, time.Millisecond)
	assert.Never(t, func() bool { return transport.fetchCount() > 2 }, 50*time.Millisecond, 5*time.Millisecond)

	s.Read(func(c *cache.Cache) { assert.Equal(t, models.PlayerID(10), c.Winner()) })
	assert.False(t, s.FinishedAt.IsZero())
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	transport.setFetch(scriptedFetch(openingSnapshot(5)))
	s := newTestSession(t, transport)

	s.Close()
	assert.True(t, s.Closed())

	_, err := s.ClickCell(ctx, "E2")
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionStopped))
	assert.True(t, apperrors.Is(s.Scheduler().SyncNow(ctx), apperrors.ErrSessionStopped))
	assert.True(t, apperrors.Is(s.SubmitMessage(ctx, "hi"), apperrors.ErrSessionStopped))

	changes, finished := s.Apply(openingSnapshot(6))
	assert.Empty(t, changes)
	assert.False(t, finished)
	assert.Equal(t, models.Cursor(0), s.Cursor())
}

func TestSession_CardCommandsResync(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	s, err := NewSession(SessionOptions{
		GameID:       3,
		Variant:      models.Cards,
		Username:     "alice",
		Transport:    transport,
		PollInterval: time.Hour,
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AddBot(ctx))
	require.NoError(t, s.StartGame(ctx))
	require.NoError(t, s.SubmitMessage(ctx, "forty-two"))

	err = s.SubmitMessage(ctx, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))

	assert.Equal(t, 3, transport.fetchCount())
	assert.Equal(t, 1, transport.bots)
	assert.Equal(t, 1, transport.starts)
	assert.Equal(t, []string{"forty-two"}, transport.msgs)
}
