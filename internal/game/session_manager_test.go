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

func newTestManager(transport *fakeTransport, maxSessions int) *SessionManager {
	return NewSessionManager(&SessionConfig{
		Logger:       zap.NewNop(),
		Transport:    transport,
		Variant:      models.Chess,
		Username:     "alice",
		PollInterval: time.Hour,
		IdleTimeout:  time.Millisecond,
		MaxSessions:  maxSessions,
	})
}

func TestSessionManager_OpenAndClose(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	sm := newTestManager(transport, 2)
	defer sm.CloseAll()

	s1, err := sm.OpenSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, SchedulerPolling, s1.Scheduler().State())

	again, err := sm.OpenSession(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, s1, again)

	_, err = sm.OpenSession(ctx, 2)
	require.NoError(t, err)

	_, err = sm.OpenSession(ctx, 3)
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionLimit))
	assert.Equal(t, 2, sm.GetActiveSessions())

	require.NoError(t, sm.CloseSession(1))
	assert.True(t, s1.Closed())
	assert.Equal(t, SchedulerStopped, s1.Scheduler().State())

	err = sm.CloseSession(1)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = sm.GetSession(1)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestSessionManager_NewSession(t *testing.T) {
	transport := &fakeTransport{nextID: 41}
	sm := newTestManager(transport, 4)
	defer sm.CloseAll()

	s, err := sm.NewSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.GameID(42), s.ID())

	got, err := sm.GetSession(42)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

// 订阅者在轮询开始前挂上，首次同步的实体通知不会丢失
func TestSessionManager_ObserversSeeFirstSync(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	transport.setFetch(scriptedFetch(openingSnapshot(5)))

	shared := &recordingObserver{}
	sm := NewSessionManager(&SessionConfig{
		Logger:       zap.NewNop(),
		Transport:    transport,
		Username:     "alice",
		PollInterval: time.Hour,
		Observers:    []cache.Observer{shared},
	})
	defer sm.CloseAll()

	view := &recordingObserver{}
	s, err := sm.OpenSession(ctx, 1, view)
	require.NoError(t, err)

	// 通知在合并之后、锁外派发
	for _, obs := range []*recordingObserver{shared, view} {
		assert.Eventually(t, func() bool {
			return obs.has(cache.Change{Kind: cache.ChangeSession}) &&
				obs.has(cache.Change{Kind: cache.ChangeUnit, ID: 1}) &&
				obs.has(cache.Change{Kind: cache.ChangeCell, Position: "E2"})
		}, time.Second, time.Millisecond)
	}
	assert.Equal(t, models.Cursor(5), s.Cursor())

	// 之后的轮询只返回 {}，晚到的订阅者靠补发拿到当前画面
	late := &recordingObserver{}
	again, err := sm.OpenSession(ctx, 1, late)
	require.NoError(t, err)
	assert.Same(t, s, again)

	changes := late.all()
	require.NotEmpty(t, changes)
	assert.Contains(t, changes, cache.Change{Kind: cache.ChangeUnit, ID: 3})
	assert.Contains(t, changes, cache.Change{Kind: cache.ChangeCell, Position: "G1"})
	assert.Contains(t, changes, cache.Change{Kind: cache.ChangePlayer, ID: 20})
	assert.Equal(t, cache.Change{Kind: cache.ChangeSession}, changes[len(changes)-1])
}

func TestSessionManager_Lobby(t *testing.T) {
	transport := &fakeTransport{lobby: []models.LobbyGame{{ID: 1, Users: []string{"alice"}}}}
	sm := newTestManager(transport, 4)

	games, err := sm.Lobby(context.Background())
	require.NoError(t, err)
	assert.Len(t, games, 1)
}

func TestSessionManager_CleanupFinished(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	finished := openingSnapshot(3)
	finished.Status = models.StatusPtr(models.StatusFinished)
	transport.setFetch(func(ctx context.Context, cursor models.Cursor) (*models.Snapshot, error) {
		return finished, nil
	})

	sm := newTestManager(transport, 4)
	defer sm.CloseAll()

	s, err := sm.OpenSession(ctx, 5)
	require.NoError(t, err)
	assert.Eventually(t, s.Finished, time.Second, time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	sm.CleanupFinishedSessions()
	assert.Equal(t, 0, sm.GetActiveSessions())
	assert.True(t, s.Closed())
}

func TestSessionManager_StartCleanupTask(t *testing.T) {
	transport := &fakeTransport{}
	finished := openingSnapshot(3)
	finished.Status = models.StatusPtr(models.StatusFinished)
	transport.setFetch(func(ctx context.Context, cursor models.Cursor) (*models.Snapshot, error) {
		return finished, nil
	})

	sm := newTestManager(transport, 4)
	defer sm.CloseAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sm.StartCleanupTask(ctx, 2*time.Millisecond)

	_, err := sm.OpenSession(ctx, 5)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return sm.GetActiveSessions() == 0 }, time.Second, time.Millisecond)
}

func TestSessionManager_SetPollInterval(t *testing.T) {
	sm := newTestManager(&fakeTransport{}, 4)
	defer sm.CloseAll()

	s, err := sm.OpenSession(context.Background(), 1)
	require.NoError(t, err)

	sm.SetPollInterval(3 * time.Second)
	assert.Equal(t, 3*time.Second, s.Scheduler().Interval())
}

func TestSessionManager_Stats(t *testing.T) {
	transport := &fakeTransport{}
	transport.setFetch(scriptedFetch(openingSnapshot(4)))
	sm := newTestManager(transport, 4)
	defer sm.CloseAll()

	s, err := sm.OpenSession(context.Background(), 9)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return s.Cursor() == 4 }, time.Second, time.Millisecond)

	stats, err := sm.GetSessionStats(9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), stats["game_id"])
	assert.Equal(t, "active", stats["status"])
	assert.Equal(t, int64(10), stats["local_player"])
	assert.Equal(t, 3, stats["units"])
}
