package game

import (
	"context"
	"sync"

	"github.com/wfunc/board-sync/internal/cache"
	"github.com/wfunc/board-sync/internal/models"
)

type moveCall struct {
	unit   models.UnitID
	target models.Position
}

// fakeTransport 可编排的服务器
type fakeTransport struct {
	mu      sync.Mutex
	fetch   func(ctx context.Context, cursor models.Cursor) (*models.Snapshot, error)
	fetches []models.Cursor
	moves   []moveCall
	moveErr error
	onMove  func() // 在返回结果前执行，模拟提交期间到达的同步
	msgs    []string
	bots    int
	starts  int
	nextID  models.GameID
	lobby   []models.LobbyGame
}

func (f *fakeTransport) FetchSnapshot(ctx context.Context, id models.GameID, cursor models.Cursor) (*models.Snapshot, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, cursor)
	fn := f.fetch
	f.mu.Unlock()

	if fn == nil {
		return &models.Snapshot{}, nil
	}
	return fn(ctx, cursor)
}

func (f *fakeTransport) Move(ctx context.Context, id models.GameID, unit models.UnitID, target models.Position) error {
	f.mu.Lock()
	f.moves = append(f.moves, moveCall{unit: unit, target: target})
	hook, err := f.onMove, f.moveErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeTransport) NewGame(ctx context.Context) (models.GameID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) Lobby(ctx context.Context) ([]models.LobbyGame, error) {
	return f.lobby, nil
}

func (f *fakeTransport) Message(ctx context.Context, id models.GameID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeTransport) AddBot(ctx context.Context, id models.GameID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bots++
	return nil
}

func (f *fakeTransport) Start(ctx context.Context, id models.GameID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeTransport) setFetch(fn func(ctx context.Context, cursor models.Cursor) (*models.Snapshot, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetch = fn
}

func (f *fakeTransport) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

func (f *fakeTransport) fetchCursors() []models.Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Cursor(nil), f.fetches...)
}

func (f *fakeTransport) moveCalls() []moveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]moveCall(nil), f.moves...)
}

// scriptedFetch 依次返回快照，用完后返回“无新数据”
func scriptedFetch(snaps ...*models.Snapshot) func(context.Context, models.Cursor) (*models.Snapshot, error) {
	var mu sync.Mutex
	return func(ctx context.Context, cursor models.Cursor) (*models.Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(snaps) == 0 {
			return &models.Snapshot{}, nil
		}
		next := snaps[0]
		snaps = snaps[1:]
		return next, nil
	}
}

// recordingObserver 记录收到的通知
type recordingObserver struct {
	mu      sync.Mutex
	changes []cache.Change
}

func (r *recordingObserver) OnChange(change cache.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recordingObserver) has(change cache.Change) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.changes {
		if c == change {
			return true
		}
	}
	return false
}

func (r *recordingObserver) all() []cache.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cache.Change(nil), r.changes...)
}

// openingSnapshot alice(10,白) 与 bob(20,黑)，轮到 alice
func openingSnapshot(cursor models.Cursor) *models.Snapshot {
	return &models.Snapshot{
		Status: models.StatusPtr(models.StatusActive),
		Cursor: cursor,
		Units: []models.UnitRecord{
			{ID: 1, Kind: models.KindPawn, Owner: 10, Position: "E2"},
			{ID: 2, Kind: models.KindPawn, Owner: 20, Position: "E7"},
			{ID: 3, Kind: models.KindKnight, Owner: 10, Position: "G1"},
		},
		Players: []models.PlayerRecord{
			{ID: 10, Name: "alice", Color: models.ColorWhite},
			{ID: 20, Name: "bob", Color: models.ColorBlack},
		},
		Moves: map[models.UnitID][]models.Position{
			1: {"E3", "E4"},
			3: {"F3", "H3"},
		},
		CurrentTurnPlayerID: 10,
	}
}
