package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/board-sync/internal/cache"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
)

// newTestSelection 合并开局快照后的选择状态机
func newTestSelection(t *testing.T) (*Selection, *cache.Cache) {
	c := cache.New(models.Chess)
	res := cache.NewReconciler(zap.NewNop()).Merge(c, openingSnapshot(1))
	require.Equal(t, cache.OutcomeApplied, res.Outcome)
	return NewSelection(c, zap.NewNop()), c
}

func TestSelection_InitialState(t *testing.T) {
	sel, _ := newTestSelection(t)

	assert.Equal(t, StateNoSelection, sel.State())
	_, ok := sel.Selected()
	assert.False(t, ok)
	assert.True(t, sel.CanTransition(EventClickOwnUnit))
	assert.False(t, sel.CanTransition(EventClickTarget))
	assert.True(t, sel.CanTransition(EventReconciled))
}

func TestSelection_SelectHighlightsLegalTargets(t *testing.T) {
	sel, c := newTestSelection(t)

	res, changes := sel.Click("E2", 10)
	assert.Equal(t, ClickSelected, res.Outcome)
	assert.Equal(t, models.UnitID(1), res.Unit)
	assert.Equal(t, StateUnitSelected, sel.State())

	assert.ElementsMatch(t, []models.Position{"E3", "E4"}, c.Highlighted())
	assert.Contains(t, changes, cache.Change{Kind: cache.ChangeCell, Position: "E3"})
	assert.Contains(t, changes, cache.Change{Kind: cache.ChangeSelection, ID: 1})
}

func TestSelection_ClickTargetEmitsIntent(t *testing.T) {
	sel, c := newTestSelection(t)
	sel.Click("E2", 10)

	res, _ := sel.Click("E4", 10)
	assert.Equal(t, ClickMoveIntent, res.Outcome)
	assert.Equal(t, models.UnitID(1), res.Unit)
	assert.Equal(t, models.Position("E4"), res.Target)

	// 乐观清除
	assert.Equal(t, StateNoSelection, sel.State())
	assert.Empty(t, c.Highlighted())
}

func TestSelection_ReselectAndDeselect(t *testing.T) {
	sel, c := newTestSelection(t)
	sel.Click("E2", 10)

	res, _ := sel.Click("G1", 10)
	assert.Equal(t, ClickSelected, res.Outcome)
	assert.Equal(t, models.UnitID(3), res.Unit)
	assert.ElementsMatch(t, []models.Position{"F3", "H3"}, c.Highlighted())

	res, _ = sel.Click("G1", 10)
	assert.Equal(t, ClickDeselected, res.Outcome)
	assert.Equal(t, StateNoSelection, sel.State())
	assert.Empty(t, c.Highlighted())
}

func TestSelection_IgnoredClicks(t *testing.T) {
	sel, c := newTestSelection(t)

	tests := []struct {
		name  string
		pos   models.Position
		local models.PlayerID
		code  apperrors.ErrorCode
	}{
		{"未知格子", "Z9", 10, apperrors.ErrUnknownCell},
		{"空格子", "D4", 10, apperrors.ErrNotSelectable},
		{"对方单位", "E7", 10, apperrors.ErrNotSelectable},
		{"非本方回合", "E7", 20, apperrors.ErrNotYourTurn},
		{"未识别本地玩家", "E2", 0, apperrors.ErrNotYourTurn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, changes := sel.Click(tt.pos, tt.local)
			assert.Equal(t, ClickIgnored, res.Outcome)
			require.NotNil(t, res.Reason)
			assert.Equal(t, tt.code, res.Reason.Code)
			assert.Empty(t, changes)
			assert.Equal(t, StateNoSelection, sel.State())
			assert.Empty(t, c.Highlighted())
		})
	}
}

func TestSelection_NonHighlightedWhileSelected(t *testing.T) {
	sel, c := newTestSelection(t)
	sel.Click("E2", 10)

	res, _ := sel.Click("E5", 10)
	assert.Equal(t, ClickIgnored, res.Outcome)
	assert.Equal(t, apperrors.ErrNotHighlighted, res.Reason.Code)

	// 选择保持不变
	id, ok := sel.Selected()
	assert.True(t, ok)
	assert.Equal(t, models.UnitID(1), id)
	assert.ElementsMatch(t, []models.Position{"E3", "E4"}, c.Highlighted())
}

func TestSelection_ReconciledClears(t *testing.T) {
	sel, c := newTestSelection(t)
	sel.Click("E2", 10)

	changes := sel.Reconciled()
	assert.Equal(t, StateNoSelection, sel.State())
	assert.Empty(t, c.Highlighted())
	assert.Contains(t, changes, cache.Change{Kind: cache.ChangeSelection, ID: 0})

	// 已清空时再次同步不产生通知
	assert.Empty(t, sel.Reconciled())
}

func TestSelection_CommandRejected(t *testing.T) {
	sel, _ := newTestSelection(t)

	var transitions []SelectionState
	sel.OnStateChange(func(from, to SelectionState) {
		transitions = append(transitions, to)
	})

	sel.Click("E2", 10)
	sel.Click("E4", 10)

	cause := apperrors.New(apperrors.ErrCommandRejected)
	_, err := sel.Reject(1, "E4", cause)
	require.NoError(t, err)
	assert.Equal(t, StateCommandRejected, sel.State())

	rej, ok := sel.Rejection()
	require.True(t, ok)
	assert.Equal(t, models.UnitID(1), rej.Unit)
	assert.Equal(t, models.Position("E4"), rej.Target)
	assert.True(t, errors.Is(rej.Err, cause))

	// 被拒绝后可以直接重新选择
	res, _ := sel.Click("E2", 10)
	assert.Equal(t, ClickSelected, res.Outcome)
	_, ok = sel.Rejection()
	assert.False(t, ok)

	assert.Equal(t, []SelectionState{StateUnitSelected, StateNoSelection, StateCommandRejected, StateUnitSelected}, transitions)
}

func TestSelection_RejectedClearedByReconcile(t *testing.T) {
	sel, _ := newTestSelection(t)
	_, err := sel.Reject(1, "E4", errors.New("403"))
	require.NoError(t, err)

	sel.Reconciled()
	assert.Equal(t, StateNoSelection, sel.State())
	_, ok := sel.Rejection()
	assert.False(t, ok)
}

func TestSelection_RejectWhileSelectedIsInvalid(t *testing.T) {
	sel, _ := newTestSelection(t)
	sel.Click("G1", 10)

	_, err := sel.Reject(1, "E4", errors.New("403"))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))
	assert.Equal(t, StateUnitSelected, sel.State())
}

func TestSelection_CapturedUnitNotSelectable(t *testing.T) {
	sel, c := newTestSelection(t)
	cache.NewReconciler(zap.NewNop()).Merge(c, &models.Snapshot{
		Status:              models.StatusPtr(models.StatusActive),
		Cursor:              2,
		Units:               []models.UnitRecord{{ID: 3, Kind: models.KindKnight, Owner: 10, Position: models.Captured}},
		CurrentTurnPlayerID: 10,
	})

	res, _ := sel.Click("G1", 10)
	assert.Equal(t, ClickIgnored, res.Outcome)
}

func TestSelection_FinishedGameIgnoresClicks(t *testing.T) {
	sel, c := newTestSelection(t)
	cache.NewReconciler(zap.NewNop()).Merge(c, &models.Snapshot{
		Status:              models.StatusPtr(models.StatusFinished),
		Cursor:              3,
		CurrentTurnPlayerID: 10,
	})

	res, _ := sel.Click("E2", 10)
	assert.Equal(t, ClickIgnored, res.Outcome)
	assert.Equal(t, apperrors.ErrGameFinished, res.Reason.Code)
}
