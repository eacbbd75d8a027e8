package game

import (
	"fmt"

	"github.com/wfunc/board-sync/internal/cache"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
)

// SelectionState 选择状态枚举
type SelectionState string

const (
	StateNoSelection     SelectionState = "no_selection"     // 未选择
	StateUnitSelected    SelectionState = "unit_selected"    // 已选中单位
	StateCommandRejected SelectionState = "command_rejected" // 上一条走子被服务器拒绝
)

// 选择事件
const (
	EventClickOwnUnit    = "click_own_unit"
	EventClickTarget     = "click_target"
	EventClickSame       = "click_same"
	EventCommandRejected = "command_rejected"
	EventReconciled      = "reconciled"
)

// StateTransition 状态转换定义
type StateTransition struct {
	From   SelectionState
	Event  string
	To     SelectionState
	Action func(sel *Selection, in transitionInput) []cache.Change
}

// transitionInput 事件参数
type transitionInput struct {
	unit   models.UnitID
	target models.Position
	err    error
}

// ClickOutcome 点击处理结果
type ClickOutcome int

const (
	ClickIgnored    ClickOutcome = iota // 无操作
	ClickSelected                       // 选中（或改选）单位
	ClickDeselected                     // 取消选择
	ClickMoveIntent                     // 产生走子意图
)

// String 结果名称
func (o ClickOutcome) String() string {
	switch o {
	case ClickSelected:
		return "selected"
	case ClickDeselected:
		return "deselected"
	case ClickMoveIntent:
		return "move_intent"
	default:
		return "ignored"
	}
}

// ClickResult 点击结果
type ClickResult struct {
	Outcome ClickOutcome
	Unit    models.UnitID
	Target  models.Position
	// Reason 点击被忽略的原因
	Reason *apperrors.AppError
}

// Rejection 被拒绝的走子
type Rejection struct {
	Unit   models.UnitID
	Target models.Position
	Err    error
}

// Selection 选择状态机。
// 不自带锁，由所属会话串行化调用；高亮集合始终等于当前选中单位的合法落点。
type Selection struct {
	state       SelectionState
	selected    models.UnitID
	rejection   *Rejection
	cache       *cache.Cache
	transitions map[string][]StateTransition
	logger      *zap.Logger

	onStateChange func(from, to SelectionState)
}

// NewSelection 创建选择状态机
func NewSelection(c *cache.Cache, logger *zap.Logger) *Selection {
	if logger == nil {
		logger = zap.NewNop()
	}
	sel := &Selection{
		state:       StateNoSelection,
		cache:       c,
		transitions: make(map[string][]StateTransition),
		logger:      logger,
	}
	sel.initTransitions()
	return sel
}

// initTransitions 初始化状态转换规则
func (sel *Selection) initTransitions() {
	// 未选择/被拒绝 -> 选中
	for _, from := range []SelectionState{StateNoSelection, StateCommandRejected} {
		sel.addTransition(StateTransition{
			From:   from,
			Event:  EventClickOwnUnit,
			To:     StateUnitSelected,
			Action: selectUnit,
		})
	}

	// 选中 -> 改选其他单位
	sel.addTransition(StateTransition{
		From:   StateUnitSelected,
		Event:  EventClickOwnUnit,
		To:     StateUnitSelected,
		Action: selectUnit,
	})

	// 选中 -> 未选择（点击高亮格子，乐观清除高亮）
	sel.addTransition(StateTransition{
		From:   StateUnitSelected,
		Event:  EventClickTarget,
		To:     StateNoSelection,
		Action: clearSelection,
	})

	// 选中 -> 未选择（再次点击同一单位）
	sel.addTransition(StateTransition{
		From:   StateUnitSelected,
		Event:  EventClickSame,
		To:     StateNoSelection,
		Action: clearSelection,
	})

	// 未选择 -> 被拒绝
	sel.addTransition(StateTransition{
		From:  StateNoSelection,
		Event: EventCommandRejected,
		To:    StateCommandRejected,
		Action: func(sel *Selection, in transitionInput) []cache.Change {
			sel.rejection = &Rejection{Unit: in.unit, Target: in.target, Err: in.err}
			sel.logger.Warn("走子被拒绝",
				zap.Int64("unit_id", int64(in.unit)),
				zap.String("target", string(in.target)),
				zap.Error(in.err))
			return nil
		},
	})

	// 任何状态 -> 未选择（同步完成）
	for _, from := range []SelectionState{StateNoSelection, StateUnitSelected, StateCommandRejected} {
		sel.addTransition(StateTransition{
			From:   from,
			Event:  EventReconciled,
			To:     StateNoSelection,
			Action: clearSelection,
		})
	}
}

func selectUnit(sel *Selection, in transitionInput) []cache.Change {
	sel.selected = in.unit
	sel.rejection = nil
	u, _ := sel.cache.Unit(in.unit)
	return sel.cache.SetHighlights(u.LegalTargets)
}

func clearSelection(sel *Selection, _ transitionInput) []cache.Change {
	sel.selected = 0
	sel.rejection = nil
	return sel.cache.SetHighlights(nil)
}

// addTransition 添加状态转换
func (sel *Selection) addTransition(transition StateTransition) {
	key := sel.transitionKey(transition.From, transition.Event)
	sel.transitions[key] = append(sel.transitions[key], transition)
}

// transitionKey 生成转换键
func (sel *Selection) transitionKey(state SelectionState, event string) string {
	return fmt.Sprintf("%s:%s", state, event)
}

// trigger 触发事件，返回受影响的实体
func (sel *Selection) trigger(event string, in transitionInput) ([]cache.Change, error) {
	key := sel.transitionKey(sel.state, event)
	transitions, exists := sel.transitions[key]
	if !exists || len(transitions) == 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidTransition, "状态=%s, 事件=%s", sel.state, event)
	}

	transition := transitions[0]
	oldState := sel.state
	prevSelected := sel.selected

	var changes []cache.Change
	if transition.Action != nil {
		changes = transition.Action(sel, in)
	}
	sel.state = transition.To

	if oldState != sel.state || prevSelected != sel.selected {
		changes = append(changes, cache.Change{Kind: cache.ChangeSelection, ID: int64(sel.selected)})
		if sel.onStateChange != nil {
			sel.onStateChange(oldState, sel.state)
		}
	}

	sel.logger.Debug("选择状态转换",
		zap.String("from", string(oldState)),
		zap.String("to", string(sel.state)),
		zap.String("event", event))

	return changes, nil
}

// Click 处理一次格子点击。
// 状态机不做任何规则校验，合法性完全来自服务器最近一次下发的落点。
func (sel *Selection) Click(pos models.Position, local models.PlayerID) (ClickResult, []cache.Change) {
	cell, ok := sel.cache.Cell(pos)
	if !ok {
		return ignored(apperrors.New(apperrors.ErrUnknownCell, string(pos))), nil
	}
	if sel.cache.Finished() {
		return ignored(apperrors.New(apperrors.ErrGameFinished)), nil
	}
	if local == 0 || sel.cache.CurrentTurn() != local {
		return ignored(apperrors.New(apperrors.ErrNotYourTurn)), nil
	}

	if sel.state == StateUnitSelected {
		selected, _ := sel.cache.Unit(sel.selected)
		switch {
		case pos == selected.Position:
			changes, err := sel.trigger(EventClickSame, transitionInput{})
			if err != nil {
				return ignored(asAppError(err)), nil
			}
			return ClickResult{Outcome: ClickDeselected, Unit: selected.ID}, changes
		case cell.IsLegalTarget:
			changes, err := sel.trigger(EventClickTarget, transitionInput{unit: selected.ID, target: pos})
			if err != nil {
				return ignored(asAppError(err)), nil
			}
			return ClickResult{Outcome: ClickMoveIntent, Unit: selected.ID, Target: pos}, changes
		}
	}

	if !sel.ownUnitAt(cell, local) {
		if sel.state == StateUnitSelected {
			return ignored(apperrors.New(apperrors.ErrNotHighlighted, string(pos))), nil
		}
		return ignored(apperrors.New(apperrors.ErrNotSelectable, string(pos))), nil
	}

	changes, err := sel.trigger(EventClickOwnUnit, transitionInput{unit: cell.Occupant})
	if err != nil {
		return ignored(asAppError(err)), nil
	}
	return ClickResult{Outcome: ClickSelected, Unit: cell.Occupant}, changes
}

// ownUnitAt 格子上是否有本方在场单位
func (sel *Selection) ownUnitAt(cell cache.Cell, local models.PlayerID) bool {
	if !cell.Occupied() {
		return false
	}
	u, ok := sel.cache.Unit(cell.Occupant)
	return ok && u.OnBoard() && u.Owner == local
}

// Reject 记录被服务器拒绝的走子
func (sel *Selection) Reject(unit models.UnitID, target models.Position, err error) ([]cache.Change, error) {
	return sel.trigger(EventCommandRejected, transitionInput{unit: unit, target: target, err: err})
}

// Reconciled 同步完成后清空选择与高亮
func (sel *Selection) Reconciled() []cache.Change {
	changes, _ := sel.trigger(EventReconciled, transitionInput{})
	return changes
}

// State 获取当前状态
func (sel *Selection) State() SelectionState {
	return sel.state
}

// Selected 获取当前选中的单位
func (sel *Selection) Selected() (models.UnitID, bool) {
	return sel.selected, sel.state == StateUnitSelected
}

// Rejection 获取最近一次被拒绝的走子
func (sel *Selection) Rejection() (Rejection, bool) {
	if sel.state != StateCommandRejected || sel.rejection == nil {
		return Rejection{}, false
	}
	return *sel.rejection, true
}

// OnStateChange 设置状态变更回调，回调在所属会话的锁内执行
func (sel *Selection) OnStateChange(fn func(from, to SelectionState)) {
	sel.onStateChange = fn
}

// CanTransition 检查是否可以转换
func (sel *Selection) CanTransition(event string) bool {
	transitions, exists := sel.transitions[sel.transitionKey(sel.state, event)]
	return exists && len(transitions) > 0
}

func ignored(reason *apperrors.AppError) ClickResult {
	return ClickResult{Outcome: ClickIgnored, Reason: reason}
}

func asAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	return apperrors.Wrap(err, apperrors.ErrUnknown)
}
