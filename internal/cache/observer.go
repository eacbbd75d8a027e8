package cache

import "github.com/wfunc/board-sync/internal/models"

// ChangeKind 变更实体类型
type ChangeKind int

const (
	ChangeSession ChangeKind = iota
	ChangeUnit
	ChangePlayer
	ChangeCell
	ChangeHistory
	ChangeSelection
)

// String 变更类型名称
func (k ChangeKind) String() string {
	switch k {
	case ChangeSession:
		return "session"
	case ChangeUnit:
		return "unit"
	case ChangePlayer:
		return "player"
	case ChangeCell:
		return "cell"
	case ChangeHistory:
		return "history"
	case ChangeSelection:
		return "selection"
	default:
		return "unknown"
	}
}

// Change 单个实体的变更通知
type Change struct {
	Kind     ChangeKind
	ID       int64           // 单位/玩家/历史ID
	Position models.Position // 格子变更时的位置
}

// Observer 变更订阅者（视图绑定层实现）
type Observer interface {
	OnChange(change Change)
}

// ObserverFunc 函数适配器
type ObserverFunc func(change Change)

// OnChange 实现Observer
func (f ObserverFunc) OnChange(change Change) {
	f(change)
}

func unitChange(id models.UnitID) Change {
	return Change{Kind: ChangeUnit, ID: int64(id)}
}

func playerChange(id models.PlayerID) Change {
	return Change{Kind: ChangePlayer, ID: int64(id)}
}

func historyChange(id models.HistoryID) Change {
	return Change{Kind: ChangeHistory, ID: int64(id)}
}

func cellChange(p models.Position) Change {
	return Change{Kind: ChangeCell, Position: p}
}

// changeSet 保序去重的变更集合
type changeSet struct {
	seen  map[Change]bool
	items []Change
}

func newChangeSet() *changeSet {
	return &changeSet{seen: make(map[Change]bool)}
}

func (s *changeSet) add(changes ...Change) {
	for _, c := range changes {
		if s.seen[c] {
			continue
		}
		s.seen[c] = true
		s.items = append(s.items, c)
	}
}
