// Package cache 保存服务器实体的本地镜像。
//
// Cache 不做任何网络或定时处理，也不自带锁：写入方只有 Reconciler 与选择状态机，
// 由持有它的会话负责串行化。
package cache

import (
	"sort"

	"github.com/wfunc/board-sync/internal/models"
)

// Unit 棋子/卡牌
type Unit struct {
	ID           models.UnitID
	Kind         models.UnitKind
	Owner        models.PlayerID
	Position     models.Position
	LegalTargets []models.Position // 已排序、去重
}

// OnBoard 是否仍在场上
func (u Unit) OnBoard() bool {
	return u.Position.OnBoard()
}

// CanReach 目标是否在合法落点中
func (u Unit) CanReach(p models.Position) bool {
	for _, t := range u.LegalTargets {
		if t == p {
			return true
		}
	}
	return false
}

// Cell 格子/卡槽
type Cell struct {
	Position      models.Position
	Occupant      models.UnitID // 0 表示空；仅作查找用，每次合并重新计算
	IsLegalTarget bool
}

// Occupied 是否有单位占据
func (c Cell) Occupied() bool {
	return c.Occupant != 0
}

// Player 玩家
type Player struct {
	ID            models.PlayerID
	Name          string
	Color         models.Color
	IsCurrentTurn bool
}

// HistoryEntry 历史记录
type HistoryEntry struct {
	ID          models.HistoryID
	UnitID      models.UnitID
	From        models.Position
	To          models.Position
	Description string
}

// Cache 实体缓存
type Cache struct {
	variant *models.Variant

	status      models.SessionStatus
	statusKnown bool
	cursor      models.Cursor
	currentTurn models.PlayerID
	winner      models.PlayerID

	units     map[models.UnitID]*Unit
	players   map[models.PlayerID]*Player
	history   map[models.HistoryID]*HistoryEntry
	cells     []*Cell
	cellIndex map[models.Position]*Cell
}

// New 按变体创建缓存，格子集合此后不再增减
func New(variant *models.Variant) *Cache {
	c := &Cache{
		variant:   variant,
		units:     make(map[models.UnitID]*Unit),
		players:   make(map[models.PlayerID]*Player),
		history:   make(map[models.HistoryID]*HistoryEntry),
		cells:     make([]*Cell, 0, len(variant.Cells)),
		cellIndex: make(map[models.Position]*Cell, len(variant.Cells)),
	}
	for _, p := range variant.Cells {
		cell := &Cell{Position: p}
		c.cells = append(c.cells, cell)
		c.cellIndex[p] = cell
	}
	return c
}

// Variant 返回游戏变体
func (c *Cache) Variant() *models.Variant {
	return c.variant
}

// Status 返回会话状态；ok 为 false 表示尚未收到任何有效快照
func (c *Cache) Status() (status models.SessionStatus, ok bool) {
	return c.status, c.statusKnown
}

// Finished 是否已结束
func (c *Cache) Finished() bool {
	return c.statusKnown && c.status.IsFinished()
}

// Cursor 返回当前游标
func (c *Cache) Cursor() models.Cursor {
	return c.cursor
}

// CurrentTurn 返回当前回合玩家，0 表示无
func (c *Cache) CurrentTurn() models.PlayerID {
	return c.currentTurn
}

// Winner 返回胜者，0 表示无
func (c *Cache) Winner() models.PlayerID {
	return c.winner
}

// Unit 按ID获取单位副本
func (c *Cache) Unit(id models.UnitID) (Unit, bool) {
	u, ok := c.units[id]
	if !ok {
		return Unit{}, false
	}
	return cloneUnit(u), true
}

// Units 返回按ID升序的全部单位
func (c *Cache) Units() []Unit {
	ids := make([]models.UnitID, 0, len(c.units))
	for id := range c.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Unit, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneUnit(c.units[id]))
	}
	return out
}

// Player 按ID获取玩家
func (c *Cache) Player(id models.PlayerID) (Player, bool) {
	p, ok := c.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// PlayerByName 按名称查找玩家
func (c *Cache) PlayerByName(name string) (Player, bool) {
	if name == "" {
		return Player{}, false
	}
	for _, p := range c.players {
		if p.Name == name {
			return *p, true
		}
	}
	return Player{}, false
}

// Players 返回按ID升序的全部玩家
func (c *Cache) Players() []Player {
	out := make([]Player, 0, len(c.players))
	for _, p := range c.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History 返回按ID升序（旧在前）的历史记录
func (c *Cache) History() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(c.history))
	for _, h := range c.history {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cell 按位置获取格子
func (c *Cache) Cell(p models.Position) (Cell, bool) {
	cell, ok := c.cellIndex[p]
	if !ok {
		return Cell{}, false
	}
	return *cell, true
}

// Cells 按变体顺序返回全部格子
func (c *Cache) Cells() []Cell {
	out := make([]Cell, 0, len(c.cells))
	for _, cell := range c.cells {
		out = append(out, *cell)
	}
	return out
}

// Highlighted 返回当前高亮的格子位置
func (c *Cache) Highlighted() []models.Position {
	var out []models.Position
	for _, cell := range c.cells {
		if cell.IsLegalTarget {
			out = append(out, cell.Position)
		}
	}
	return out
}

// Current 以变更通知的形式列出当前全部实体，供中途订阅的视图补齐初始画面。
// 尚未合并过快照时返回空。
func (c *Cache) Current() []Change {
	if !c.statusKnown {
		return nil
	}
	var changes []Change
	for _, u := range c.Units() {
		changes = append(changes, unitChange(u.ID))
	}
	for _, p := range c.Players() {
		changes = append(changes, playerChange(p.ID))
	}
	for _, cell := range c.cells {
		changes = append(changes, cellChange(cell.Position))
	}
	for _, h := range c.History() {
		changes = append(changes, historyChange(h.ID))
	}
	return append(changes, Change{Kind: ChangeSession})
}

// SetHighlights 清空并重新设置高亮格子，返回发生变化的格子
func (c *Cache) SetHighlights(targets []models.Position) []Change {
	want := make(map[models.Position]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}

	var changes []Change
	for _, cell := range c.cells {
		flag := want[cell.Position]
		if cell.IsLegalTarget != flag {
			cell.IsLegalTarget = flag
			changes = append(changes, cellChange(cell.Position))
		}
	}
	return changes
}

// Clone 深拷贝缓存
func (c *Cache) Clone() *Cache {
	out := &Cache{
		variant:     c.variant,
		status:      c.status,
		statusKnown: c.statusKnown,
		cursor:      c.cursor,
		currentTurn: c.currentTurn,
		winner:      c.winner,
		units:       make(map[models.UnitID]*Unit, len(c.units)),
		players:     make(map[models.PlayerID]*Player, len(c.players)),
		history:     make(map[models.HistoryID]*HistoryEntry, len(c.history)),
		cells:       make([]*Cell, 0, len(c.cells)),
		cellIndex:   make(map[models.Position]*Cell, len(c.cells)),
	}
	for id, u := range c.units {
		cu := cloneUnit(u)
		out.units[id] = &cu
	}
	for id, p := range c.players {
		cp := *p
		out.players[id] = &cp
	}
	for id, h := range c.history {
		ch := *h
		out.history[id] = &ch
	}
	for _, cell := range c.cells {
		cc := *cell
		out.cells = append(out.cells, &cc)
		out.cellIndex[cc.Position] = &cc
	}
	return out
}

func cloneUnit(u *Unit) Unit {
	cu := *u
	if u.LegalTargets != nil {
		cu.LegalTargets = append([]models.Position(nil), u.LegalTargets...)
	}
	return cu
}
