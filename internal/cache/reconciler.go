package cache

import (
	"fmt"
	"sort"

	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
	"go.uber.org/zap"
)

// Outcome 合并结果
type Outcome int

const (
	OutcomeApplied   Outcome = iota // 已合并
	OutcomeDiscarded                // 已丢弃，缓存未变
)

// String 结果名称
func (o Outcome) String() string {
	if o == OutcomeApplied {
		return "applied"
	}
	return "discarded"
}

// MergeResult 一次合并的结果
type MergeResult struct {
	Outcome Outcome
	// Reason 丢弃原因（ErrStaleSnapshot / ErrCursorRegression）
	Reason  *apperrors.AppError
	Changes []Change
}

// Reconciler 将快照合并到缓存：只增改，不删除
type Reconciler struct {
	logger *zap.Logger
}

// NewReconciler 创建合并器
func NewReconciler(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{logger: logger}
}

// Merge 合并快照。缺少状态字段或游标回退的快照直接丢弃，不修改缓存。
// 返回的变更列表在所有派生关系重算完成后才生成。
func (r *Reconciler) Merge(c *Cache, snap *models.Snapshot) MergeResult {
	if !snap.HasData() {
		return MergeResult{
			Outcome: OutcomeDiscarded,
			Reason:  apperrors.New(apperrors.ErrStaleSnapshot),
		}
	}
	if snap.Cursor < c.cursor {
		return MergeResult{
			Outcome: OutcomeDiscarded,
			Reason:  apperrors.Newf(apperrors.ErrCursorRegression, "当前=%d 快照=%d", c.cursor, snap.Cursor),
		}
	}

	changes := newChangeSet()

	r.upsertUnits(c, snap.Units, changes)
	r.upsertPlayers(c, snap.Players, changes)
	r.upsertHistory(c, snap.History, changes)

	r.recomputeOccupancy(c, changes)
	r.recomputeTurn(c, snap.CurrentTurnPlayerID, changes)
	r.recomputeTargets(c, snap.Moves, changes)

	c.cursor = snap.Cursor
	c.status = *snap.Status
	c.statusKnown = true
	c.currentTurn = snap.CurrentTurnPlayerID
	c.winner = snap.WinnerPlayerID
	changes.add(Change{Kind: ChangeSession})

	return MergeResult{Outcome: OutcomeApplied, Changes: changes.items}
}

func (r *Reconciler) upsertUnits(c *Cache, records []models.UnitRecord, changes *changeSet) {
	for _, rec := range records {
		u, ok := c.units[rec.ID]
		if !ok {
			c.units[rec.ID] = &Unit{
				ID:       rec.ID,
				Kind:     rec.Kind,
				Owner:    rec.Owner,
				Position: rec.Position,
			}
			changes.add(unitChange(rec.ID))
			r.checkPosition(c, rec)
			continue
		}
		if u.Kind == rec.Kind && u.Owner == rec.Owner && u.Position == rec.Position {
			continue
		}
		u.Kind = rec.Kind
		u.Owner = rec.Owner
		u.Position = rec.Position
		changes.add(unitChange(rec.ID))
		r.checkPosition(c, rec)
	}
}

// checkPosition 位置不属于当前变体时仅告警，单位仍保留
func (r *Reconciler) checkPosition(c *Cache, rec models.UnitRecord) {
	if !rec.Position.OnBoard() {
		return
	}
	if _, ok := c.cellIndex[rec.Position]; !ok {
		r.logger.Warn("单位位置不在棋盘上",
			zap.Int64("unit_id", int64(rec.ID)),
			zap.String("position", string(rec.Position)),
			zap.String("variant", c.variant.Name))
	}
}

func (r *Reconciler) upsertPlayers(c *Cache, records []models.PlayerRecord, changes *changeSet) {
	for _, rec := range records {
		p, ok := c.players[rec.ID]
		if !ok {
			c.players[rec.ID] = &Player{ID: rec.ID, Name: rec.Name, Color: rec.Color}
			changes.add(playerChange(rec.ID))
			continue
		}
		if p.Name == rec.Name && p.Color == rec.Color {
			continue
		}
		p.Name = rec.Name
		p.Color = rec.Color
		changes.add(playerChange(rec.ID))
	}
}

func (r *Reconciler) upsertHistory(c *Cache, records []models.HistoryRecord, changes *changeSet) {
	for _, rec := range records {
		desc := rec.Description
		if desc == "" {
			desc = describeMove(c, rec)
		}
		next := HistoryEntry{
			ID:          rec.ID,
			UnitID:      rec.UnitID,
			From:        rec.From,
			To:          rec.To,
			Description: desc,
		}
		if h, ok := c.history[rec.ID]; ok && *h == next {
			continue
		}
		c.history[rec.ID] = &next
		changes.add(historyChange(rec.ID))
	}
}

// describeMove 生成可读的走子描述
func describeMove(c *Cache, rec models.HistoryRecord) string {
	kind := models.KindUnknown
	if u, ok := c.units[rec.UnitID]; ok {
		kind = u.Kind
	}
	return fmt.Sprintf("%s %s-%s", kind, rec.From, rec.To)
}

// recomputeOccupancy 每个格子最多对应一个单位；冲突时ID最小者占据
func (r *Reconciler) recomputeOccupancy(c *Cache, changes *changeSet) {
	occupant := make(map[models.Position]models.UnitID, len(c.cells))
	for id, u := range c.units {
		if !u.OnBoard() {
			continue
		}
		if prev, ok := occupant[u.Position]; ok {
			r.logger.Warn("多个单位位于同一格子",
				zap.String("position", string(u.Position)),
				zap.Int64("unit_a", int64(prev)),
				zap.Int64("unit_b", int64(id)))
			if prev < id {
				continue
			}
		}
		occupant[u.Position] = id
	}

	for _, cell := range c.cells {
		next := occupant[cell.Position]
		if cell.Occupant != next {
			cell.Occupant = next
			changes.add(cellChange(cell.Position))
		}
	}
}

func (r *Reconciler) recomputeTurn(c *Cache, current models.PlayerID, changes *changeSet) {
	for id, p := range c.players {
		flag := current != 0 && id == current
		if p.IsCurrentTurn != flag {
			p.IsCurrentTurn = flag
			changes.add(playerChange(id))
		}
	}
}

// recomputeTargets 按服务器给出的走法表重算合法落点；不在表中的单位清空
func (r *Reconciler) recomputeTargets(c *Cache, moves map[models.UnitID][]models.Position, changes *changeSet) {
	for id := range moves {
		if _, ok := c.units[id]; !ok {
			r.logger.Warn("走法表引用了未知单位", zap.Int64("unit_id", int64(id)))
		}
	}

	for id, u := range c.units {
		next := normalizeTargets(moves[id])
		if equalTargets(u.LegalTargets, next) {
			continue
		}
		u.LegalTargets = next
		changes.add(unitChange(id))
	}
}

// normalizeTargets 排序去重，空集合统一为nil
func normalizeTargets(in []models.Position) []models.Position {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[models.Position]bool, len(in))
	out := make([]models.Position, 0, len(in))
	for _, p := range in {
		if !p.OnBoard() || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalTargets(a, b []models.Position) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
