package client

import (
	"bytes"
	"encoding/json"
	"strconv"

	apperrors "github.com/wfunc/board-sync/internal/errors"
	"github.com/wfunc/board-sync/internal/models"
)

// Cursor 线上游标：数字或带引号的十进制串（原始服务器发送浮点时间戳），小数部分截断
type Cursor int64

// UnmarshalJSON 解析游标
func (c *Cursor) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*c = 0
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(s)
		if len(raw) == 0 {
			*c = 0
			return nil
		}
	}

	if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		if n < 0 {
			return apperrors.Newf(apperrors.ErrMessageFormat, "游标为负: %s", raw)
		}
		*c = Cursor(n)
		return nil
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return err
	}
	if !(f >= 0 && f < maxCursor) {
		return apperrors.Newf(apperrors.ErrMessageFormat, "游标超出范围: %s", raw)
	}
	// 向下截断：同一秒内的行会被重复拉取，合并幂等，不会漏行
	*c = Cursor(int64(f))
	return nil
}

// maxCursor 2^63，int64 可表示的上界
const maxCursor = 0x1p63

// GameSnapshot 快照响应
type GameSnapshot struct {
	Status      *int      `json:"status,omitempty"`
	LastUpdated Cursor    `json:"lastUpdated"`
	Pieces      []Piece   `json:"pieces"`
	Players     []Player  `json:"players"`
	History     []History `json:"history"`
	Moves       []Moves   `json:"moves"`
	CurrentTurn *int64    `json:"currentturn_player_id"`
	Winner      *int64    `json:"winner_player_id"`
}

// Piece 棋子/卡牌
type Piece struct {
	ID       int64  `json:"id"`
	PlayerID int64  `json:"player_id"`
	Type     string `json:"type"`
	Position string `json:"position"`
}

// Player 玩家
type Player struct {
	ID       int64  `json:"id"`
	Color    string `json:"color"`
	Username string `json:"username"`
}

// History 历史记录；卡牌游戏的文字消息放在 message 中
type History struct {
	ID      int64  `json:"id"`
	PieceID int64  `json:"piece_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
}

// Moves 单个单位的合法落点
type Moves struct {
	ID        int64    `json:"id"`
	Positions []string `json:"positions"`
}

// NewGameResponse 新建会话响应
type NewGameResponse struct {
	GameID int64 `json:"game_id"`
	// ID 卡牌游戏使用的字段名
	ID int64 `json:"id,omitempty"`
}

// DecodeSnapshot 解码快照。缺少 status 的响应（包括 {}）解码为 Status 为 nil 的快照。
func DecodeSnapshot(data []byte) (*models.Snapshot, error) {
	var wire GameSnapshot
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat, "快照")
		}
	}
	return wire.ToModel(), nil
}

// ToModel 转换为领域快照
func (w *GameSnapshot) ToModel() *models.Snapshot {
	snap := &models.Snapshot{
		Cursor: models.Cursor(w.LastUpdated),
	}
	if w.Status != nil {
		snap.Status = models.StatusPtr(models.SessionStatus(*w.Status))
	}
	if w.CurrentTurn != nil {
		snap.CurrentTurnPlayerID = models.PlayerID(*w.CurrentTurn)
	}
	if w.Winner != nil {
		snap.WinnerPlayerID = models.PlayerID(*w.Winner)
	}

	for _, p := range w.Pieces {
		snap.Units = append(snap.Units, models.UnitRecord{
			ID:       models.UnitID(p.ID),
			Kind:     models.ParseUnitKind(p.Type),
			Owner:    models.PlayerID(p.PlayerID),
			Position: models.Position(p.Position),
		})
	}
	for _, p := range w.Players {
		snap.Players = append(snap.Players, models.PlayerRecord{
			ID:    models.PlayerID(p.ID),
			Name:  p.Username,
			Color: models.ParseColor(p.Color),
		})
	}
	for _, h := range w.History {
		snap.History = append(snap.History, models.HistoryRecord{
			ID:          models.HistoryID(h.ID),
			UnitID:      models.UnitID(h.PieceID),
			From:        models.Position(h.From),
			To:          models.Position(h.To),
			Description: h.Message,
		})
	}
	if len(w.Moves) > 0 {
		snap.Moves = make(map[models.UnitID][]models.Position, len(w.Moves))
		for _, m := range w.Moves {
			id := models.UnitID(m.ID)
			for _, p := range m.Positions {
				snap.Moves[id] = append(snap.Moves[id], models.Position(p))
			}
		}
	}
	return snap
}
