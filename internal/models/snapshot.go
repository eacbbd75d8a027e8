package models

// Snapshot 服务器增量快照（已解码）
type Snapshot struct {
	// Status 为 nil 表示“没有新数据”，必须丢弃
	Status              *SessionStatus
	Cursor              Cursor
	Units               []UnitRecord
	Players             []PlayerRecord
	History             []HistoryRecord
	Moves               map[UnitID][]Position
	CurrentTurnPlayerID PlayerID
	WinnerPlayerID      PlayerID
}

// HasData 是否携带新数据
func (s *Snapshot) HasData() bool {
	return s != nil && s.Status != nil
}

// UnitRecord 快照中的单位
type UnitRecord struct {
	ID       UnitID
	Kind     UnitKind
	Owner    PlayerID
	Position Position
}

// PlayerRecord 快照中的玩家
type PlayerRecord struct {
	ID    PlayerID
	Name  string
	Color Color
}

// HistoryRecord 快照中的历史记录
type HistoryRecord struct {
	ID          HistoryID
	UnitID      UnitID
	From        Position
	To          Position
	Description string
}

// LobbyGame 大厅中的会话
type LobbyGame struct {
	ID    GameID   `json:"id"`
	Users []string `json:"users"`
}

// StatusPtr 返回状态指针，便于构造快照
func StatusPtr(s SessionStatus) *SessionStatus {
	return &s
}
