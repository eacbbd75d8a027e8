package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel 基础模型
type BaseModel struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// 以下为开发服务器的存储模型。
// 每行记录修改时的 Revision；Game.Revision 即对外的同步游标。

// Game 对局
type Game struct {
	BaseModel
	Variant     string `gorm:"type:varchar(16);not null;default:'chess'" json:"variant"`
	Status      int    `gorm:"not null;default:0;index" json:"status"`
	Revision    int64  `gorm:"not null;default:0" json:"revision"`
	CurrentTurn uint   `gorm:"default:0" json:"current_turn"` // GamePlayer.ID
	Winner      uint   `gorm:"default:0" json:"winner"`       // GamePlayer.ID

	Players []GamePlayer `gorm:"foreignKey:GameID" json:"players,omitempty"`
}

// TableName 指定表名
func (Game) TableName() string {
	return "games"
}

// GamePlayer 对局中的玩家
type GamePlayer struct {
	BaseModel
	GameID   uint   `gorm:"not null;index" json:"game_id"`
	Username string `gorm:"type:varchar(64);not null" json:"username"`
	Color    string `gorm:"type:varchar(8)" json:"color"`
	Bot      bool   `gorm:"default:false" json:"bot"`
	Seat     int    `gorm:"not null;default:0" json:"seat"`
	Revision int64  `gorm:"not null;default:0;index" json:"revision"`
}

// TableName 指定表名
func (GamePlayer) TableName() string {
	return "game_players"
}

// GamePiece 棋子/卡牌
type GamePiece struct {
	BaseModel
	GameID   uint   `gorm:"not null;index" json:"game_id"`
	PlayerID uint   `gorm:"default:0" json:"player_id"` // 0 表示公共（如问题卡）
	Kind     string `gorm:"type:varchar(16);not null" json:"kind"`
	Seat     int    `gorm:"not null;default:0" json:"seat"` // 归属座位，玩家加入时据此绑定
	Position string `gorm:"type:varchar(16)" json:"position"`
	Revision int64  `gorm:"not null;default:0;index" json:"revision"`
}

// TableName 指定表名
func (GamePiece) TableName() string {
	return "game_pieces"
}

// MoveHistory 走子/消息历史
type MoveHistory struct {
	BaseModel
	GameID   uint   `gorm:"not null;index" json:"game_id"`
	PieceID  uint   `gorm:"default:0" json:"piece_id"`
	PlayerID uint   `gorm:"default:0" json:"player_id"`
	From     string `gorm:"column:from_position;type:varchar(16)" json:"from"`
	To       string `gorm:"column:to_position;type:varchar(16)" json:"to"`
	Message  string `gorm:"type:text" json:"message,omitempty"`
	Revision int64  `gorm:"not null;default:0;index" json:"revision"`
}

// TableName 指定表名
func (MoveHistory) TableName() string {
	return "move_histories"
}
