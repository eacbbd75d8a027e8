package models

import (
	"fmt"
	"strings"
)

// GameID 游戏会话ID（服务器分配）
type GameID int64

// UnitID 棋子/卡牌ID（服务器分配，会话内稳定且不复用）
type UnitID int64

// PlayerID 玩家ID，0 表示无
type PlayerID int64

// HistoryID 历史记录ID（单调递增）
type HistoryID int64

// Cursor 同步游标，只增不减
type Cursor int64

// Position 格子/卡槽标签
type Position string

// Captured 已离场（被吃/弃牌）的位置标记
const Captured Position = ""

// OnBoard 是否仍在场上
func (p Position) OnBoard() bool {
	return p != Captured
}

// SessionStatus 会话状态
type SessionStatus int

const (
	StatusPending  SessionStatus = 0 // 等待玩家
	StatusActive   SessionStatus = 1 // 进行中
	StatusFinished SessionStatus = 2 // 已结束（停止轮询）
)

// IsFinished 是否已结束
func (s SessionStatus) IsFinished() bool {
	return s == StatusFinished
}

// String 状态名称，未知值视为进行中
func (s SessionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("in_progress(%d)", int(s))
	}
}

// UnitKind 棋子/卡牌类型（封闭枚举）
type UnitKind int

const (
	KindUnknown UnitKind = iota
	KindPawn
	KindRook
	KindKnight
	KindBishop
	KindQueen
	KindKing
	KindQuestionCard
	KindAnswerCard
)

var unitKindNames = map[UnitKind]string{
	KindUnknown:      "UNKNOWN",
	KindPawn:         "PAWN",
	KindRook:         "ROOK",
	KindKnight:       "KNIGHT",
	KindBishop:       "BISHOP",
	KindQueen:        "QUEEN",
	KindKing:         "KING",
	KindQuestionCard: "QUESTION",
	KindAnswerCard:   "ANSWER",
}

// String 返回线上格式名称
func (k UnitKind) String() string {
	if name, ok := unitKindNames[k]; ok {
		return name
	}
	return unitKindNames[KindUnknown]
}

// IsCard 是否为卡牌
func (k UnitKind) IsCard() bool {
	switch k {
	case KindQuestionCard, KindAnswerCard:
		return true
	default:
		return false
	}
}

// ParseUnitKind 解析线上类型名称，未知类型返回 KindUnknown
func ParseUnitKind(s string) UnitKind {
	name := strings.ToUpper(strings.TrimSpace(s))
	for kind, n := range unitKindNames {
		if n == name {
			return kind
		}
	}
	return KindUnknown
}

// Color 玩家颜色/角色
type Color int

const (
	ColorNone Color = iota
	ColorWhite
	ColorBlack
)

// String 返回线上格式名称
func (c Color) String() string {
	switch c {
	case ColorWhite:
		return "WHITE"
	case ColorBlack:
		return "BLACK"
	default:
		return ""
	}
}

// ParseColor 解析颜色名称
func ParseColor(s string) Color {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WHITE":
		return ColorWhite
	case "BLACK":
		return ColorBlack
	default:
		return ColorNone
	}
}
