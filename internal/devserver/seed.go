package devserver

import (
	"github.com/wfunc/board-sync/internal/models"
)

// publicSeat 不属于任何座位的卡牌（问题卡）
const publicSeat = -1

var backRank = []string{"ROOK", "KNIGHT", "BISHOP", "QUEEN", "KING", "BISHOP", "KNIGHT", "ROOK"}

// seedPieces 新对局的初始棋子，归属在玩家加入时按座位绑定
func seedPieces(variant string, revision int64) []*models.GamePiece {
	if variant == models.Cards.Name {
		return seedCards(revision)
	}
	return seedChess(revision)
}

func seedChess(revision int64) []*models.GamePiece {
	pieces := make([]*models.GamePiece, 0, 32)
	for seat, rows := range [][2]int{{1, 2}, {8, 7}} {
		for i, kind := range backRank {
			pieces = append(pieces, &models.GamePiece{
				Kind:     kind,
				Seat:     seat,
				Position: square{col: i + 1, row: rows[0]}.String(),
				Revision: revision,
			})
		}
		for i := 0; i < 8; i++ {
			pieces = append(pieces, &models.GamePiece{
				Kind:     "PAWN",
				Seat:     seat,
				Position: square{col: i + 1, row: rows[1]}.String(),
				Revision: revision,
			})
		}
	}
	return pieces
}

func seedCards(revision int64) []*models.GamePiece {
	pieces := []*models.GamePiece{{
		Kind:     "QUESTION",
		Seat:     publicSeat,
		Position: "TABLE1",
		Revision: revision,
	}}
	for seat := 0; seat < 2; seat++ {
		for i := 0; i < handSlotsPerSeat; i++ {
			pieces = append(pieces, &models.GamePiece{
				Kind:     "ANSWER",
				Seat:     seat,
				Position: handSlot(seat, i),
				Revision: revision,
			})
		}
	}
	return pieces
}

// seatColor 国际象棋的座位颜色；卡牌游戏无颜色
func seatColor(variant string, seat int) string {
	if variant == models.Cards.Name {
		return ""
	}
	if seat == 0 {
		return models.ColorWhite.String()
	}
	return models.ColorBlack.String()
}
