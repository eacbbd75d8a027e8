package devserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/board-sync/internal/models"
)

// withIDs 按顺序分配ID
func withIDs(pieces []*models.GamePiece) []*models.GamePiece {
	for i, p := range pieces {
		p.ID = uint(i + 1)
	}
	return pieces
}

func countMoves(moves map[uint][]string) int {
	n := 0
	for _, targets := range moves {
		n += len(targets)
	}
	return n
}

func TestParseSquare(t *testing.T) {
	sq, ok := parseSquare("E2")
	require.True(t, ok)
	assert.Equal(t, square{col: 5, row: 2}, sq)
	assert.Equal(t, "E2", sq.String())

	for _, bad := range []string{"", "E", "E9", "I1", "e2", "E0", "HAND1"} {
		_, ok := parseSquare(bad)
		assert.False(t, ok, bad)
	}

	_, ok = square{col: 8, row: 8}.offset(1, 0)
	assert.False(t, ok)
}

func TestChessMoves_Opening(t *testing.T) {
	pieces := withIDs(seedChess(1))

	for seat := 0; seat < 2; seat++ {
		moves := chessMoves(pieces, seat)
		// 8个兵各两步，两个马各两步
		assert.Len(t, moves, 10)
		assert.Equal(t, 20, countMoves(moves))
	}

	white := chessMoves(pieces, 0)
	// B1 的马
	assert.Equal(t, []string{"A3", "C3"}, white[2])
	// E2 的兵
	assert.Equal(t, []string{"E3", "E4"}, white[13])

	black := chessMoves(pieces, 1)
	// E7 的兵
	assert.Equal(t, []string{"E5", "E6"}, black[29])
}

func TestChessMoves_PinnedPiece(t *testing.T) {
	pieces := withIDs([]*models.GamePiece{
		{Kind: "KING", Seat: 0, Position: "E1"},
		{Kind: "ROOK", Seat: 0, Position: "E2"},
		{Kind: "ROOK", Seat: 1, Position: "E8"},
		{Kind: "KING", Seat: 1, Position: "A8"},
	})

	moves := chessMoves(pieces, 0)
	// 被牵制的车只能沿E线移动（可以吃掉E8）
	assert.Equal(t, []string{"E3", "E4", "E5", "E6", "E7", "E8"}, moves[2])
	assert.Equal(t, []string{"D1", "D2", "F1", "F2"}, moves[1])
}

func TestChessMoves_PawnCaptures(t *testing.T) {
	pieces := withIDs([]*models.GamePiece{
		{Kind: "PAWN", Seat: 0, Position: "D4"},
		{Kind: "PAWN", Seat: 1, Position: "E5"},
		{Kind: "PAWN", Seat: 1, Position: "D5"},
		{Kind: "PAWN", Seat: 0, Position: "C5"},
	})

	moves := chessMoves(pieces, 0)
	// 前方被挡，只能斜吃；C5 是己方棋子
	assert.Equal(t, []string{"E5"}, moves[1])

	black := chessMoves(pieces, 1)
	assert.Equal(t, []string{"D4", "E4"}, black[2])
	// D5 前方被挡，斜前方为空
	assert.NotContains(t, black, uint(3))
}

func TestChessMoves_CheckmateHasNoMoves(t *testing.T) {
	// 底线将死
	pieces := withIDs([]*models.GamePiece{
		{Kind: "KING", Seat: 0, Position: "G1"},
		{Kind: "PAWN", Seat: 0, Position: "F2"},
		{Kind: "PAWN", Seat: 0, Position: "G2"},
		{Kind: "PAWN", Seat: 0, Position: "H2"},
		{Kind: "ROOK", Seat: 1, Position: "A1"},
		{Kind: "KING", Seat: 1, Position: "G8"},
	})

	b := newBoard(pieces)
	assert.True(t, b.inCheck(0))
	assert.Empty(t, chessMoves(pieces, 0))
}

func TestChessMoves_CapturedPiecesIgnored(t *testing.T) {
	pieces := withIDs([]*models.GamePiece{
		{Kind: "QUEEN", Seat: 0, Position: ""},
		{Kind: "KING", Seat: 0, Position: "A1"},
	})
	moves := chessMoves(pieces, 0)
	assert.NotContains(t, moves, uint(1))
	assert.Equal(t, []string{"A2", "B1", "B2"}, moves[2])
}

func TestCardMoves(t *testing.T) {
	pieces := withIDs(seedCards(1))
	require.Len(t, pieces, 11)

	// 座位0可以把任意手牌打到 TABLE2..TABLE8
	moves := cardMoves(pieces, 0, 2)
	assert.Len(t, moves, handSlotsPerSeat)
	assert.Equal(t, []string{"TABLE2", "TABLE3", "TABLE4", "TABLE5", "TABLE6", "TABLE7", "TABLE8"}, moves[2])
	assert.NotContains(t, moves, uint(1), "问题卡不能移动")

	// 出牌后本座位不能再出
	pieces[1].Position = "TABLE2"
	assert.Empty(t, cardMoves(pieces, 0, 2))

	// 座位1出牌后，座位0从对方的桌面牌中选胜者
	seat1 := cardMoves(pieces, 1, 2)
	assert.Len(t, seat1, handSlotsPerSeat)
	assert.NotContains(t, seat1[7], "TABLE2")

	pieces[6].Position = "TABLE3"
	final := cardMoves(pieces, 0, 2)
	assert.Equal(t, map[uint][]string{7: {"WINNER"}}, final)

	// 已有胜者后没有走法
	pieces[6].Position = "WINNER"
	assert.Empty(t, cardMoves(pieces, 1, 2))
}

func TestLegalMoves_Dispatch(t *testing.T) {
	assert.Equal(t, 20, countMoves(LegalMoves("chess", withIDs(seedChess(1)), 0, 2)))
	assert.Len(t, LegalMoves("cards", withIDs(seedCards(1)), 1, 2), handSlotsPerSeat)
}

func TestFirstMove(t *testing.T) {
	id, target, ok := firstMove(map[uint][]string{9: {"A3"}, 4: {"B3", "C3"}, 2: nil})
	require.True(t, ok)
	assert.Equal(t, uint(4), id)
	assert.Equal(t, "B3", target)

	_, _, ok = firstMove(nil)
	assert.False(t, ok)
}
