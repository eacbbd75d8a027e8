package devserver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wfunc/board-sync/internal/models"
)

const columns = "ABCDEFGH"

// square 棋盘坐标：col 1..8 对应 A..H，row 1..8
type square struct {
	col, row int
}

func parseSquare(p string) (square, bool) {
	if len(p) != 2 {
		return square{}, false
	}
	col := strings.IndexByte(columns, p[0]) + 1
	row := int(p[1] - '0')
	if col < 1 || row < 1 || row > 8 {
		return square{}, false
	}
	return square{col: col, row: row}, true
}

func (s square) offset(dc, dr int) (square, bool) {
	n := square{col: s.col + dc, row: s.row + dr}
	if n.col < 1 || n.col > 8 || n.row < 1 || n.row > 8 {
		return square{}, false
	}
	return n, true
}

func (s square) String() string {
	return fmt.Sprintf("%c%d", columns[s.col-1], s.row)
}

var (
	knightSteps = [][2]int{{2, 1}, {-2, 1}, {-2, -1}, {2, -1}, {1, 2}, {-1, 2}, {-1, -2}, {1, -2}}
	cardinal    = [][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
	diagonal    = [][2]int{{1, 1}, {1, -1}, {-1, -1}, {-1, 1}}
)

// forward 座位0（白方）向上，座位1（黑方）向下
func forward(seat int) int {
	if seat == 0 {
		return 1
	}
	return -1
}

// lastRow 兵升变的行
func lastRow(seat int) int {
	if seat == 0 {
		return 8
	}
	return 1
}

func startRow(seat int) int {
	if seat == 0 {
		return 2
	}
	return 7
}

// board 推演用的局面
type board struct {
	pieces []*models.GamePiece
	at     map[string]*models.GamePiece
}

func newBoard(pieces []*models.GamePiece) *board {
	b := &board{pieces: pieces, at: make(map[string]*models.GamePiece, len(pieces))}
	for _, p := range pieces {
		if p.Position != "" {
			b.at[p.Position] = p
		}
	}
	return b
}

// after 走子后的局面（复制棋子，不修改原局面）
func (b *board) after(piece *models.GamePiece, target string) *board {
	pieces := make([]*models.GamePiece, 0, len(b.pieces))
	for _, p := range b.pieces {
		cp := *p
		switch {
		case p.ID == piece.ID:
			cp.Position = target
		case p.Position == target:
			cp.Position = ""
		}
		pieces = append(pieces, &cp)
	}
	return newBoard(pieces)
}

// slide 沿方向走 distance 步，遇子停止（敌子可吃）
func (b *board) slide(piece *models.GamePiece, from square, dirs [][2]int, distance int) []string {
	var result []string
	for _, d := range dirs {
		cur := from
		for i := 0; i < distance; i++ {
			next, ok := cur.offset(d[0], d[1])
			if !ok {
				break
			}
			cur = next
			occupant := b.at[cur.String()]
			if occupant == nil {
				result = append(result, cur.String())
				continue
			}
			if occupant.Seat != piece.Seat {
				result = append(result, cur.String())
			}
			break
		}
	}
	return result
}

// reach 棋子可到达的格子（不考虑自身王是否被将军）；attacksOnly 时兵只算斜吃
func (b *board) reach(piece *models.GamePiece, attacksOnly bool) []string {
	from, ok := parseSquare(piece.Position)
	if !ok {
		return nil
	}

	switch models.ParseUnitKind(piece.Kind) {
	case models.KindPawn:
		return b.pawn(piece, from, attacksOnly)
	case models.KindKnight:
		var result []string
		for _, step := range knightSteps {
			to, ok := from.offset(step[0], step[1])
			if !ok {
				continue
			}
			if occupant := b.at[to.String()]; occupant == nil || occupant.Seat != piece.Seat {
				result = append(result, to.String())
			}
		}
		return result
	case models.KindRook:
		return b.slide(piece, from, cardinal, 8)
	case models.KindBishop:
		return b.slide(piece, from, diagonal, 8)
	case models.KindQueen:
		return append(b.slide(piece, from, cardinal, 8), b.slide(piece, from, diagonal, 8)...)
	case models.KindKing:
		return append(b.slide(piece, from, cardinal, 1), b.slide(piece, from, diagonal, 1)...)
	default:
		return nil
	}
}

func (b *board) pawn(piece *models.GamePiece, from square, attacksOnly bool) []string {
	var result []string
	dir := forward(piece.Seat)

	if !attacksOnly {
		if one, ok := from.offset(0, dir); ok && b.at[one.String()] == nil {
			result = append(result, one.String())
			if from.row == startRow(piece.Seat) {
				if two, ok := from.offset(0, 2*dir); ok && b.at[two.String()] == nil {
					result = append(result, two.String())
				}
			}
		}
	}

	for _, dc := range []int{1, -1} {
		to, ok := from.offset(dc, dir)
		if !ok {
			continue
		}
		occupant := b.at[to.String()]
		if attacksOnly || (occupant != nil && occupant.Seat != piece.Seat) {
			result = append(result, to.String())
		}
	}
	return result
}

// attacked 格子是否被 seat 方攻击
func (b *board) attacked(target string, seat int) bool {
	for _, p := range b.pieces {
		if p.Position == "" || p.Seat != seat {
			continue
		}
		for _, to := range b.reach(p, true) {
			if to == target {
				return true
			}
		}
	}
	return false
}

// inCheck seat 方的王是否被将军；没有王时视为否
func (b *board) inCheck(seat int) bool {
	for _, p := range b.pieces {
		if p.Seat == seat && p.Position != "" && models.ParseUnitKind(p.Kind) == models.KindKing {
			return b.attacked(p.Position, 1-seat)
		}
	}
	return false
}

// chessMoves seat 方的合法走法：走完后自己的王不能被将军
// 不支持王车易位与吃过路兵
func chessMoves(pieces []*models.GamePiece, seat int) map[uint][]string {
	b := newBoard(pieces)
	moves := make(map[uint][]string)
	for _, p := range b.pieces {
		if p.Seat != seat || p.Position == "" {
			continue
		}
		var legal []string
		for _, to := range b.reach(p, false) {
			if !b.after(p, to).inCheck(seat) {
				legal = append(legal, to)
			}
		}
		if len(legal) > 0 {
			sort.Strings(legal)
			moves[p.ID] = legal
		}
	}
	return moves
}

// 卡牌游戏：每个座位的手牌槽
const handSlotsPerSeat = 5

func handSlot(seat, i int) string {
	return fmt.Sprintf("HAND%d", seat*handSlotsPerSeat+i+1)
}

// cardMoves 卡牌规则：
// 轮到的座位可以把一张手牌打到空桌面槽（每个座位一张）；
// 所有座位都已出牌后，轮到的座位从别人的桌面牌中选出胜者移入 WINNER。
func cardMoves(pieces []*models.GamePiece, seat, seats int) map[uint][]string {
	b := newBoard(pieces)
	moves := make(map[uint][]string)
	if b.at[string(models.WinnerSlot)] != nil {
		return moves
	}

	played := make(map[int]bool)
	var emptyTable []string
	for i := 2; i <= 8; i++ {
		slot := fmt.Sprintf("TABLE%d", i)
		if occupant := b.at[slot]; occupant != nil {
			played[occupant.Seat] = true
		} else {
			emptyTable = append(emptyTable, slot)
		}
	}

	allPlayed := seats > 1
	for s := 0; s < seats; s++ {
		if !played[s] {
			allPlayed = false
		}
	}

	for _, p := range b.pieces {
		if models.ParseUnitKind(p.Kind) != models.KindAnswerCard || p.Position == "" {
			continue
		}
		onTable := strings.HasPrefix(p.Position, "TABLE")
		switch {
		case !onTable && p.Seat == seat && !played[seat] && len(emptyTable) > 0:
			moves[p.ID] = append([]string(nil), emptyTable...)
		case onTable && allPlayed && p.Seat != seat:
			moves[p.ID] = []string{string(models.WinnerSlot)}
		}
	}
	return moves
}

// LegalMoves 当前座位的全部合法走法（棋子ID -> 目标格，升序）
func LegalMoves(variant string, pieces []*models.GamePiece, seat, seats int) map[uint][]string {
	if variant == models.Cards.Name {
		return cardMoves(pieces, seat, seats)
	}
	return chessMoves(pieces, seat)
}
