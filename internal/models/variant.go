package models

import "fmt"

// Variant 游戏变体：固定的格子集合与允许的单位类型
type Variant struct {
	Name  string
	Cells []Position
	Kinds []UnitKind
}

// HasCell 判断格子是否属于该变体
func (v *Variant) HasCell(p Position) bool {
	for _, c := range v.Cells {
		if c == p {
			return true
		}
	}
	return false
}

// Chess 国际象棋：A8..A1, B8..B1, ... H1
var Chess = newChessVariant()

// Cards 卡牌游戏：手牌槽、桌面槽与胜出槽
var Cards = newCardsVariant()

func newChessVariant() *Variant {
	columns := "ABCDEFGH"
	cells := make([]Position, 0, 64)
	for x := 0; x < 8; x++ {
		for y := 8; y > 0; y-- {
			cells = append(cells, Position(fmt.Sprintf("%c%d", columns[x], y)))
		}
	}
	return &Variant{
		Name:  "chess",
		Cells: cells,
		Kinds: []UnitKind{KindPawn, KindRook, KindKnight, KindBishop, KindQueen, KindKing},
	}
}

func newCardsVariant() *Variant {
	cells := make([]Position, 0, 19)
	for i := 1; i <= 10; i++ {
		cells = append(cells, Position(fmt.Sprintf("HAND%d", i)))
	}
	for i := 1; i <= 8; i++ {
		cells = append(cells, Position(fmt.Sprintf("TABLE%d", i)))
	}
	cells = append(cells, WinnerSlot)
	return &Variant{
		Name:  "cards",
		Cells: cells,
		Kinds: []UnitKind{KindQuestionCard, KindAnswerCard},
	}
}

// WinnerSlot 卡牌游戏的胜出槽
const WinnerSlot Position = "WINNER"

// VariantByName 根据名称查找变体
func VariantByName(name string) (*Variant, error) {
	switch name {
	case "", "chess":
		return Chess, nil
	case "cards":
		return Cards, nil
	default:
		return nil, fmt.Errorf("未知的游戏变体: %s", name)
	}
}
