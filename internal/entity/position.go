package entity

import "github.com/shopspring/decimal"

type PositionSide string

const (
	PositionSideNone  PositionSide = "NONE"
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// PositionSnapshot is a point in time read of the exchange position for one symbol.
type PositionSnapshot struct {
	Symbol     string          `json:"symbol"`
	Side       PositionSide    `json:"side"`
	Volume     decimal.Decimal `json:"volume"`
	PositionID string          `json:"position_id,omitempty"`
}

func EmptyPosition(symbol string) PositionSnapshot {
	return PositionSnapshot{
		Symbol: symbol,
		Side:   PositionSideNone,
		Volume: decimal.Zero,
	}
}

// Opposes reports whether holding this position conflicts with a new signal in the given direction.
func (p PositionSnapshot) Opposes(direction Direction) bool {
	switch p.Side {
	case PositionSideLong:
		return direction == DirectionSell
	case PositionSideShort:
		return direction == DirectionBuy
	default:
		return false
	}
}
