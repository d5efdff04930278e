package entity

import (
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideOpenLong   OrderSide = "OPEN_LONG"
	OrderSideOpenShort  OrderSide = "OPEN_SHORT"
	OrderSideCloseLong  OrderSide = "CLOSE_LONG"
	OrderSideCloseShort OrderSide = "CLOSE_SHORT"
)

type MarginMode string

const (
	MarginModeIsolated MarginMode = "isolated"
	MarginModeCross    MarginMode = "cross"
)

// OpenSideFor returns the order side that opens exposure in the given direction.
func OpenSideFor(direction Direction) OrderSide {
	if direction == DirectionSell {
		return OrderSideOpenShort
	}
	return OrderSideOpenLong
}

// CloseSideFor returns the order side that flattens the given position.
func CloseSideFor(side PositionSide) OrderSide {
	if side == PositionSideShort {
		return OrderSideCloseShort
	}
	return OrderSideCloseLong
}

type OrderSubmission struct {
	Symbol     string
	Side       OrderSide
	Volume     decimal.Decimal
	Leverage   int
	MarginMode MarginMode
	PositionID string
}

// OrderResult is the outcome of exactly one submitted order.
type OrderResult struct {
	Accepted    bool            `json:"accepted"`
	OrderID     null.String     `json:"order_id"`
	Side        OrderSide       `json:"side"`
	Volume      decimal.Decimal `json:"volume"`
	RawResponse string          `json:"raw_response,omitempty"`
	Error       *ResultError    `json:"error,omitempty"`

	Err error `json:"-"`
}

func NewAcceptedOrderResult(sub OrderSubmission, orderID string, raw string) *OrderResult {
	return &OrderResult{
		Accepted:    true,
		OrderID:     null.NewString(orderID, orderID != ""),
		Side:        sub.Side,
		Volume:      sub.Volume,
		RawResponse: raw,
	}
}

func NewRejectedOrderResult(sub OrderSubmission, raw string, err error) *OrderResult {
	return &OrderResult{
		Accepted:    false,
		Side:        sub.Side,
		Volume:      sub.Volume,
		RawResponse: raw,
		Error:       NewResultError(err),
		Err:         err,
	}
}
