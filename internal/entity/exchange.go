package entity

import (
	"context"
)

type ExchangeName string

const (
	ExchangeMEXC ExchangeName = "mexc"
)

// Exchange is the futures account the executor trades against.
type Exchange interface {
	GetPosition(ctx context.Context, symbol string) (PositionSnapshot, error)
	SubmitOrder(ctx context.Context, order OrderSubmission) *OrderResult
}
