package entity

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type ExecutionHistory struct {
	ID            string          `db:"id" json:"id"`
	RequestID     string          `db:"request_id" json:"request_id"`
	Symbol        string          `db:"symbol" json:"symbol"`
	Direction     string          `db:"direction" json:"direction"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	Leverage      int             `db:"leverage" json:"leverage"`
	Status        string          `db:"status" json:"status"`
	CloseSide     null.String     `db:"close_side" json:"close_side"`
	CloseVolume   null.String     `db:"close_volume" json:"close_volume"`
	CloseOrderID  null.String     `db:"close_order_id" json:"close_order_id"`
	CloseAccepted null.Bool       `db:"close_accepted" json:"close_accepted"`
	OpenSide      null.String     `db:"open_side" json:"open_side"`
	OpenOrderID   null.String     `db:"open_order_id" json:"open_order_id"`
	OpenAccepted  null.Bool       `db:"open_accepted" json:"open_accepted"`
	ErrorClass    null.String     `db:"error_class" json:"error_class"`
	ErrorMessage  null.String     `db:"error_message" json:"error_message"`
	StartedAt     time.Time       `db:"started_at" json:"started_at"`
	FinishedAt    time.Time       `db:"finished_at" json:"finished_at"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

func (e ExecutionHistory) TableName() string {
	return "executions"
}

// NewExecutionHistory flattens a result into a history row. Rejected validations have no intent
// and are not recorded by the caller.
func NewExecutionHistory(result *ExecutionResult) *ExecutionHistory {
	history := &ExecutionHistory{
		RequestID:  result.RequestID,
		Status:     string(result.Status),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		CreatedAt:  time.Now().UTC(),
	}

	if result.Intent != nil {
		history.Symbol = result.Intent.Symbol
		history.Direction = string(result.Intent.Direction)
		history.Quantity = result.Intent.Quantity
		history.Leverage = result.Intent.Leverage
	}

	if c := result.CloseResult; c != nil {
		history.CloseSide = null.StringFrom(string(c.Side))
		history.CloseVolume = null.StringFrom(c.Volume.String())
		history.CloseOrderID = c.OrderID
		history.CloseAccepted = null.BoolFrom(c.Accepted)
	}

	if o := result.OpenResult; o != nil {
		history.OpenSide = null.StringFrom(string(o.Side))
		history.OpenOrderID = o.OrderID
		history.OpenAccepted = null.BoolFrom(o.Accepted)
	}

	if resultErr := result.FirstError(); resultErr != nil {
		history.ErrorClass = null.StringFrom(string(resultErr.Class))
		history.ErrorMessage = null.StringFrom(resultErr.Message)
	}

	return history
}
