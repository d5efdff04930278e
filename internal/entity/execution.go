package entity

import "time"

type ExecutionStatus string

const (
	ExecutionStatusSuccess        ExecutionStatus = "SUCCESS"
	ExecutionStatusPartialFailure ExecutionStatus = "PARTIAL_FAILURE"
	ExecutionStatusFailed         ExecutionStatus = "FAILED"
)

// ExecutionResult aggregates everything one signal caused on the exchange.
// CloseResult is only set when an opposing position had to be flattened first.
type ExecutionResult struct {
	RequestID   string          `json:"request_id"`
	Intent      *TradeIntent    `json:"intent,omitempty"`
	CloseResult *OrderResult    `json:"close_result"`
	OpenResult  *OrderResult    `json:"open_result"`
	Status      ExecutionStatus `json:"status"`
	Error       *ResultError    `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`

	Err error `json:"-"`
}

// DeriveStatus is SUCCESS only when every attempted order was accepted.
func DeriveStatus(closeResult, openResult *OrderResult) ExecutionStatus {
	if closeResult != nil && !closeResult.Accepted {
		return ExecutionStatusFailed
	}

	if openResult == nil || !openResult.Accepted {
		if closeResult != nil && closeResult.Accepted {
			return ExecutionStatusPartialFailure
		}
		return ExecutionStatusFailed
	}

	return ExecutionStatusSuccess
}

// FirstError returns the error that decided the outcome, if any.
func (r *ExecutionResult) FirstError() *ResultError {
	if r.Error != nil {
		return r.Error
	}
	if r.CloseResult != nil && r.CloseResult.Error != nil {
		return r.CloseResult.Error
	}
	if r.OpenResult != nil && r.OpenResult.Error != nil {
		return r.OpenResult.Error
	}
	return nil
}

type SignalEvent struct {
	RetryCount int       `json:"retry"`
	RequestID  string    `json:"request_id"`
	Data       RawIntent `json:"data"`
}
