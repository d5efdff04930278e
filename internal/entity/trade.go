package entity

import (
	"bytes"
	"errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// RawNumber keeps a numeric field exactly as the caller sent it. Signal senders are not
// consistent about quoting numbers, so both 1.5 and "1.5" are accepted.
type RawNumber string

func (n *RawNumber) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*n = ""
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*n = RawNumber(strings.TrimSpace(s))
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err != nil {
		return errors.New("value is not a number")
	}
	*n = RawNumber(num.String())
	return nil
}

func (n RawNumber) String() string {
	return string(n)
}

// RawIntent is a trade signal as received from the outside world, before validation.
type RawIntent struct {
	Action   string    `json:"action"`
	Symbol   string    `json:"symbol"`
	Quantity RawNumber `json:"quantity"`
	Leverage RawNumber `json:"leverage"`
}

// TradeIntent is a validated signal. It is only built by the canonicalizer.
type TradeIntent struct {
	Direction Direction       `json:"direction"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	Leverage  int             `json:"leverage"`
}
