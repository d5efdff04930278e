package canonicalizer

import (
	"strings"

	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/shopspring/decimal"
)

const DefaultQuoteCurrency = "USDT"

const symbolSeparator = "_"

var maxLeverage = decimal.NewFromInt(1_000)

// Canonicalizer turns raw signals into trade intents. It never touches the network.
type Canonicalizer struct {
	quoteCurrency string
}

func NewCanonicalizer(quoteCurrency string) *Canonicalizer {
	quoteCurrency = strings.ToUpper(strings.TrimSpace(quoteCurrency))
	if quoteCurrency == "" {
		quoteCurrency = DefaultQuoteCurrency
	}

	return &Canonicalizer{quoteCurrency: quoteCurrency}
}

func (c *Canonicalizer) QuoteCurrency() string {
	return c.quoteCurrency
}

func (c *Canonicalizer) Normalize(raw entity.RawIntent) (entity.TradeIntent, error) {
	direction, err := normalizeAction(raw.Action)
	if err != nil {
		return entity.TradeIntent{}, err
	}

	symbol, err := c.NormalizeSymbol(raw.Symbol)
	if err != nil {
		return entity.TradeIntent{}, err
	}

	quantity, err := normalizeQuantity(raw.Quantity.String())
	if err != nil {
		return entity.TradeIntent{}, err
	}

	leverage, err := normalizeLeverage(raw.Leverage.String())
	if err != nil {
		return entity.TradeIntent{}, err
	}

	return entity.TradeIntent{
		Direction: direction,
		Symbol:    symbol,
		Quantity:  quantity,
		Leverage:  leverage,
	}, nil
}

// NormalizeSymbol maps every spelling of an instrument to BASE_QUOTE.
// eth-usdt, ETHUSDT and ETH_USDT all become ETH_USDT, and the result normalizes to itself.
func (c *Canonicalizer) NormalizeSymbol(rawSymbol string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(rawSymbol))
	if upper == "" {
		return "", entity.NewValidationError("symbol", "symbol is required")
	}

	segments := strings.FieldsFunc(upper, isSymbolSeparator)
	if len(segments) == 0 {
		return "", entity.NewValidationError("symbol", "symbol is required")
	}

	for _, segment := range segments {
		if !isAlphanumeric(segment) {
			return "", entity.NewValidationError("symbol", "symbol contains unsupported characters")
		}
	}

	if len(segments) == 1 {
		glued := segments[0]
		if strings.HasSuffix(glued, c.quoteCurrency) && len(glued) > len(c.quoteCurrency) {
			return strings.TrimSuffix(glued, c.quoteCurrency) + symbolSeparator + c.quoteCurrency, nil
		}

		return glued + symbolSeparator + c.quoteCurrency, nil
	}

	quote := segments[len(segments)-1]
	if quote != c.quoteCurrency {
		return "", entity.NewValidationError("symbol", "unsupported quote currency "+quote)
	}

	base := strings.Join(segments[:len(segments)-1], "")
	return base + symbolSeparator + c.quoteCurrency, nil
}

func normalizeAction(rawAction string) (entity.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(rawAction)) {
	case "buy":
		return entity.DirectionBuy, nil
	case "sell":
		return entity.DirectionSell, nil
	default:
		return "", entity.NewValidationError("action", "unknown action")
	}
}

func normalizeQuantity(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, entity.NewValidationError("quantity", "quantity is required")
	}

	quantity, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, entity.NewValidationError("quantity", "quantity is not a number")
	}

	if !quantity.IsPositive() {
		return decimal.Zero, entity.NewValidationError("quantity", "quantity must be greater than zero")
	}

	return quantity, nil
}

func normalizeLeverage(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, entity.NewValidationError("leverage", "leverage is required")
	}

	leverage, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, entity.NewValidationError("leverage", "leverage is not a number")
	}

	if !leverage.IsPositive() {
		return 0, entity.NewValidationError("leverage", "leverage must be greater than zero")
	}

	if !leverage.IsInteger() {
		return 0, entity.NewValidationError("leverage", "leverage must be a whole number")
	}

	if leverage.GreaterThan(maxLeverage) {
		return 0, entity.NewValidationError("leverage", "leverage is out of range")
	}

	return int(leverage.IntPart()), nil
}

func isSymbolSeparator(r rune) bool {
	switch r {
	case '_', '-', '/', ' ', ':':
		return true
	default:
		return false
	}
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
