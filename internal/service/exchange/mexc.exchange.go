package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/krobus00/futures-signal-executor/internal/config"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMEXCBaseURL     = "https://contract.mexc.com"
	defaultMEXCRecvWindow  = 10 * time.Second
	defaultMEXCHTTPTimeout = 10 * time.Second
	maxMEXCRecvWindow      = 60 * time.Second

	mexcPositionPath    = "/api/v1/private/position/open_positions"
	mexcOrderSubmitPath = "/api/v1/private/order/submit"

	// price is ignored by the exchange for market orders
	mexcMarketPrice     = "0"
	mexcOrderTypeMarket = "5"

	mexcPositionTypeLong  = 1
	mexcPositionTypeShort = 2
	mexcPositionStateDone = 3
)

type MEXCExchange struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow time.Duration
	marginMode entity.MarginMode
	httpClient *http.Client

	now        func() time.Time
	newOrderID func() string
}

type MEXCOption func(*MEXCExchange)

func WithHTTPClient(client *http.Client) MEXCOption {
	return func(e *MEXCExchange) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithClock replaces the source of req_time. The clock is read on every call.
func WithClock(now func() time.Time) MEXCOption {
	return func(e *MEXCExchange) {
		if now != nil {
			e.now = now
		}
	}
}

func WithOrderIDGenerator(fn func() string) MEXCOption {
	return func(e *MEXCExchange) {
		if fn != nil {
			e.newOrderID = fn
		}
	}
}

func NewMEXCExchange(exchangeConfig config.ExchangeConfig, opts ...MEXCOption) *MEXCExchange {
	baseURL := strings.TrimSpace(exchangeConfig.BaseURL)
	if baseURL == "" {
		baseURL = DefaultMEXCBaseURL
	}

	recvWindow := exchangeConfig.RecvWindow
	if recvWindow <= 0 || recvWindow > maxMEXCRecvWindow {
		recvWindow = defaultMEXCRecvWindow
	}

	httpTimeout := exchangeConfig.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = defaultMEXCHTTPTimeout
	}

	newExchange := &MEXCExchange{
		apiKey:     strings.TrimSpace(exchangeConfig.APIKey),
		apiSecret:  strings.TrimSpace(exchangeConfig.APISecret),
		baseURL:    strings.TrimRight(baseURL, "/"),
		recvWindow: recvWindow,
		marginMode: ParseMarginMode(exchangeConfig.MarginMode),
		httpClient: &http.Client{Timeout: httpTimeout},
		now:        time.Now,
		newOrderID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}

	for _, opt := range opts {
		opt(newExchange)
	}

	logrus.WithFields(logrus.Fields{
		"base_url":    newExchange.baseURL,
		"api_key":     maskSecret(newExchange.apiKey),
		"recv_window": newExchange.recvWindow.String(),
		"margin_mode": newExchange.marginMode,
		"timeout":     newExchange.httpClient.Timeout.String(),
	}).Info("mexc exchange client initialized")

	return newExchange
}

func (e *MEXCExchange) MarginMode() entity.MarginMode {
	return e.marginMode
}

func (e *MEXCExchange) GetPosition(ctx context.Context, symbol string) (entity.PositionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return entity.PositionSnapshot{}, &entity.NetworkError{Op: "mexc position query", Err: err}
	}

	req, err := e.sign(Params{"symbol": symbol})
	if err != nil {
		return entity.PositionSnapshot{}, err
	}

	endpoint := e.baseURL + mexcPositionPath + "?" + req.Values().Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return entity.PositionSnapshot{}, &entity.NetworkError{Op: "mexc position query", Err: err}
	}
	e.setHeaders(httpReq, req)

	envelope, _, err := e.do(httpReq, "mexc position query")
	if err != nil {
		return entity.PositionSnapshot{}, err
	}

	positions, err := parseMEXCPositions(envelope.Data)
	if err != nil {
		return entity.PositionSnapshot{}, &entity.NetworkError{Op: "mexc position query", Err: err}
	}

	return selectPosition(symbol, positions), nil
}

func (e *MEXCExchange) SubmitOrder(ctx context.Context, order entity.OrderSubmission) *entity.OrderResult {
	logger := logrus.WithFields(logrus.Fields{
		"symbol":      order.Symbol,
		"side":        order.Side,
		"volume":      order.Volume.String(),
		"leverage":    order.Leverage,
		"position_id": order.PositionID,
	})

	if err := ctx.Err(); err != nil {
		return entity.NewRejectedOrderResult(order, "", &entity.NetworkError{Op: "mexc order submit", Err: err})
	}

	sideCode, err := mexcOrderSideCode(order.Side)
	if err != nil {
		return entity.NewRejectedOrderResult(order, "", entity.NewValidationError("side", err.Error()))
	}

	if !order.Volume.IsPositive() {
		return entity.NewRejectedOrderResult(order, "", entity.NewValidationError("volume", "volume must be greater than zero"))
	}

	marginMode := order.MarginMode
	if marginMode == "" {
		marginMode = e.marginMode
	}

	params := Params{
		"symbol":       order.Symbol,
		"price":        mexcMarketPrice,
		"vol":          order.Volume.String(),
		"leverage":     strconv.Itoa(order.Leverage),
		"side":         strconv.Itoa(sideCode),
		"type":         mexcOrderTypeMarket,
		"open_type":    strconv.Itoa(mexcOpenTypeCode(marginMode)),
		"external_oid": e.newOrderID(),
	}
	if positionID := strings.TrimSpace(order.PositionID); positionID != "" {
		params["position_id"] = positionID
	}

	req, err := e.sign(params)
	if err != nil {
		return entity.NewRejectedOrderResult(order, "", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+mexcOrderSubmitPath, strings.NewReader(req.Values().Encode()))
	if err != nil {
		return entity.NewRejectedOrderResult(order, "", &entity.NetworkError{Op: "mexc order submit", Err: err})
	}
	e.setHeaders(httpReq, req)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	envelope, body, err := e.do(httpReq, "mexc order submit")
	if err != nil {
		logger.WithError(err).Warn("mexc order rejected")
		return entity.NewRejectedOrderResult(order, body, err)
	}

	orderID, err := parseMEXCOrderID(envelope.Data)
	if err != nil {
		// the exchange said yes, keep the acceptance even if the id is in an unexpected shape
		logger.WithError(err).Warn("mexc order accepted without readable order id")
	}

	logger.WithFields(logrus.Fields{
		"order_id":     orderID,
		"external_oid": params["external_oid"],
	}).Info("order placed")

	return entity.NewAcceptedOrderResult(order, orderID, body)
}

// sign builds a fresh signed request. req_time comes from the clock at call time.
func (e *MEXCExchange) sign(params Params) (SignedRequest, error) {
	if e.apiKey == "" || e.apiSecret == "" {
		return SignedRequest{}, &entity.SignatureError{Reason: "mexc credentials are missing in config"}
	}

	params["api_key"] = e.apiKey
	params["req_time"] = strconv.FormatInt(e.now().UnixMilli(), 10)
	params["recv_window"] = strconv.FormatInt(e.recvWindow.Milliseconds(), 10)

	return NewSignedRequest(e.apiSecret, params), nil
}

func (e *MEXCExchange) setHeaders(httpReq *http.Request, req SignedRequest) {
	httpReq.Header.Set("ApiKey", e.apiKey)
	httpReq.Header.Set("Request-Time", req.Params["req_time"])
	httpReq.Header.Set("Recv-Window", req.Params["recv_window"])
	httpReq.Header.Set("Signature", req.Signature)
}

type mexcEnvelope struct {
	Success *bool           `json:"success"`
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// do executes the call and classifies the outcome: transport and parse failures are network
// errors, a readable envelope that says no is an exchange error.
func (e *MEXCExchange) do(httpReq *http.Request, op string) (*mexcEnvelope, string, error) {
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", &entity.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &entity.NetworkError{Op: op, Err: err}
	}
	body := string(rawBody)

	var envelope mexcEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, body, &entity.NetworkError{Op: op, Err: fmt.Errorf("malformed response body: status=%d body=%s", resp.StatusCode, truncate(body, 256))}
	}

	message := envelope.Message
	if message == "" {
		message = envelope.Msg
	}
	code := 0
	if envelope.Code != nil {
		code = *envelope.Code
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if code == 0 {
			code = resp.StatusCode
		}
		return &envelope, body, newMEXCExchangeError(resp.StatusCode, code, message)
	}

	// an acceptance has to be stated by the envelope, silence is not a yes
	if envelope.Success == nil && envelope.Code == nil {
		return nil, body, &entity.NetworkError{Op: op, Err: fmt.Errorf("unrecognized response envelope: status=%d body=%s", resp.StatusCode, truncate(body, 256))}
	}

	if code != 0 || (envelope.Success != nil && !*envelope.Success) {
		return &envelope, body, newMEXCExchangeError(resp.StatusCode, code, message)
	}

	return &envelope, body, nil
}

type mexcPosition struct {
	PositionID   entity.RawNumber `json:"positionId"`
	Symbol       string           `json:"symbol"`
	PositionType int              `json:"positionType"`
	HoldVol      decimal.Decimal  `json:"holdVol"`
	State        int              `json:"state"`
}

func parseMEXCPositions(data json.RawMessage) ([]mexcPosition, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var positions []mexcPosition
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("mexc position data parse failed: %w", err)
	}

	return positions, nil
}

// selectPosition picks the open position for symbol. With one position per symbol the first open
// entry is the position; anything else is reported and ignored.
func selectPosition(symbol string, positions []mexcPosition) entity.PositionSnapshot {
	snapshot := entity.EmptyPosition(symbol)
	found := false

	for _, p := range positions {
		if p.Symbol != "" && !strings.EqualFold(p.Symbol, symbol) {
			continue
		}
		if p.State == mexcPositionStateDone || !p.HoldVol.IsPositive() {
			continue
		}

		var side entity.PositionSide
		switch p.PositionType {
		case mexcPositionTypeLong:
			side = entity.PositionSideLong
		case mexcPositionTypeShort:
			side = entity.PositionSideShort
		default:
			logrus.WithField("position_type", p.PositionType).Warn("mexc position with unknown type ignored")
			continue
		}

		if found {
			logrus.WithFields(logrus.Fields{
				"symbol":      symbol,
				"kept_side":   snapshot.Side,
				"other_side":  side,
				"position_id": p.PositionID.String(),
			}).Warn("more than one open position for symbol, only the first is reconciled")
			continue
		}

		snapshot.Side = side
		snapshot.Volume = p.HoldVol
		snapshot.PositionID = p.PositionID.String()
		found = true
	}

	return snapshot
}

func parseMEXCOrderID(data json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return "", errors.New("empty order data")
	}

	var scalar entity.RawNumber
	if err := json.Unmarshal(data, &scalar); err == nil && scalar != "" {
		return scalar.String(), nil
	}

	var asObject struct {
		OrderID entity.RawNumber `json:"orderId"`
	}
	if err := json.Unmarshal(data, &asObject); err == nil && asObject.OrderID != "" {
		return asObject.OrderID.String(), nil
	}

	return "", fmt.Errorf("unsupported order data: %s", truncate(trimmed, 64))
}

func mexcOrderSideCode(side entity.OrderSide) (int, error) {
	switch side {
	case entity.OrderSideOpenLong:
		return 1, nil
	case entity.OrderSideCloseShort:
		return 2, nil
	case entity.OrderSideOpenShort:
		return 3, nil
	case entity.OrderSideCloseLong:
		return 4, nil
	default:
		return 0, fmt.Errorf("unsupported order side for mexc: %s", side)
	}
}

func mexcOpenTypeCode(mode entity.MarginMode) int {
	if mode == entity.MarginModeCross {
		return 2
	}
	return 1
}

func ParseMarginMode(raw string) entity.MarginMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(entity.MarginModeCross):
		return entity.MarginModeCross
	default:
		return entity.MarginModeIsolated
	}
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
