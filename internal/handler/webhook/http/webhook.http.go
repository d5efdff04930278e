package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/futures-signal-executor/internal/config"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/krobus00/futures-signal-executor/internal/infrastructure"
	"github.com/krobus00/futures-signal-executor/internal/repository"
	"github.com/krobus00/futures-signal-executor/internal/service/signal"
	"github.com/sirupsen/logrus"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	maxWebhookBodyBytes = 1 << 20
)

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

type SignalExecutor interface {
	ExecuteRequest(ctx context.Context, requestID string, raw entity.RawIntent) *entity.ExecutionResult
}

type SignalQueue interface {
	ExecuteAsync(ctx context.Context, requestID string, raw entity.RawIntent) (string, error)
}

type ExecutionLister interface {
	List(ctx context.Context, filter repository.ExecutionHistoryFilter) ([]entity.ExecutionHistory, error)
	GetByRequestID(ctx context.Context, requestID string) (*entity.ExecutionHistory, error)
}

type WebhookRequest struct {
	APIKey    string           `json:"api_key"`
	RequestID string           `json:"request_id"`
	Action    string           `json:"action"`
	Symbol    string           `json:"symbol"`
	Quantity  entity.RawNumber `json:"quantity"`
	Leverage  entity.RawNumber `json:"leverage"`
}

func (r WebhookRequest) rawIntent() entity.RawIntent {
	return entity.RawIntent{
		Action:   r.Action,
		Symbol:   r.Symbol,
		Quantity: r.Quantity,
		Leverage: r.Leverage,
	}
}

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type QueuedResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type Handler struct {
	executor   SignalExecutor
	queue      SignalQueue
	executions ExecutionLister
}

// NewWebhookHTTPHandler builds the handler. queue and executions are optional, their routes are
// only registered when set.
func NewWebhookHTTPHandler(executor SignalExecutor, queue SignalQueue, executions ExecutionLister) *Handler {
	return &Handler{
		executor:   executor,
		queue:      queue,
		executions: executions,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", h.Webhook)
	if h.queue != nil {
		mux.HandleFunc("/webhook/async", h.WebhookAsync)
	}
	if h.executions != nil {
		mux.HandleFunc("/executions", h.ListExecutions)
		mux.HandleFunc("GET /executions/{request_id}", h.GetExecution)
	}
}

// Webhook executes the signal synchronously. Trade outcomes are always answered with 200, the
// envelope status tells success from failure.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSignal(w, r)
	if !ok {
		return
	}

	requestID := resolveRequestID(r, req)
	result := h.executor.ExecuteRequest(r.Context(), requestID, req.rawIntent())

	if result.Status == entity.ExecutionStatusSuccess {
		writeJSON(w, http.StatusOK, Response{Status: statusSuccess, Data: result})
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Status:  statusError,
		Message: failureMessage(result),
		Data:    result,
	})
}

func (h *Handler) WebhookAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSignal(w, r)
	if !ok {
		return
	}

	requestID, err := h.queue.ExecuteAsync(r.Context(), resolveRequestID(r, req), req.rawIntent())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, signal.ErrPublishSignalFailed) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, Response{Status: statusError, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, Response{
		Status: statusSuccess,
		Data:   QueuedResponse{RequestID: requestID, Status: "queued"},
	})
}

func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Status: statusError, Message: "method not allowed"})
		return
	}

	if err := authorize(r, ""); err != nil {
		writeJSON(w, http.StatusUnauthorized, Response{Status: statusError, Message: err.Error()})
		return
	}

	query := r.URL.Query()
	filter := repository.ExecutionHistoryFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(query.Get("symbol"))),
		Status: query.Get("status"),
	}

	if rawLimit := strings.TrimSpace(query.Get("limit")); rawLimit != "" {
		limit, err := strconv.ParseUint(rawLimit, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Status: statusError, Message: "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	histories, err := h.executions.List(r.Context(), filter)
	if err != nil {
		logrus.Error(err)
		writeJSON(w, http.StatusInternalServerError, Response{Status: statusError, Message: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Status: statusSuccess, Data: histories})
}

// GetExecution returns the latest recorded attempt for a request id.
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if err := authorize(r, ""); err != nil {
		writeJSON(w, http.StatusUnauthorized, Response{Status: statusError, Message: err.Error()})
		return
	}

	requestID := strings.TrimSpace(r.PathValue("request_id"))
	history, err := h.executions.GetByRequestID(r.Context(), requestID)
	switch {
	case errors.Is(err, repository.ErrExecutionNotFound):
		writeJSON(w, http.StatusNotFound, Response{Status: statusError, Message: err.Error()})
		return
	case err != nil:
		logrus.WithField("request_id", requestID).Error(err)
		writeJSON(w, http.StatusInternalServerError, Response{Status: statusError, Message: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Status: statusSuccess, Data: history})
}

func (h *Handler) decodeSignal(w http.ResponseWriter, r *http.Request) (WebhookRequest, bool) {
	var req WebhookRequest

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Status: statusError, Message: "method not allowed"})
		return req, false
	}

	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&req); err != nil {
		logrus.WithField("request_id", infrastructure.RequestIDFromContext(r.Context())).Warnf("invalid webhook body: %v", err)
		writeJSON(w, http.StatusOK, Response{Status: statusError, Message: "invalid json body"})
		return req, false
	}

	if err := authorize(r, req.APIKey); err != nil {
		writeJSON(w, http.StatusUnauthorized, Response{Status: statusError, Message: err.Error()})
		return req, false
	}

	return req, true
}

func failureMessage(result *entity.ExecutionResult) string {
	if resultErr := result.FirstError(); resultErr != nil {
		return resultErr.Message
	}
	return "execution finished with status " + string(result.Status)
}

func resolveRequestID(r *http.Request, req WebhookRequest) string {
	requestID := strings.TrimSpace(req.RequestID)
	if requestID != "" && len(requestID) <= infrastructure.MaxRequestIDLength {
		return requestID
	}

	return infrastructure.RequestIDFromContext(r.Context())
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func authorize(r *http.Request, bodyKey string) error {
	if config.Env == nil || !config.Env.Executor.RequireAPIKey {
		return nil
	}

	return validateAPIKey(resolveAPIKey(r, bodyKey), config.Env.APIKeys)
}

func resolveAPIKey(r *http.Request, bodyKey string) string {
	if headerKey := strings.TrimSpace(r.Header.Get("X-API-Key")); headerKey != "" {
		return headerKey
	}

	return strings.TrimSpace(bodyKey)
}

func validateAPIKey(rawAPIKey string, keys []config.APIKeyConfig) error {
	apiKey := strings.TrimSpace(rawAPIKey)
	if apiKey == "" {
		return errAPIKeyMissing
	}

	now := time.Now().UTC()
	for _, candidate := range keys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		if err != nil {
			return errAPIKeyInvalid
		}
		if hasExpiry && !now.Before(expiredAt) {
			return errAPIKeyExpired
		}

		return nil
	}

	return errAPIKeyInvalid
}

func parseExpiry(value any) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, nil
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, false, err
		}

		// a bare date is valid for the whole day
		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
