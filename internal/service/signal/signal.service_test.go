package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/futures-signal-executor/internal/config"
	"github.com/krobus00/futures-signal-executor/internal/constant"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/krobus00/futures-signal-executor/internal/service/executor"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	msgID   string
	event   entity.SignalEvent
}

type fakeExecutor struct {
	result func(requestID string) *entity.ExecutionResult
	calls  []string
}

func (f *fakeExecutor) ExecuteRequest(ctx context.Context, requestID string, raw entity.RawIntent) *entity.ExecutionResult {
	f.calls = append(f.calls, requestID)
	return f.result(requestID)
}

func newTestService(exec Executor, maxRetries int, publishErr error) (*SignalService, *[]published) {
	var (
		mu   sync.Mutex
		sent []published
	)

	s := NewSignalService(exec, nil, config.NatsJetstreamConfig{MaxRetries: maxRetries})
	s.publish = func(ctx context.Context, subject string, msgID string, data any) error {
		if publishErr != nil {
			return publishErr
		}
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, published{subject: subject, msgID: msgID, event: data.(entity.SignalEvent)})
		return nil
	}

	return s, &sent
}

func eventMsg(t *testing.T, event entity.SignalEvent) *nats.Msg {
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return &nats.Msg{Subject: constant.SignalStreamSubjectExecute, Data: payload}
}

func intent() *entity.TradeIntent {
	return &entity.TradeIntent{Direction: entity.DirectionBuy, Symbol: "BTC_USDT", Quantity: decimal.NewFromInt(1), Leverage: 5}
}

func networkFailure(requestID string) *entity.ExecutionResult {
	err := &entity.NetworkError{Op: "position query", Err: errors.New("timeout")}
	return &entity.ExecutionResult{
		RequestID: requestID,
		Intent:    intent(),
		Status:    entity.ExecutionStatusFailed,
		Error:     entity.NewResultError(err),
		Err:       err,
	}
}

func TestExecuteAsync_PublishesEvent(t *testing.T) {
	s, sent := newTestService(&fakeExecutor{}, 3, nil)

	requestID, err := s.ExecuteAsync(context.Background(), "req-1", entity.RawIntent{Action: "buy", Symbol: "BTC_USDT", Quantity: "1", Leverage: "5"})
	require.NoError(t, err)
	assert.Equal(t, "req-1", requestID)

	require.Len(t, *sent, 1)
	assert.Equal(t, constant.SignalStreamSubjectExecute, (*sent)[0].subject)
	assert.Equal(t, "req-1-0", (*sent)[0].msgID)
	assert.Equal(t, "BTC_USDT", (*sent)[0].event.Data.Symbol)
}

func TestExecuteAsync_GeneratesRequestID(t *testing.T) {
	s, _ := newTestService(&fakeExecutor{}, 3, nil)

	requestID, err := s.ExecuteAsync(context.Background(), "", entity.RawIntent{})
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)
}

func TestExecuteAsync_PublishFailure(t *testing.T) {
	s, _ := newTestService(&fakeExecutor{}, 3, errors.New("nats down"))

	_, err := s.ExecuteAsync(context.Background(), "req-1", entity.RawIntent{})
	require.ErrorIs(t, err, ErrPublishSignalFailed)
}

func TestHandleExecuteEvent_Success(t *testing.T) {
	exec := &fakeExecutor{result: func(requestID string) *entity.ExecutionResult {
		return &entity.ExecutionResult{RequestID: requestID, Status: entity.ExecutionStatusSuccess}
	}}
	s, sent := newTestService(exec, 3, nil)

	err := s.handleExecuteEvent(context.Background(), eventMsg(t, entity.SignalEvent{RequestID: "req-1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, exec.calls)
	assert.Empty(t, *sent)
}

func TestHandleExecuteEvent_RequeuesQueryFailure(t *testing.T) {
	exec := &fakeExecutor{result: networkFailure}
	s, sent := newTestService(exec, 3, nil)

	err := s.handleExecuteEvent(context.Background(), eventMsg(t, entity.SignalEvent{RequestID: "req-1", RetryCount: 1}))
	require.NoError(t, err)

	require.Len(t, *sent, 1)
	assert.Equal(t, 2, (*sent)[0].event.RetryCount)
	assert.Equal(t, "req-1-2", (*sent)[0].msgID)
}

func TestHandleExecuteEvent_StopsAfterMaxRetries(t *testing.T) {
	exec := &fakeExecutor{result: networkFailure}
	s, sent := newTestService(exec, 2, nil)

	err := s.handleExecuteEvent(context.Background(), eventMsg(t, entity.SignalEvent{RequestID: "req-1", RetryCount: 2}))
	require.Error(t, err)
	assert.Empty(t, *sent)
}

func TestHandleExecuteEvent_NeverRequeuesAfterSubmission(t *testing.T) {
	exec := &fakeExecutor{result: func(requestID string) *entity.ExecutionResult {
		sub := entity.OrderSubmission{Side: entity.OrderSideOpenLong, Volume: decimal.NewFromInt(1)}
		return &entity.ExecutionResult{
			RequestID:  requestID,
			Intent:     intent(),
			OpenResult: entity.NewRejectedOrderResult(sub, "", &entity.NetworkError{Op: "submit", Err: errors.New("timeout")}),
			Status:     entity.ExecutionStatusFailed,
		}
	}}
	s, sent := newTestService(exec, 3, nil)

	err := s.handleExecuteEvent(context.Background(), eventMsg(t, entity.SignalEvent{RequestID: "req-1"}))
	require.Error(t, err)
	assert.Empty(t, *sent)
}

func TestHandleExecuteEvent_InvalidPayload(t *testing.T) {
	s, _ := newTestService(&fakeExecutor{}, 3, nil)

	err := s.handleExecuteEvent(context.Background(), &nats.Msg{Data: []byte("{")})
	require.ErrorIs(t, err, ErrInvalidSignalEvent)
}

func TestShouldRedeliver(t *testing.T) {
	lockErr := fmt.Errorf("%w: %v", executor.ErrSymbolLockUnavailable, context.DeadlineExceeded)

	cases := []struct {
		name   string
		result *entity.ExecutionResult
		want   bool
	}{
		{name: "nil", result: nil, want: false},
		{name: "success", result: &entity.ExecutionResult{Status: entity.ExecutionStatusSuccess}, want: false},
		{name: "position query network error", result: networkFailure("r"), want: true},
		{
			name:   "lock unavailable",
			result: &entity.ExecutionResult{Intent: intent(), Status: entity.ExecutionStatusFailed, Err: lockErr, Error: entity.NewResultError(lockErr)},
			want:   true,
		},
		{
			name: "validation error",
			result: &entity.ExecutionResult{
				Status: entity.ExecutionStatusFailed,
				Error:  entity.NewResultError(entity.NewValidationError("action", "unknown action")),
			},
			want: false,
		},
		{
			name: "exchange error on query",
			result: &entity.ExecutionResult{
				Intent: intent(),
				Status: entity.ExecutionStatusFailed,
				Error:  entity.NewResultError(&entity.ExchangeError{Code: 1001}),
			},
			want: false,
		},
		{
			name:   "partial failure",
			result: &entity.ExecutionResult{Intent: intent(), Status: entity.ExecutionStatusPartialFailure},
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldRedeliver(tc.result))
		})
	}
}

func TestAckWaitOutlivesHandler(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.NatsJetstreamConfig
		handler time.Duration
	}{
		{name: "configured", cfg: config.NatsJetstreamConfig{TimeoutHandler: map[string]time.Duration{"execute": 60 * time.Second}}, handler: 60 * time.Second},
		{name: "default", cfg: config.NatsJetstreamConfig{}, handler: defaultHandlerTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSignalService(&fakeExecutor{}, nil, tc.cfg)
			assert.Equal(t, tc.handler, s.handlerTimeout)
			assert.Greater(t, s.ackWait(), s.handlerTimeout)
			assert.Equal(t, tc.handler+ackWaitMargin, s.ackWait())
			assert.Len(t, s.subscribeOptions(), 3)
		})
	}
}

func TestKeepInProgress(t *testing.T) {
	var touches int32
	stop := keepInProgress(5*time.Millisecond, func() error {
		atomic.AddInt32(&touches, 1)
		return errors.New("not bound")
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&touches) >= 2 }, time.Second, time.Millisecond)
	stop()
	stop()

	time.Sleep(10 * time.Millisecond)
	seen := atomic.LoadInt32(&touches)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, seen, atomic.LoadInt32(&touches))
}
