package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/krobus00/futures-signal-executor/internal/service/canonicalizer"
	"github.com/krobus00/futures-signal-executor/internal/service/reconciler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op    string
	order entity.OrderSubmission
}

type scriptedExchange struct {
	mu       sync.Mutex
	calls    []call
	position entity.PositionSnapshot
	queryErr error
	reject   map[entity.OrderSide]error
	panicOn  entity.OrderSide
}

func (s *scriptedExchange) GetPosition(ctx context.Context, symbol string) (entity.PositionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, call{op: "query"})
	if s.queryErr != nil {
		return entity.PositionSnapshot{}, s.queryErr
	}
	if s.position.Side == "" || s.position.Side == entity.PositionSideNone {
		return entity.EmptyPosition(symbol), nil
	}
	return s.position, nil
}

func (s *scriptedExchange) SubmitOrder(ctx context.Context, order entity.OrderSubmission) *entity.OrderResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, call{op: "submit", order: order})
	if s.panicOn != "" && s.panicOn == order.Side {
		panic("exchange client bug")
	}
	if err, ok := s.reject[order.Side]; ok {
		return entity.NewRejectedOrderResult(order, "", err)
	}
	return entity.NewAcceptedOrderResult(order, "order-"+string(order.Side), `{"success":true}`)
}

func (s *scriptedExchange) submissions() []entity.OrderSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []entity.OrderSubmission
	for _, c := range s.calls {
		if c.op == "submit" {
			subs = append(subs, c.order)
		}
	}
	return subs
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []*entity.ExecutionHistory
	err     error
}

func (r *fakeRecorder) Create(ctx context.Context, history *entity.ExecutionHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, history)
	return r.err
}

type recordingLocker struct {
	inner    SymbolLocker
	mu       sync.Mutex
	locked   int
	unlocked int
}

func (l *recordingLocker) Lock(ctx context.Context, symbol string) (func(), error) {
	unlock, err := l.inner.Lock(ctx, symbol)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.locked++
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		l.unlocked++
		l.mu.Unlock()
		unlock()
	}, nil
}

func newTestExecutor(exchange entity.Exchange, locker SymbolLocker, recorder ExecutionRecorder) *OrderExecutor {
	r := reconciler.NewPositionReconciler(exchange, reconciler.Config{
		MarginMode:           entity.MarginModeIsolated,
		PositionQueryRetries: 1,
		PositionQueryBackoff: time.Millisecond,
	})
	return NewOrderExecutor(canonicalizer.NewCanonicalizer("USDT"), exchange, r, locker, recorder, Config{
		MarginMode:  entity.MarginModeIsolated,
		LockTimeout: time.Second,
	})
}

func TestExecute_OpensLongWithoutPosition(t *testing.T) {
	exchange := &scriptedExchange{}
	recorder := &fakeRecorder{}
	executor := newTestExecutor(exchange, nil, recorder)

	result := executor.Execute(context.Background(), entity.RawIntent{
		Action: "Buy", Symbol: "eth-usdt", Quantity: "1.5", Leverage: "10",
	})

	require.Equal(t, entity.ExecutionStatusSuccess, result.Status)
	assert.NotEmpty(t, result.RequestID)
	assert.Nil(t, result.CloseResult)
	require.NotNil(t, result.OpenResult)
	assert.True(t, result.OpenResult.Accepted)
	assert.Equal(t, "order-OPEN_LONG", result.OpenResult.OrderID.String)

	require.Len(t, exchange.calls, 2)
	assert.Equal(t, "query", exchange.calls[0].op)

	subs := exchange.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "ETH_USDT", subs[0].Symbol)
	assert.Equal(t, entity.OrderSideOpenLong, subs[0].Side)
	assert.Equal(t, "1.5", subs[0].Volume.String())
	assert.Equal(t, 10, subs[0].Leverage)
	assert.Equal(t, entity.MarginModeIsolated, subs[0].MarginMode)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "ETH_USDT", recorder.records[0].Symbol)
	assert.Equal(t, "SUCCESS", recorder.records[0].Status)
}

func TestExecute_ClosesLongThenOpensShort(t *testing.T) {
	exchange := &scriptedExchange{
		position: entity.PositionSnapshot{Symbol: "BTC_USDT", Side: entity.PositionSideLong, Volume: decimal.RequireFromString("0.8"), PositionID: "9"},
	}
	executor := newTestExecutor(exchange, nil, nil)

	result := executor.Execute(context.Background(), entity.RawIntent{
		Action: "Sell", Symbol: "BTC_USDT", Quantity: "0.2", Leverage: "5",
	})

	require.Equal(t, entity.ExecutionStatusSuccess, result.Status)
	subs := exchange.submissions()
	require.Len(t, subs, 2)

	assert.Equal(t, entity.OrderSideCloseLong, subs[0].Side)
	assert.Equal(t, "0.8", subs[0].Volume.String())
	assert.Equal(t, "9", subs[0].PositionID)

	assert.Equal(t, entity.OrderSideOpenShort, subs[1].Side)
	assert.Equal(t, "0.2", subs[1].Volume.String())
	assert.Equal(t, 5, subs[1].Leverage)
	assert.Empty(t, subs[1].PositionID)

	assert.True(t, result.CloseResult.Accepted)
	assert.True(t, result.OpenResult.Accepted)
}

func TestExecute_SameDirectionAddsToPosition(t *testing.T) {
	exchange := &scriptedExchange{
		position: entity.PositionSnapshot{Symbol: "BTC_USDT", Side: entity.PositionSideShort, Volume: decimal.NewFromInt(1)},
	}
	executor := newTestExecutor(exchange, nil, nil)

	result := executor.Execute(context.Background(), entity.RawIntent{
		Action: "sell", Symbol: "BTCUSDT", Quantity: "1", Leverage: "3",
	})

	require.Equal(t, entity.ExecutionStatusSuccess, result.Status)
	subs := exchange.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, entity.OrderSideOpenShort, subs[0].Side)
}

func TestExecute_RejectedCloseNeverOpens(t *testing.T) {
	exchange := &scriptedExchange{
		position: entity.PositionSnapshot{Symbol: "BTC_USDT", Side: entity.PositionSideShort, Volume: decimal.NewFromInt(5)},
		reject: map[entity.OrderSide]error{
			entity.OrderSideCloseShort: &entity.ExchangeError{Code: 2009, Meaning: "POSITION_NOT_FOUND"},
		},
	}
	locker := &recordingLocker{inner: NewKeyedMutex()}
	executor := newTestExecutor(exchange, locker, nil)

	result := executor.Execute(context.Background(), entity.RawIntent{
		Action: "BUY", Symbol: "BTC_USDT", Quantity: "1", Leverage: "5",
	})

	assert.Equal(t, entity.ExecutionStatusFailed, result.Status)
	require.NotNil(t, result.CloseResult)
	assert.False(t, result.CloseResult.Accepted)
	assert.Nil(t, result.OpenResult)

	subs := exchange.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, entity.OrderSideCloseShort, subs[0].Side)
	assert.Equal(t, 1, locker.unlocked)

	resultErr := result.FirstError()
	require.NotNil(t, resultErr)
	assert.Equal(t, entity.ErrorClassExchange, resultErr.Class)
	assert.Equal(t, 2009, resultErr.Code)
}

func TestExecute_PartialFailure(t *testing.T) {
	exchange := &scriptedExchange{
		position: entity.PositionSnapshot{Symbol: "BTC_USDT", Side: entity.PositionSideLong, Volume: decimal.NewFromInt(2)},
		reject: map[entity.OrderSide]error{
			entity.OrderSideOpenShort: &entity.ExchangeError{Code: 2005, Meaning: "INSUFFICIENT_BALANCE"},
		},
	}
	recorder := &fakeRecorder{}
	executor := newTestExecutor(exchange, nil, recorder)

	result := executor.Execute(context.Background(), entity.RawIntent{
		Action: "sell", Symbol: "BTC_USDT", Quantity: "1", Leverage: "5",
	})

	assert.Equal(t, entity.ExecutionStatusPartialFailure, result.Status)
	assert.True(t, result.CloseResult.Accepted)
	assert.False(t, result.OpenResult.Accepted)
	require.NotNil(t, result.FirstError())
	assert.Equal(t, 2005, result.FirstError().Code)

	require.Len(t, recorder.records, 1)
	assert.True(t, recorder.records[0].CloseAccepted.Bool)
	assert.False(t, recorder.records[0].OpenAccepted.Bool)
}

func TestExecute_ValidationMakesNoCalls(t *testing.T) {
	cases := []struct {
		name string
		raw  entity.RawIntent
	}{
		{name: "unknown action", raw: entity.RawIntent{Action: "hold", Symbol: "BTC_USDT", Quantity: "1", Leverage: "5"}},
		{name: "zero quantity", raw: entity.RawIntent{Action: "buy", Symbol: "BTC_USDT", Quantity: "0", Leverage: "5"}},
		{name: "negative leverage", raw: entity.RawIntent{Action: "buy", Symbol: "BTC_USDT", Quantity: "1", Leverage: "-5"}},
		{name: "bad symbol", raw: entity.RawIntent{Action: "buy", Symbol: "BTC_EUR", Quantity: "1", Leverage: "5"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exchange := &scriptedExchange{}
			recorder := &fakeRecorder{}
			executor := newTestExecutor(exchange, nil, recorder)

			result := executor.Execute(context.Background(), tc.raw)

			assert.Equal(t, entity.ExecutionStatusFailed, result.Status)
			require.NotNil(t, result.Error)
			assert.Equal(t, entity.ErrorClassValidation, result.Error.Class)
			assert.Nil(t, result.Intent)
			assert.Empty(t, exchange.calls)
			assert.Empty(t, recorder.records)
		})
	}
}

func TestExecute_QueryFailureReleasesLock(t *testing.T) {
	exchange := &scriptedExchange{
		queryErr: &entity.NetworkError{Op: "position query", Err: errors.New("connection refused")},
	}
	locker := &recordingLocker{inner: NewKeyedMutex()}
	executor := newTestExecutor(exchange, locker, nil)

	result := executor.Execute(context.Background(), entity.RawIntent{
		Action: "buy", Symbol: "BTC_USDT", Quantity: "1", Leverage: "5",
	})

	assert.Equal(t, entity.ExecutionStatusFailed, result.Status)
	assert.Equal(t, entity.ErrorClassNetwork, result.Error.Class)
	assert.Nil(t, result.CloseResult)
	assert.Nil(t, result.OpenResult)
	assert.Empty(t, exchange.submissions())
	assert.Equal(t, 1, locker.locked)
	assert.Equal(t, 1, locker.unlocked)

	// the symbol is usable again
	exchange.queryErr = nil
	result = executor.Execute(context.Background(), entity.RawIntent{
		Action: "buy", Symbol: "BTC_USDT", Quantity: "1", Leverage: "5",
	})
	assert.Equal(t, entity.ExecutionStatusSuccess, result.Status)
}

func TestExecute_PanicReleasesLock(t *testing.T) {
	exchange := &scriptedExchange{panicOn: entity.OrderSideOpenLong}
	locker := &recordingLocker{inner: NewKeyedMutex()}
	executor := newTestExecutor(exchange, locker, nil)

	result := executor.Execute(context.Background(), entity.RawIntent{
		Action: "buy", Symbol: "BTC_USDT", Quantity: "1", Leverage: "5",
	})

	assert.Equal(t, entity.ExecutionStatusFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, entity.ErrorClassInternal, result.Error.Class)
	assert.Equal(t, 1, locker.unlocked)
	assert.False(t, result.FinishedAt.IsZero())
}

func TestExecute_LockTimeout(t *testing.T) {
	exchange := &scriptedExchange{}
	locker := NewKeyedMutex()
	executor := newTestExecutor(exchange, locker, nil)
	executor.config.LockTimeout = 20 * time.Millisecond

	unlock, err := locker.Lock(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	defer unlock()

	result := executor.Execute(context.Background(), entity.RawIntent{
		Action: "buy", Symbol: "BTC_USDT", Quantity: "1", Leverage: "5",
	})

	assert.Equal(t, entity.ExecutionStatusFailed, result.Status)
	assert.ErrorIs(t, result.Err, ErrSymbolLockUnavailable)
	assert.Empty(t, exchange.calls)
}

func TestExecute_RecorderFailureDoesNotChangeResult(t *testing.T) {
	exchange := &scriptedExchange{}
	recorder := &fakeRecorder{err: errors.New("database is down")}
	executor := newTestExecutor(exchange, nil, recorder)

	result := executor.Execute(context.Background(), entity.RawIntent{
		Action: "buy", Symbol: "SOL", Quantity: "3", Leverage: "2",
	})

	assert.Equal(t, entity.ExecutionStatusSuccess, result.Status)
	assert.Len(t, recorder.records, 1)
}

func TestExecute_KeepsGivenRequestID(t *testing.T) {
	executor := newTestExecutor(&scriptedExchange{}, nil, nil)

	result := executor.ExecuteRequest(context.Background(), "req-1", entity.RawIntent{
		Action: "buy", Symbol: "BTC_USDT", Quantity: "1", Leverage: "1",
	})

	assert.Equal(t, "req-1", result.RequestID)
}

func TestExecute_SerializesSameSymbol(t *testing.T) {
	exchange := &scriptedExchange{}
	executor := newTestExecutor(exchange, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			executor.Execute(context.Background(), entity.RawIntent{
				Action: "buy", Symbol: "BTC_USDT", Quantity: "1", Leverage: "1",
			})
		}()
	}
	wg.Wait()

	// query and open of one execution are never interleaved with another one
	require.Len(t, exchange.calls, 20)
	for i := 0; i < len(exchange.calls); i += 2 {
		assert.Equal(t, "query", exchange.calls[i].op)
		assert.Equal(t, "submit", exchange.calls[i+1].op)
	}
}
