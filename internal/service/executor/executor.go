package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/krobus00/futures-signal-executor/internal/metrics"
	"github.com/krobus00/futures-signal-executor/internal/service/canonicalizer"
	"github.com/krobus00/futures-signal-executor/internal/service/reconciler"
	"github.com/sirupsen/logrus"
)

const (
	defaultLockTimeout = 30 * time.Second
	recordTimeout      = 5 * time.Second
)

// ExecutionRecorder persists finished executions. Failures are logged and never change a result.
type ExecutionRecorder interface {
	Create(ctx context.Context, history *entity.ExecutionHistory) error
}

type Config struct {
	MarginMode  entity.MarginMode
	LockTimeout time.Duration
}

type OrderExecutor struct {
	canonicalizer *canonicalizer.Canonicalizer
	exchange      entity.Exchange
	reconciler    *reconciler.PositionReconciler
	locker        SymbolLocker
	recorder      ExecutionRecorder
	config        Config

	now          func() time.Time
	newRequestID func() string
}

// NewOrderExecutor wires the pipeline. locker defaults to an in-process KeyedMutex and recorder
// may be nil.
func NewOrderExecutor(
	canonicalizer *canonicalizer.Canonicalizer,
	exchange entity.Exchange,
	reconciler *reconciler.PositionReconciler,
	locker SymbolLocker,
	recorder ExecutionRecorder,
	config Config,
) *OrderExecutor {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaultLockTimeout
	}
	if config.MarginMode == "" {
		config.MarginMode = entity.MarginModeIsolated
	}

	return &OrderExecutor{
		canonicalizer: canonicalizer,
		exchange:      exchange,
		reconciler:    reconciler,
		locker:        locker,
		recorder:      recorder,
		config:        config,
		now:           func() time.Time { return time.Now().UTC() },
		newRequestID:  uuid.NewString,
	}
}

func (e *OrderExecutor) Execute(ctx context.Context, raw entity.RawIntent) *entity.ExecutionResult {
	return e.ExecuteRequest(ctx, "", raw)
}

// ExecuteRequest runs one signal end to end. It always returns a result, never an error: every
// failure is folded into Status and Error.
func (e *OrderExecutor) ExecuteRequest(ctx context.Context, requestID string, raw entity.RawIntent) (result *entity.ExecutionResult) {
	if requestID == "" {
		requestID = e.newRequestID()
	}

	result = &entity.ExecutionResult{
		RequestID: requestID,
		Status:    entity.ExecutionStatusFailed,
		StartedAt: e.now(),
	}

	logger := logrus.WithFields(logrus.Fields{
		"request_id": requestID,
		"action":     raw.Action,
		"symbol":     raw.Symbol,
	})

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.WithField("panic", recovered).Error("panic recovered during execution")
			result.Status = entity.ExecutionStatusFailed
			result.Err = fmt.Errorf("panic during execution: %v", recovered)
			result.Error = &entity.ResultError{Class: entity.ErrorClassInternal, Message: result.Err.Error()}
		}

		result.FinishedAt = e.now()
		e.record(ctx, logger, result)
	}()

	intent, err := e.canonicalizer.Normalize(raw)
	if err != nil {
		logger.WithError(err).Warn("signal rejected")
		e.fail(result, err)
		return result
	}
	result.Intent = &intent

	logger = logger.WithFields(logrus.Fields{
		"symbol":    intent.Symbol,
		"direction": intent.Direction,
		"quantity":  intent.Quantity.String(),
		"leverage":  intent.Leverage,
	})

	lockCtx, cancel := context.WithTimeout(ctx, e.config.LockTimeout)
	unlock, err := e.locker.Lock(lockCtx, intent.Symbol)
	cancel()
	if err != nil {
		logger.WithError(err).Error("failed to acquire symbol lock")
		e.fail(result, err)
		return result
	}
	defer unlock()

	closeResult, proceed, err := e.reconciler.Reconcile(ctx, intent)
	result.CloseResult = closeResult
	if err != nil {
		e.fail(result, err)
		return result
	}
	if !proceed {
		result.Status = entity.DeriveStatus(closeResult, nil)
		return result
	}

	result.OpenResult = e.exchange.SubmitOrder(ctx, entity.OrderSubmission{
		Symbol:     intent.Symbol,
		Side:       entity.OpenSideFor(intent.Direction),
		Volume:     intent.Quantity,
		Leverage:   intent.Leverage,
		MarginMode: e.config.MarginMode,
	})
	result.Status = entity.DeriveStatus(result.CloseResult, result.OpenResult)

	if result.OpenResult.Accepted {
		logger.WithField("order_id", result.OpenResult.OrderID.String).Info("open order accepted")
	} else {
		logger.WithError(result.OpenResult.Err).Warn("open order rejected")
	}

	return result
}

func (e *OrderExecutor) fail(result *entity.ExecutionResult, err error) {
	result.Status = entity.ExecutionStatusFailed
	result.Err = err
	result.Error = entity.NewResultError(err)
}

func (e *OrderExecutor) record(ctx context.Context, logger *logrus.Entry, result *entity.ExecutionResult) {
	elapsed := result.FinishedAt.Sub(result.StartedAt)
	metrics.ObserveExecution(string(result.Status), elapsed)
	for _, order := range []*entity.OrderResult{result.CloseResult, result.OpenResult} {
		if order != nil {
			metrics.IncOrder(string(order.Side), order.Accepted)
		}
	}

	logger.WithFields(logrus.Fields{
		"status":      result.Status,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("signal executed")

	if e.recorder == nil || result.Intent == nil {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := e.recorder.Create(recordCtx, entity.NewExecutionHistory(result)); err != nil {
		logger.WithError(err).Error("failed to record execution history")
	}
}
