package reconciler

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	defaultPositionQueryBackoff = 200 * time.Millisecond
	maxPositionQueryBackoff     = 2 * time.Second
)

type Config struct {
	MarginMode entity.MarginMode
	// PositionQueryRetries is how many extra attempts a failed position query gets.
	// Only network errors are retried, order submission never is.
	PositionQueryRetries int
	PositionQueryBackoff time.Duration
}

// PositionReconciler makes sure a signal never opens on top of an opposing position.
type PositionReconciler struct {
	exchange entity.Exchange
	config   Config
}

func NewPositionReconciler(exchange entity.Exchange, config Config) *PositionReconciler {
	if config.PositionQueryRetries < 0 {
		config.PositionQueryRetries = 0
	}
	if config.PositionQueryBackoff <= 0 {
		config.PositionQueryBackoff = defaultPositionQueryBackoff
	}

	return &PositionReconciler{
		exchange: exchange,
		config:   config,
	}
}

// Reconcile closes an opposing position before the caller opens a new one. proceed is false when
// the position could not be read or the close was rejected; the caller must not open in that case.
func (r *PositionReconciler) Reconcile(ctx context.Context, intent entity.TradeIntent) (closeResult *entity.OrderResult, proceed bool, err error) {
	logger := logrus.WithFields(logrus.Fields{
		"symbol":    intent.Symbol,
		"direction": intent.Direction,
	})

	snapshot, err := r.fetchPosition(ctx, intent.Symbol)
	if err != nil {
		logger.WithError(err).Error("failed to fetch position")
		return nil, false, err
	}

	logger = logger.WithFields(logrus.Fields{
		"position_side":   snapshot.Side,
		"position_volume": snapshot.Volume.String(),
	})

	if !snapshot.Opposes(intent.Direction) {
		logger.Debug("no opposing position")
		return nil, true, nil
	}

	logger.Info("closing opposite position")
	closeResult = r.exchange.SubmitOrder(ctx, entity.OrderSubmission{
		Symbol:     intent.Symbol,
		Side:       entity.CloseSideFor(snapshot.Side),
		Volume:     snapshot.Volume,
		Leverage:   intent.Leverage,
		MarginMode: r.config.MarginMode,
		PositionID: snapshot.PositionID,
	})

	if !closeResult.Accepted {
		logger.WithError(closeResult.Err).Warn("close order rejected, new position will not be opened")
		return closeResult, false, nil
	}

	logger.WithField("order_id", closeResult.OrderID.String).Info("opposite position closed")
	return closeResult, true, nil
}

func (r *PositionReconciler) fetchPosition(ctx context.Context, symbol string) (entity.PositionSnapshot, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.PositionQueryRetries; attempt++ {
		snapshot, err := r.exchange.GetPosition(ctx, symbol)
		if err == nil {
			return snapshot, nil
		}

		lastErr = err

		var networkErr *entity.NetworkError
		if !errors.As(err, &networkErr) || attempt == r.config.PositionQueryRetries {
			break
		}

		wait := r.backoff(attempt)
		logrus.WithFields(logrus.Fields{
			"symbol":   symbol,
			"attempt":  attempt + 1,
			"retry_in": wait.String(),
		}).Warnf("position query failed: %v", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return entity.PositionSnapshot{}, &entity.NetworkError{Op: "position query", Err: ctx.Err()}
		}
	}

	return entity.PositionSnapshot{}, lastErr
}

func (r *PositionReconciler) backoff(attempt int) time.Duration {
	base := float64(r.config.PositionQueryBackoff) * math.Pow(2, float64(attempt))
	if base > float64(maxPositionQueryBackoff) {
		base = float64(maxPositionQueryBackoff)
	}

	// shared by concurrent Reconcile calls
	jitter := rand.Int63n(int64(r.config.PositionQueryBackoff)/2 + 1)
	return time.Duration(base) + time.Duration(jitter)
}
