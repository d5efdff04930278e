package infrastructure

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultBackoffFactor = 2.0
	defaultMinJitter     = 100 * time.Millisecond
	defaultMaxJitter     = 1 * time.Second
)

type retryPolicy struct {
	maxRetry  int
	factor    float64
	minJitter time.Duration
	maxJitter time.Duration
	rng       *rand.Rand
}

func newRetryPolicy(maxRetry int, factor float64, minJitter, maxJitter time.Duration) retryPolicy {
	if maxRetry < 0 {
		maxRetry = 0
	}
	if factor < 1 {
		factor = defaultBackoffFactor
	}
	if minJitter <= 0 {
		minJitter = defaultMinJitter
	}
	if maxJitter <= 0 {
		maxJitter = defaultMaxJitter
	}
	if maxJitter < minJitter {
		maxJitter = minJitter
	}

	return retryPolicy{
		maxRetry:  maxRetry,
		factor:    factor,
		minJitter: minJitter,
		maxJitter: maxJitter,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p retryPolicy) delay(attempt int) time.Duration {
	return backoffWithJitter(attempt, p.factor, p.minJitter, p.maxJitter, p.rng)
}

// connect calls fn until it succeeds, the attempts run out or ctx is done.
func (p retryPolicy) connect(ctx context.Context, target string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.maxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == p.maxRetry {
			break
		}

		waitDuration := p.delay(attempt)
		logrus.WithFields(logrus.Fields{
			"target":    target,
			"attempt":   attempt + 1,
			"max_retry": p.maxRetry,
			"retry_in":  waitDuration.String(),
		}).Warnf("connection failed: %v", err)

		select {
		case <-time.After(waitDuration):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("connect %s after %d attempts: %w", target, p.maxRetry+1, lastErr)
}

func backoffWithJitter(attempt int, factor float64, min, max time.Duration, rng *rand.Rand) time.Duration {
	backoff := float64(min) * math.Pow(factor, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}

	base := time.Duration(backoff)
	if max <= min {
		return base
	}

	jitterWindow := max - min
	jitter := time.Duration(rng.Int63n(int64(jitterWindow) + 1))
	result := base + jitter
	if result > max {
		return max
	}

	return result
}
