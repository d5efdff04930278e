package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/krobus00/futures-signal-executor/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultRedisPingTimeout = 3 * time.Second

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("redis dsn is required")
	}

	options, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis dsn: %w", err)
	}

	client := redis.NewClient(options)
	policy := newRetryPolicy(cfg.MaxRetry, cfg.ReconnectFactor, cfg.MinJitter, cfg.MaxJitter)

	err = policy.connect(ctx, "redis "+maskDSN(cfg.DSN), func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, defaultRedisPingTimeout)
		defer cancel()

		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	logrus.WithField("addr", options.Addr).Info("redis connection established")

	return client, nil
}
