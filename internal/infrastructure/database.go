package infrastructure

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/futures-signal-executor/internal/config"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	postgresConnectTimeout = 5 * time.Second
	defaultMaxIdleConns    = 5
	defaultMaxOpenConns    = 20
	defaultConnLifetime    = time.Hour
)

// NewPostgresConnection opens the execution history database, retrying with backoff.
func NewPostgresConnection(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database dsn is required")
	}

	target := "postgres " + maskDSN(cfg.DSN)
	policy := newRetryPolicy(cfg.MaxRetry, cfg.ReconnectFactor, cfg.MinJitter, cfg.MaxJitter)

	var db *sqlx.DB
	err := policy.connect(ctx, target, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, postgresConnectTimeout)
		defer cancel()

		conn, err := sqlx.ConnectContext(attemptCtx, "postgres", cfg.DSN)
		if err != nil {
			return err
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	pool := poolLimits(cfg)
	db.SetMaxIdleConns(pool.maxIdle)
	db.SetMaxOpenConns(pool.maxOpen)
	db.SetConnMaxLifetime(pool.lifetime)

	logrus.WithFields(logrus.Fields{
		"target":            target,
		"max_idle_conns":    pool.maxIdle,
		"max_active_conns":  pool.maxOpen,
		"max_conn_lifetime": pool.lifetime.String(),
	}).Info("execution history database connected")

	return db, nil
}

type postgresPool struct {
	maxIdle  int
	maxOpen  int
	lifetime time.Duration
}

func poolLimits(cfg config.DatabaseConfig) postgresPool {
	pool := postgresPool{
		maxIdle:  cfg.MaxIdleConns,
		maxOpen:  cfg.MaxActiveConns,
		lifetime: cfg.MaxConnLifetime,
	}
	if pool.maxIdle <= 0 {
		pool.maxIdle = defaultMaxIdleConns
	}
	if pool.maxOpen <= 0 {
		pool.maxOpen = defaultMaxOpenConns
	}
	if pool.maxIdle > pool.maxOpen {
		pool.maxIdle = pool.maxOpen
	}
	if pool.lifetime <= 0 {
		pool.lifetime = defaultConnLifetime
	}
	return pool
}

// StartPostgresHealthCheck pings every interval until ctx is done. A failed ping is only logged,
// recording history never blocks an execution.
func StartPostgresHealthCheck(ctx context.Context, db *sqlx.DB, interval time.Duration) {
	if db == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := db.PingContext(pingCtx)
			cancel()
			if err != nil {
				logrus.Errorf("execution history database ping failed: %v", err)
			}
		}
	}()
}

// maskDSN hides the credentials of postgres:// and redis:// style DSNs.
func maskDSN(dsn string) string {
	idx := strings.LastIndex(dsn, "@")
	if idx == -1 {
		return dsn
	}

	prefix := dsn[:idx]
	credsIdx := strings.LastIndex(prefix, "://")
	if credsIdx == -1 {
		return "***" + dsn[idx:]
	}

	return prefix[:credsIdx+3] + "***" + dsn[idx:]
}
