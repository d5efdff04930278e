package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/futures-signal-executor/internal/config"
	"github.com/krobus00/futures-signal-executor/internal/constant"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/krobus00/futures-signal-executor/internal/infrastructure"
	"github.com/krobus00/futures-signal-executor/internal/repository"
	"github.com/krobus00/futures-signal-executor/internal/service/canonicalizer"
	"github.com/krobus00/futures-signal-executor/internal/service/exchange"
	"github.com/krobus00/futures-signal-executor/internal/service/executor"
	"github.com/krobus00/futures-signal-executor/internal/service/reconciler"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// pipeline is everything a process needs to execute signals.
type pipeline struct {
	executor      *executor.OrderExecutor
	executionRepo *repository.ExecutionHistoryRepository

	db          *sqlx.DB
	redisClient *redis.Client
}

// newPipeline wires the order executor from config.Env. The history database and the redis lock
// are optional: without a dsn the executor runs without recording and with an in-process lock.
func newPipeline(ctx context.Context) (*pipeline, error) {
	exchangeConfig, ok := config.Env.Exchanges[string(entity.ExchangeMEXC)]
	if !ok {
		return nil, fmt.Errorf("exchanges.%s is not configured", entity.ExchangeMEXC)
	}

	p := &pipeline{}

	mexc := exchange.NewMEXCExchange(exchangeConfig)
	marginMode := exchange.ParseMarginMode(exchangeConfig.MarginMode)

	executorConfig := config.Env.Executor
	positionReconciler := reconciler.NewPositionReconciler(mexc, reconciler.Config{
		MarginMode:           marginMode,
		PositionQueryRetries: executorConfig.PositionQueryRetries,
		PositionQueryBackoff: executorConfig.PositionQueryBackoff,
	})

	var locker executor.SymbolLocker
	if redisConfig, ok := config.Env.Redis[constant.RedisLock]; ok && strings.TrimSpace(redisConfig.DSN) != "" {
		client, err := infrastructure.NewRedisClient(ctx, redisConfig)
		if err != nil {
			return nil, err
		}
		p.redisClient = client
		locker = executor.NewDistributedLocker(repository.NewSymbolLockRepository(client), executorConfig.LockTTL)
		logrus.Info("using redis symbol lock")
	}

	var recorder executor.ExecutionRecorder
	if dbConfig, ok := config.Env.Database[constant.DatabaseExecutions]; ok && strings.TrimSpace(dbConfig.DSN) != "" {
		db, err := infrastructure.NewPostgresConnection(ctx, dbConfig)
		if err != nil {
			p.close()
			return nil, err
		}
		infrastructure.StartPostgresHealthCheck(ctx, db, dbConfig.PingInterval)
		p.db = db
		p.executionRepo = repository.NewExecutionHistoryRepository(db)
		recorder = p.executionRepo
	} else {
		logrus.Warn("database.executions is not configured, execution history is not recorded")
	}

	p.executor = executor.NewOrderExecutor(
		canonicalizer.NewCanonicalizer(exchangeConfig.QuoteCurrency),
		mexc,
		positionReconciler,
		locker,
		recorder,
		executor.Config{
			MarginMode:  marginMode,
			LockTimeout: executorConfig.LockTimeout,
		},
	)

	return p, nil
}

// shutdownOps returns the clean up operations for the optional connections.
func (p *pipeline) shutdownOps() map[string]operation {
	ops := map[string]operation{}
	if p.db != nil {
		ops["executions database"] = func(ctx context.Context) error {
			return p.db.Close()
		}
	}
	if p.redisClient != nil {
		ops["redis lock"] = func(ctx context.Context) error {
			return p.redisClient.Close()
		}
	}
	return ops
}

func (p *pipeline) close() {
	for name, op := range p.shutdownOps() {
		if err := op(context.Background()); err != nil {
			logrus.Errorf("%s: close failed: %v", name, err)
		}
	}
}
