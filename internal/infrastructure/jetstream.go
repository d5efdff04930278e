package infrastructure

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/krobus00/futures-signal-executor/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	defaultNatsMaxRetries     = 10
	defaultNatsMaxJitter      = 2 * time.Second
	defaultNatsConnectTimeout = 5 * time.Second
	defaultJetStreamMaxWait   = 5 * time.Second
)

// NewJetstream connects to the signal queue. Reconnects follow the same backoff as the database.
func NewJetstream(cfg config.NatsJetstreamConfig) (*nats.Conn, nats.JetStreamContext, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil, errors.New("nats jetstream url is required")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultNatsMaxRetries
	}
	maxJitter := cfg.MaxJitter
	if maxJitter <= 0 {
		maxJitter = defaultNatsMaxJitter
	}
	policy := newRetryPolicy(maxRetries, cfg.ReconnectFactor, cfg.MinJitter, maxJitter)

	nc, err := nats.Connect(cfg.URL,
		nats.Name(config.ServiceName),
		nats.Timeout(defaultNatsConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(policy.maxRetry),
		nats.CustomReconnectDelay(policy.delay),
		nats.DisconnectErrHandler(logNatsDisconnect),
		nats.ReconnectHandler(logNatsReconnect),
		nats.ClosedHandler(logNatsClosed),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	// signals are published synchronously, MaxWait bounds each publish and stream call
	js, err := nc.JetStream(nats.MaxWait(defaultJetStreamMaxWait))
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"url":         cfg.URL,
		"max_retries": policy.maxRetry,
	}).Info("signal queue connected")

	return nc, js, nil
}

func logNatsDisconnect(_ *nats.Conn, err error) {
	if err != nil {
		logrus.Warnf("signal queue disconnected: %v", err)
		return
	}
	logrus.Warn("signal queue disconnected")
}

func logNatsReconnect(conn *nats.Conn) {
	logrus.Infof("signal queue reconnected: %s", conn.ConnectedUrl())
}

func logNatsClosed(conn *nats.Conn) {
	logrus.Warnf("signal queue connection closed: %v", conn.LastError())
}

// CloseJetstream drains pending acks and publishes before closing.
func CloseJetstream(nc *nats.Conn) error {
	if nc == nil {
		return nil
	}

	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}

	nc.Close()
	return nil
}
