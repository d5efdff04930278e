package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/krobus00/futures-signal-executor/internal/config"
	"github.com/krobus00/futures-signal-executor/internal/constant"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/krobus00/futures-signal-executor/internal/service/executor"
	"github.com/krobus00/futures-signal-executor/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var (
	ErrPublishSignalFailed = errors.New("failed to publish signal event")
	ErrInvalidSignalEvent  = errors.New("invalid signal event")
)

const (
	executeTimeoutKey     = "execute"
	defaultHandlerTimeout = 30 * time.Second
	// covers history recording, which outlives the handler context
	ackWaitMargin = 15 * time.Second
)

type Executor interface {
	ExecuteRequest(ctx context.Context, requestID string, raw entity.RawIntent) *entity.ExecutionResult
}

type publishFunc func(ctx context.Context, subject string, msgID string, data any) error

// SignalService queues signals on JetStream and executes them from the signal worker.
type SignalService struct {
	executor       Executor
	js             nats.JetStreamContext
	publish        publishFunc
	maxRetries     int
	handlerTimeout time.Duration
}

func NewSignalService(executor Executor, js nats.JetStreamContext, cfg config.NatsJetstreamConfig) *SignalService {
	handlerTimeout := cfg.TimeoutHandler[executeTimeoutKey]
	if handlerTimeout <= 0 {
		handlerTimeout = defaultHandlerTimeout
	}

	s := &SignalService{
		executor:       executor,
		js:             js,
		maxRetries:     cfg.MaxRetries,
		handlerTimeout: handlerTimeout,
	}
	s.publish = func(ctx context.Context, subject string, msgID string, data any) error {
		return util.PublishEvent(ctx, s.js, subject, msgID, data)
	}

	return s
}

func (s *SignalService) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:       constant.SignalStreamName,
		Subjects:   []string{constant.SignalStreamSubjectAll},
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		MaxAge:     24 * time.Hour,
		Duplicates: 5 * time.Minute,
	}

	stream, err := s.js.StreamInfo(constant.SignalStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.SignalStreamName)
		_, err = s.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.SignalStreamName)
	_, err = s.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

func (s *SignalService) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = s.js.QueueSubscribe(
		constant.SignalStreamSubjectExecute,
		constant.SignalQueueName,
		func(msg *nats.Msg) {
			stop := keepInProgress(s.ackWait()/3, func() error { return msg.InProgress() })
			err := util.ProcessWithTimeout(s.handlerTimeout, msg, s.handleExecuteEvent)
			stop()
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
			}

			// orders may already be on the exchange, a redelivery from the server could double them
			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		s.subscribeOptions()...,
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", constant.SignalStreamSubjectExecute, err)
	}

	return nil
}

// ackWait outlives the handler, the server must not hand a running signal to another worker.
func (s *SignalService) ackWait() time.Duration {
	return s.handlerTimeout + ackWaitMargin
}

func (s *SignalService) subscribeOptions() []nats.SubOpt {
	return []nats.SubOpt{
		nats.ManualAck(),
		nats.AckWait(s.ackWait()),
		nats.Durable(constant.SignalQueueGroup),
	}
}

// keepInProgress calls touch every interval until the returned stop func is called.
func keepInProgress(interval time.Duration, touch func() error) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := touch(); err != nil {
					logrus.Warnf("failed to extend ack deadline: %v", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// ExecuteAsync queues a signal and returns its request id.
func (s *SignalService) ExecuteAsync(ctx context.Context, requestID string, raw entity.RawIntent) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if requestID == "" {
		requestID = uuid.NewString()
	}

	event := entity.SignalEvent{
		RetryCount: 0,
		RequestID:  requestID,
		Data:       raw,
	}

	err := s.publish(ctx, constant.SignalStreamSubjectExecute, eventMsgID(event), event)
	if err != nil {
		logrus.WithField("request_id", requestID).Error(err)
		return "", ErrPublishSignalFailed
	}

	return requestID, nil
}

func (s *SignalService) handleExecuteEvent(ctx context.Context, msg *nats.Msg) error {
	var event entity.SignalEvent
	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		logrus.WithField("req", string(msg.Data)).Error(err)
		return fmt.Errorf("%w: %v", ErrInvalidSignalEvent, err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"request_id": event.RequestID,
		"retry":      event.RetryCount,
	})

	result := s.executor.ExecuteRequest(ctx, event.RequestID, event.Data)
	if result.Status == entity.ExecutionStatusSuccess {
		return nil
	}

	if !ShouldRedeliver(result) {
		return fmt.Errorf("signal %s finished with status %s", event.RequestID, result.Status)
	}

	event.RetryCount++
	if event.RetryCount > s.maxRetries {
		logger.Warn("signal retries exhausted")
		return fmt.Errorf("signal %s failed after %d retries", event.RequestID, event.RetryCount-1)
	}

	logger.Info("requeueing signal, no order was submitted")
	err = s.publish(ctx, constant.SignalStreamSubjectExecute, eventMsgID(event), event)
	if err != nil {
		logger.Error(err)
		return ErrPublishSignalFailed
	}

	return nil
}

// ShouldRedeliver is true only when the execution failed before any order reached the exchange.
func ShouldRedeliver(result *entity.ExecutionResult) bool {
	if result == nil || result.Status != entity.ExecutionStatusFailed {
		return false
	}
	if result.Intent == nil || result.CloseResult != nil || result.OpenResult != nil {
		return false
	}

	if errors.Is(result.Err, executor.ErrSymbolLockUnavailable) {
		return true
	}

	return result.Error != nil && result.Error.Class == entity.ErrorClassNetwork
}

func eventMsgID(event entity.SignalEvent) string {
	return fmt.Sprintf("%s-%d", event.RequestID, event.RetryCount)
}
