package util

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

const defaultProcessTimeout = 30 * time.Second

func ProcessWithTimeout(timeout time.Duration, msg *nats.Msg, callback func(ctx context.Context, msg *nats.Msg) error) error {
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- callback(ctx, msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("processing timeout for message: %s", string(msg.Data))
	case err := <-done:
		return err
	}
}

// PublishEvent publishes data as JSON. A non-empty msgID lets the stream drop duplicates.
func PublishEvent(ctx context.Context, js nats.JetStreamContext, subject string, msgID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	opts := []nats.PubOpt{nats.Context(ctx)}
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}

	_, err = js.Publish(subject, payload, opts...)
	if err != nil {
		return err
	}

	return nil
}
