package pubsub

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectInterval    = 500 * time.Millisecond
	maxReconnectInterval        = 30 * time.Second
)

// ReconnectPolicy bounds how hard a connector tries to reopen a connection.
type ReconnectPolicy struct {
	MaxAttempts uint64
	Interval    time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: DefaultMaxReconnectAttempts,
		Interval:    DefaultReconnectInterval,
	}
}

// RetryConnect calls connect with exponential backoff until it succeeds,
// the attempts are exhausted or ctx is done.
func RetryConnect(ctx context.Context, policy ReconnectPolicy, logger *zap.Logger, connect func(context.Context) (*ConnectionHandle, error)) (*ConnectionHandle, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = policy.Interval
	expBackoff.MaxInterval = maxReconnectInterval
	expBackoff.MaxElapsedTime = 0

	var handle *ConnectionHandle
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		h, err := connect(ctx)
		if err != nil {
			logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		handle = h
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(expBackoff, policy.MaxAttempts), ctx))
	if err != nil {
		return nil, err
	}
	return handle, nil
}
