package retry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/rpcstats"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

const (
	// DefaultAvgCost is the average compute unit cost of a request.
	DefaultAvgCost               = 17
	DefaultMaxRateLimitRetries   = 10
	DefaultInitialBackoff        = time.Second
	DefaultComputeUnitsPerSecond = 330
)

type Config struct {
	MaxRateLimitRetries   uint32
	InitialBackoff        time.Duration
	ComputeUnitsPerSecond uint64
	AvgCost               uint64
}

func DefaultConfig() Config {
	return Config{
		MaxRateLimitRetries:   DefaultMaxRateLimitRetries,
		InitialBackoff:        DefaultInitialBackoff,
		ComputeUnitsPerSecond: DefaultComputeUnitsPerSecond,
		AvgCost:               DefaultAvgCost,
	}
}

type MaxRetriesExceededError struct {
	Retries uint32
	Err     error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("max retries exceeded (%d): %v", e.Retries, e.Err)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.Err
}

// ComputeUnitOffset is the extra wait that spreads a queue of requests
// over the compute unit budget.
func ComputeUnitOffset(avgCost, computeUnitsPerSecond, queued, aheadInQueue uint64) time.Duration {
	if avgCost == 0 {
		avgCost = 1
	}
	capacity := computeUnitsPerSecond / avgCost
	if capacity < 1 {
		capacity = 1
	}
	if queued <= capacity {
		return 0
	}
	ahead := aheadInQueue
	if queued < ahead {
		ahead = queued
	}
	return time.Duration(ahead/capacity) * time.Second
}

// Transport retries calls of the inner transport that fail with a
// retryable error.
type Transport struct {
	inner    transport.Transport
	policy   Policy
	config   Config
	enqueued *atomic.Int64
	sleep    func(ctx context.Context, d time.Duration) error
	onRetry  func(err error)
	logger   *zap.Logger
}

type Option func(*Transport)

func WithPolicy(policy Policy) Option {
	return func(t *Transport) {
		t.policy = policy
	}
}

// WithSharedCounter makes several transports share one enqueued counter.
func WithSharedCounter(counter *atomic.Int64) Option {
	return func(t *Transport) {
		t.enqueued = counter
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Transport) {
		t.sleep = sleep
	}
}

// WithRetryHook is called with the error of every attempt that is retried.
func WithRetryHook(hook func(err error)) Option {
	return func(t *Transport) {
		t.onRetry = hook
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

func New(inner transport.Transport, config Config, opts ...Option) *Transport {
	t := &Transport{
		inner:    inner,
		policy:   RateLimitPolicy{},
		config:   config,
		enqueued: new(atomic.Int64),
		sleep:    sleepContext,
		logger:   logutils.ZapLogger().Named("retry"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Enqueued is the number of calls admitted and not yet finished.
func (t *Transport) Enqueued() int64 {
	return t.enqueued.Load()
}

func (t *Transport) Call(ctx context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
	ahead := t.enqueued.Add(1) - 1
	defer t.enqueued.Add(-1)

	var retries uint32
	for {
		resp, err := t.inner.Call(ctx, packet)
		if err == nil {
			payload := resp.FirstError()
			if payload == nil || !t.policy.ShouldRetry(payload) {
				return resp, nil
			}
			err = payload
		} else if !t.policy.ShouldRetry(err) {
			return resp, err
		}

		if retries >= t.config.MaxRateLimitRetries {
			return jsonrpc.ResponsePacket{}, &MaxRetriesExceededError{Retries: retries, Err: err}
		}
		retries++

		wait := t.config.InitialBackoff
		if hint, ok := t.policy.BackoffHint(err); ok {
			wait = hint
		}
		offset := ComputeUnitOffset(t.config.AvgCost, t.config.ComputeUnitsPerSecond, uint64(t.enqueued.Load()), uint64(ahead))

		for _, method := range packet.Methods() {
			rpcstats.CountError(method, "rate_limit")
		}
		if t.onRetry != nil {
			t.onRetry(err)
		}
		t.logger.Debug("retrying rate limited request",
			zap.Uint32("attempt", retries),
			zap.Duration("backoff", wait),
			zap.Duration("offset", offset),
			zap.Error(err))

		if err := t.sleep(ctx, wait+offset); err != nil {
			return jsonrpc.ResponsePacket{}, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the inner transport if it holds resources.
func (t *Transport) Close() error {
	if closer, ok := t.inner.(transport.Closer); ok {
		return closer.Close()
	}
	return nil
}
