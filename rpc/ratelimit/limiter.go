package ratelimit

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/retry"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

const (
	DefaultMaxRequestsPerSecond = 50
	minRequestsPerSecond        = 20
	requestsPerSecondStep       = 10
)

var (
	ErrRequestsOverLimit = errors.New("number of requests over limit")
)

// RPSLimiter paces requests to a provider. The pace drops in steps every
// time the provider reports rate limiting, down to a floor.
type RPSLimiter struct {
	uuid uuid.UUID

	maxRequestsPerSecond      int
	maxRequestsPerSecondMutex sync.RWMutex

	limiter *rate.Limiter
}

func NewRPSLimiter(maxRequestsPerSecond int) *RPSLimiter {
	if maxRequestsPerSecond <= 0 {
		maxRequestsPerSecond = DefaultMaxRequestsPerSecond
	}
	return &RPSLimiter{
		uuid:                 uuid.New(),
		maxRequestsPerSecond: maxRequestsPerSecond,
		limiter:              rate.NewLimiter(rate.Limit(maxRequestsPerSecond), maxRequestsPerSecond),
	}
}

func (rl *RPSLimiter) ID() uuid.UUID {
	return rl.uuid
}

func (rl *RPSLimiter) Limit() int {
	rl.maxRequestsPerSecondMutex.RLock()
	defer rl.maxRequestsPerSecondMutex.RUnlock()
	return rl.maxRequestsPerSecond
}

func (rl *RPSLimiter) ReduceLimit() {
	rl.maxRequestsPerSecondMutex.Lock()
	defer rl.maxRequestsPerSecondMutex.Unlock()
	if rl.maxRequestsPerSecond <= minRequestsPerSecond {
		return
	}
	rl.maxRequestsPerSecond = rl.maxRequestsPerSecond - requestsPerSecondStep
	if rl.maxRequestsPerSecond < minRequestsPerSecond {
		rl.maxRequestsPerSecond = minRequestsPerSecond
	}
	rl.limiter.SetLimit(rate.Limit(rl.maxRequestsPerSecond))
	rl.limiter.SetBurst(rl.maxRequestsPerSecond)
}

// WaitForRequestsAvailability blocks until n requests may be sent.
func (rl *RPSLimiter) WaitForRequestsAvailability(ctx context.Context, requests int) error {
	if requests > rl.Limit() {
		return ErrRequestsOverLimit
	}
	return rl.limiter.WaitN(ctx, requests)
}

// Transport paces the inner transport with an RPSLimiter.
type Transport struct {
	inner   transport.Transport
	limiter *RPSLimiter
	logger  *zap.Logger
}

func NewTransport(inner transport.Transport, limiter *RPSLimiter) *Transport {
	return &Transport{
		inner:   inner,
		limiter: limiter,
		logger:  logutils.ZapLogger().Named("ratelimit"),
	}
}

func (t *Transport) Limiter() *RPSLimiter {
	return t.limiter
}

func (t *Transport) Call(ctx context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
	if err := t.limiter.WaitForRequestsAvailability(ctx, len(packet.Requests())); err != nil {
		return jsonrpc.ResponsePacket{}, err
	}

	resp, err := t.inner.Call(ctx, packet)
	rateLimited := retry.IsRateLimitError(err)
	if err == nil {
		if payload := resp.FirstError(); payload != nil {
			rateLimited = retry.IsRetryablePayload(payload)
		}
	}
	if rateLimited {
		t.limiter.ReduceLimit()
		t.logger.Debug("provider is rate limiting, reduced pace", zap.Int("rps", t.limiter.Limit()))
	}
	return resp, err
}

func (t *Transport) Close() error {
	if closer, ok := t.inner.(transport.Closer); ok {
		return closer.Close()
	}
	return nil
}
