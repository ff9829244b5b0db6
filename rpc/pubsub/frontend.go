package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

// DefaultChannelSize is the per receiver notification buffer.
const DefaultChannelSize = 16

// ErrRequestWithoutID is returned for requests that could never be answered.
var ErrRequestWithoutID = errors.New("request has no id")

type config struct {
	channelSize int
	logger      *zap.Logger
}

type Option func(*config)

func WithChannelSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.channelSize = size
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Frontend is the caller side of the connection service. It implements
// transport.Transport and gives access to subscriptions.
type Frontend struct {
	reqs      chan<- instruction
	quit      chan struct{}
	closeOnce sync.Once
	svc       *service
}

// Connect opens the first connection and starts the service.
func Connect(ctx context.Context, connector Connector, opts ...Option) (*Frontend, error) {
	cfg := config{
		channelSize: DefaultChannelSize,
		logger:      logutils.ZapLogger().Named("pubsub"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	handle, err := connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	reqs := make(chan instruction)
	quit := make(chan struct{})
	svc := &service{
		handle:    handle,
		connector: connector,
		reqs:      reqs,
		quit:      quit,
		done:      make(chan struct{}),
		requests:  newRequestManager(),
		subs:      newSubscriptionManager(cfg.channelSize),
		logger:    cfg.logger,
	}
	go svc.run()

	return &Frontend{reqs: reqs, quit: quit, svc: svc}, nil
}

func (f *Frontend) backendGone() error {
	<-f.svc.done
	if f.svc.err != nil {
		return fmt.Errorf("%w: %v", transport.ErrBackendGone, f.svc.err)
	}
	return transport.ErrBackendGone
}

func (f *Frontend) send(ctx context.Context, inst instruction) error {
	select {
	case <-f.svc.done:
		return f.backendGone()
	default:
	}
	select {
	case f.reqs <- inst:
		return nil
	case <-f.svc.done:
		return f.backendGone()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Frontend) dispatch(ctx context.Context, req jsonrpc.SerializedRequest) (*inFlight, error) {
	fl := newInFlight(req, ctx.Done())
	if err := f.send(ctx, requestInstruction{inFlight: fl}); err != nil {
		return nil, err
	}
	return fl, nil
}

func (f *Frontend) await(ctx context.Context, fl *inFlight) (jsonrpc.Response, error) {
	select {
	case r := <-fl.tx:
		return r.resp, r.err
	case <-f.svc.done:
		select {
		case r := <-fl.tx:
			return r.resp, r.err
		default:
			return jsonrpc.Response{}, f.backendGone()
		}
	case <-ctx.Done():
		return jsonrpc.Response{}, ctx.Err()
	}
}

// Call sends the packet over the connection. Batch members are dispatched
// individually and collected in request order.
func (f *Frontend) Call(ctx context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
	reqs := packet.Requests()
	if len(reqs) == 0 {
		return jsonrpc.ResponsePacket{}, jsonrpc.ErrEmptyPacket
	}

	for _, req := range reqs {
		if req.ID().IsNone() {
			return jsonrpc.ResponsePacket{}, fmt.Errorf("%w: %s", ErrRequestWithoutID, req.Method())
		}
	}

	pending := make([]*inFlight, 0, len(reqs))
	for _, req := range reqs {
		fl, err := f.dispatch(ctx, req)
		if err != nil {
			return jsonrpc.ResponsePacket{}, err
		}
		pending = append(pending, fl)
	}

	responses := make([]jsonrpc.Response, 0, len(pending))
	for _, fl := range pending {
		resp, err := f.await(ctx, fl)
		if err != nil {
			return jsonrpc.ResponsePacket{}, err
		}
		responses = append(responses, resp)
	}

	if !packet.IsBatch() {
		return jsonrpc.ResponsePacket{Single: &responses[0]}, nil
	}
	return jsonrpc.ResponsePacket{Batch: responses}, nil
}

// GetSubscription attaches a new receiver to the subscription with the
// given local id.
func (f *Frontend) GetSubscription(ctx context.Context, localID common.Hash) (*Subscription, error) {
	tx := make(chan getSubResult, 1)
	if err := f.send(ctx, getSubInstruction{localID: localID, tx: tx}); err != nil {
		return nil, err
	}
	select {
	case r := <-tx:
		return r.sub, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe ends the subscription with the given local id, closing all
// of its receivers. Unknown ids are ignored.
func (f *Frontend) Unsubscribe(ctx context.Context, localID common.Hash) error {
	done := make(chan struct{})
	if err := f.send(ctx, unsubscribeInstruction{localID: localID, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServerID returns the server side id currently bound to localID, or nil
// while the subscription is being renewed. Diagnostics only.
func (f *Frontend) ServerID(ctx context.Context, localID common.Hash) (json.RawMessage, error) {
	tx := make(chan json.RawMessage, 1)
	if err := f.send(ctx, serverIDInstruction{localID: localID, tx: tx}); err != nil {
		return nil, err
	}
	select {
	case id := <-tx:
		return id, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the service has stopped.
func (f *Frontend) Done() <-chan struct{} {
	return f.svc.done
}

// Err returns why the service stopped, nil while it runs or after a clean
// Close.
func (f *Frontend) Err() error {
	select {
	case <-f.svc.done:
		return f.svc.err
	default:
		return nil
	}
}

// Close stops the service and closes the connection.
func (f *Frontend) Close() error {
	f.closeOnce.Do(func() {
		close(f.quit)
	})
	<-f.svc.done
	return nil
}
