package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/pubsub"
	"github.com/status-im/status-go-rpc/rpc/rpcstats"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

const (
	// DefaultCallTimeout is a default timeout for an RPC call
	DefaultCallTimeout = time.Minute
)

// PubSubTransport is a transport backed by a duplex connection that can
// hold subscriptions.
type PubSubTransport interface {
	transport.Transport
	GetSubscription(ctx context.Context, localID common.Hash) (*pubsub.Subscription, error)
	Unsubscribe(ctx context.Context, localID common.Hash) error
}

// Client allocates request ids and dispatches calls through a transport.
//
// Client is safe for concurrent use.
type Client struct {
	transport transport.Transport
	pubsub    PubSubTransport
	id        atomic.Uint64
	tag       string
	timeout   time.Duration
	logger    *zap.Logger
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTag labels the calls of this client in rpcstats.
func WithTag(tag string) Option {
	return func(c *Client) {
		c.tag = tag
	}
}

// WithCallTimeout overrides DefaultCallTimeout for Call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithPubSub sets the duplex frontend used for subscriptions. It is picked
// up automatically when the transport itself is one.
func WithPubSub(ps PubSubTransport) Option {
	return func(c *Client) {
		c.pubsub = ps
	}
}

func NewClient(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		timeout:   DefaultCallTimeout,
		logger:    logutils.ZapLogger().Named("rpc.Client"),
	}
	if ps, ok := t.(PubSubTransport); ok {
		c.pubsub = ps
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Transport() transport.Transport {
	return c.transport
}

// IsPubSub reports whether subscriptions are available.
func (c *Client) IsPubSub() bool {
	return c.pubsub != nil
}

// NextID reserves a request id. Reserving an id does not send anything.
func (c *Client) NextID() jsonrpc.ID {
	return jsonrpc.NumberID(c.id.Add(1) - 1)
}

func (c *Client) MakeRequest(method string, params interface{}) jsonrpc.Request {
	return jsonrpc.NewRequest(method, c.NextID(), params)
}

// Request prepares a call. Nothing is serialized or sent until Await.
func (c *Client) Request(method string, params interface{}) *Call {
	return &Call{client: c, request: c.MakeRequest(method, params)}
}

// CallContext performs a JSON-RPC call and unmarshals the result into
// result, which may be nil to discard it.
func (c *Client) CallContext(ctx context.Context, result interface{}, method string, params interface{}) error {
	return c.Request(method, params).Await(ctx, result)
}

// Call is CallContext bounded by the client call timeout.
func (c *Client) Call(result interface{}, method string, params interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.CallContext(ctx, result, method, params)
}

func (c *Client) NewBatch() *BatchRequest {
	return &BatchRequest{
		client:  c,
		waiters: make(map[jsonrpc.ID]*Waiter),
	}
}

// Subscribe issues a subscription request and returns the local
// subscription id. The id stays the same across reconnections.
func (c *Client) Subscribe(ctx context.Context, method string, params interface{}) (common.Hash, error) {
	if c.pubsub == nil {
		return common.Hash{}, transport.ErrPubSubUnavailable
	}

	req := c.MakeRequest(method, params)
	req.IsSubscription = true
	ser, err := req.Serialize()
	if err != nil {
		return common.Hash{}, &transport.SerError{Err: err}
	}

	c.countCall(method)
	packet, err := c.pubsub.Call(ctx, jsonrpc.SinglePacket(ser))
	if err != nil {
		return common.Hash{}, err
	}

	var localID common.Hash
	resp, err := responseFor(packet, ser.ID())
	if err := decodeResponse(method, resp, err, &localID); err != nil {
		return common.Hash{}, err
	}
	return localID, nil
}

// SubscribeStream subscribes and attaches a receiver in one step.
func (c *Client) SubscribeStream(ctx context.Context, method string, params interface{}) (*pubsub.Subscription, error) {
	localID, err := c.Subscribe(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return c.GetSubscription(ctx, localID)
}

func (c *Client) GetSubscription(ctx context.Context, localID common.Hash) (*pubsub.Subscription, error) {
	if c.pubsub == nil {
		return nil, transport.ErrPubSubUnavailable
	}
	return c.pubsub.GetSubscription(ctx, localID)
}

func (c *Client) Unsubscribe(ctx context.Context, localID common.Hash) error {
	if c.pubsub == nil {
		return transport.ErrPubSubUnavailable
	}
	return c.pubsub.Unsubscribe(ctx, localID)
}

// Close releases the transport if it holds resources.
func (c *Client) Close() error {
	var err error
	if closer, ok := c.transport.(transport.Closer); ok {
		err = closer.Close()
	}
	if c.pubsub != nil && transport.Transport(c.pubsub) != c.transport {
		if closer, ok := c.pubsub.(transport.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
	}
	return err
}

func (c *Client) countCall(method string) {
	rpcstats.CountCallWithTag(method, c.tag)
}

func (c *Client) logFailure(method string, err error) {
	kind := "transport"
	if _, ok := transport.ProtocolError(err); ok {
		kind = "protocol"
	}
	rpcstats.CountError(method, kind)
	c.logger.Debug("rpc call failed", zap.String("method", method), zap.Error(err))
}

// responseFor picks the response matching id, falling back to a single
// response when the server does not echo ids faithfully.
func responseFor(packet jsonrpc.ResponsePacket, id jsonrpc.ID) (jsonrpc.Response, error) {
	for _, resp := range packet.Responses() {
		if resp.ID == id {
			return resp, nil
		}
	}
	if packet.Single != nil {
		return *packet.Single, nil
	}
	return jsonrpc.Response{}, &transport.MissingBatchResponseError{ID: id}
}

func decodeResponse(method string, resp jsonrpc.Response, err error, result interface{}) error {
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return &transport.DeserError{Err: fmt.Errorf("decode result of %s: %w", method, err), Text: string(resp.Result)}
	}
	return nil
}
