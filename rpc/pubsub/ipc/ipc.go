package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/pubsub"
)

// Connector opens connections to a node's unix domain socket.
type Connector struct {
	path      string
	dialer    net.Dialer
	reconnect pubsub.ReconnectPolicy
	logger    *zap.Logger
}

type Option func(*Connector)

func WithReconnectPolicy(policy pubsub.ReconnectPolicy) Option {
	return func(c *Connector) {
		c.reconnect = policy
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Connector) {
		c.logger = logger
	}
}

func NewConnector(path string, opts ...Option) *Connector {
	c := &Connector{
		path:      path,
		reconnect: pubsub.DefaultReconnectPolicy(),
		logger:    logutils.ZapLogger().Named("ipc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Connect(ctx context.Context) (*pubsub.ConnectionHandle, error) {
	conn, err := c.dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.path, err)
	}

	handle, iface := pubsub.NewConnectionHandle()
	b := &backend{
		conn:   conn,
		iface:  iface,
		logger: c.logger.With(zap.Stringer("connection", iface.ID())),
	}
	go b.run()
	return handle, nil
}

func (c *Connector) TryReconnect(ctx context.Context) (*pubsub.ConnectionHandle, error) {
	return pubsub.RetryConnect(ctx, c.reconnect, c.logger, c.Connect)
}

type backend struct {
	conn   net.Conn
	iface  *pubsub.ConnectionInterface
	logger *zap.Logger
}

func (b *backend) run() {
	readerDone := make(chan struct{})
	go b.readLoop(readerDone)
	b.writeLoop(readerDone)
}

// readLoop decodes the stream of concatenated JSON values the node writes.
func (b *backend) readLoop(done chan<- struct{}) {
	defer close(done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dec := json.NewDecoder(bufio.NewReader(b.conn))
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			select {
			case <-b.iface.ShutdownRequested():
			default:
				b.logger.Debug("ipc read failed", zap.Error(err))
				b.iface.CloseWithError()
			}
			return
		}
		if !b.iface.Deliver(ctx, raw) {
			return
		}
	}
}

func (b *backend) writeLoop(readerDone <-chan struct{}) {
	defer b.conn.Close()
	for {
		select {
		case msg := <-b.iface.Outbound():
			if _, err := b.conn.Write(msg); err != nil {
				b.logger.Debug("ipc write failed", zap.Error(err))
				b.iface.CloseWithError()
				return
			}
		case <-b.iface.ShutdownRequested():
			return
		case <-readerDone:
			return
		}
	}
}
