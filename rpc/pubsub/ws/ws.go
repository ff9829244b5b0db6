package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/pubsub"
)

const (
	DefaultKeepalive = 10 * time.Second
	writeWait        = 10 * time.Second
	maxMessageSize   = 128 * 1024 * 1024
)

// Connector opens WebSocket connections to a node.
type Connector struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	keepalive time.Duration
	reconnect pubsub.ReconnectPolicy
	logger    *zap.Logger
}

type Option func(*Connector)

func WithHeader(header http.Header) Option {
	return func(c *Connector) {
		c.header = header
	}
}

func WithKeepalive(interval time.Duration) Option {
	return func(c *Connector) {
		c.keepalive = interval
	}
}

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

func NewConnector(url string, opts ...Option) *Connector {
	c := &Connector{
		url:       url,
		dialer:    websocket.DefaultDialer,
		keepalive: DefaultKeepalive,
		reconnect: pubsub.DefaultReconnectPolicy(),
		logger:    logutils.ZapLogger().Named("ws"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Connect(ctx context.Context) (*pubsub.ConnectionHandle, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	handle, iface := pubsub.NewConnectionHandle()
	b := &backend{
		conn:      conn,
		iface:     iface,
		keepalive: c.keepalive,
		logger:    c.logger.With(zap.Stringer("connection", iface.ID())),
	}
	go b.run()
	return handle, nil
}

func (c *Connector) TryReconnect(ctx context.Context) (*pubsub.ConnectionHandle, error) {
	return pubsub.RetryConnect(ctx, c.reconnect, c.logger, c.Connect)
}

// backend pumps one websocket connection. Only the write loop writes data
// frames.
type backend struct {
	conn      *websocket.Conn
	iface     *pubsub.ConnectionInterface
	keepalive time.Duration
	logger    *zap.Logger
}

func (b *backend) run() {
	readerDone := make(chan struct{})
	go b.readLoop(readerDone)
	b.writeLoop(readerDone)
}

func (b *backend) readLoop(done chan<- struct{}) {
	defer close(done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		msgType, data, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case <-b.iface.ShutdownRequested():
			default:
				b.logger.Debug("websocket read failed", zap.Error(err))
				b.iface.CloseWithError()
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if !b.iface.Deliver(ctx, data) {
			return
		}
	}
}

func (b *backend) writeLoop(readerDone <-chan struct{}) {
	var ticks <-chan time.Time
	if b.keepalive > 0 {
		ticker := time.NewTicker(b.keepalive)
		defer ticker.Stop()
		ticks = ticker.C
	}
	defer b.conn.Close()

	for {
		select {
		case msg := <-b.iface.Outbound():
			_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				b.logger.Debug("websocket write failed", zap.Error(err))
				b.iface.CloseWithError()
				return
			}
		case <-ticks:
			if err := b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				b.logger.Debug("websocket ping failed", zap.Error(err))
				b.iface.CloseWithError()
				return
			}
		case <-b.iface.ShutdownRequested():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = b.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case <-readerDone:
			return
		}
	}
}
