package transport

//go:generate mockgen -package=mock_transport -source=transport.go -destination=mock/transport.go

import (
	"context"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
)

// Transport delivers a request packet and returns the matching response
// packet. Implementations must be safe for concurrent use.
type Transport interface {
	Call(ctx context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error)

func (f TransportFunc) Call(ctx context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
	return f(ctx, packet)
}

// Closer is implemented by transports holding resources.
type Closer interface {
	Close() error
}
