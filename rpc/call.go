package rpc

import (
	"context"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

// Call is a prepared request that is dispatched when awaited.
type Call struct {
	client  *Client
	request jsonrpc.Request
}

func (c *Call) Request() jsonrpc.Request {
	return c.request
}

func (c *Call) ID() jsonrpc.ID {
	return c.request.ID
}

// Await serializes and sends the request, then decodes the result into
// result. Errors are *transport.SerError when params cannot be encoded,
// *jsonrpc.ErrorPayload for error responses, *transport.DeserError when the
// result does not fit, or whatever the transport returned.
func (c *Call) Await(ctx context.Context, result interface{}) error {
	method := c.request.Method
	ser, err := c.request.Serialize()
	if err != nil {
		return &transport.SerError{Err: err}
	}

	c.client.countCall(method)
	packet, err := c.client.transport.Call(ctx, jsonrpc.SinglePacket(ser))
	if err != nil {
		c.client.logFailure(method, err)
		return err
	}

	resp, err := responseFor(packet, ser.ID())
	if err := decodeResponse(method, resp, err, result); err != nil {
		c.client.logFailure(method, err)
		return err
	}
	return nil
}
