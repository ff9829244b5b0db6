package rpc

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

var ErrBatchAlreadySent = errors.New("batch has already been sent")

type waiterResult struct {
	resp jsonrpc.Response
	err  error
}

// Waiter is a single-use handle resolved with the response for one id.
type Waiter struct {
	id     jsonrpc.ID
	method string
	ch     chan waiterResult
	once   sync.Once
}

func newWaiter(id jsonrpc.ID, method string) *Waiter {
	return &Waiter{id: id, method: method, ch: make(chan waiterResult, 1)}
}

func (w *Waiter) ID() jsonrpc.ID {
	return w.id
}

func (w *Waiter) resolve(resp jsonrpc.Response, err error) {
	w.once.Do(func() {
		w.ch <- waiterResult{resp: resp, err: err}
	})
}

// Await blocks until the batch delivers this waiter's response and decodes
// it into result.
func (w *Waiter) Await(ctx context.Context, result interface{}) error {
	select {
	case r := <-w.ch:
		return decodeResponse(w.method, r.resp, r.err, result)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BatchRequest collects calls and sends them in one round trip.
type BatchRequest struct {
	client *Client

	mu       sync.Mutex
	requests []jsonrpc.SerializedRequest
	waiters  map[jsonrpc.ID]*Waiter
	sent     bool
}

// AddCall serializes a call into the batch and returns its waiter.
func (b *BatchRequest) AddCall(method string, params interface{}) (*Waiter, error) {
	ser, err := b.client.MakeRequest(method, params).Serialize()
	if err != nil {
		return nil, &transport.SerError{Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sent {
		return nil, ErrBatchAlreadySent
	}

	w := newWaiter(ser.ID(), method)
	b.requests = append(b.requests, ser)
	b.waiters[ser.ID()] = w
	return w, nil
}

func (b *BatchRequest) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Send dispatches the batch and routes every response to its waiter by id.
// On transport failure every waiter receives the same error, which is also
// returned. Waiters whose id is missing from the reply receive a
// *transport.MissingBatchResponseError.
func (b *BatchRequest) Send(ctx context.Context) error {
	b.mu.Lock()
	if b.sent {
		b.mu.Unlock()
		return ErrBatchAlreadySent
	}
	b.sent = true
	requests := b.requests
	waiters := b.waiters
	b.mu.Unlock()

	if len(requests) == 0 {
		return nil
	}

	for _, req := range requests {
		b.client.countCall(req.Method())
	}

	packet, err := b.client.transport.Call(ctx, jsonrpc.BatchPacket(requests))
	if err != nil {
		b.client.logger.Debug("batch failed", zap.Int("size", len(requests)), zap.Error(err))
		for _, w := range waiters {
			w.resolve(jsonrpc.Response{}, err)
		}
		return err
	}

	for _, resp := range packet.Responses() {
		w, ok := waiters[resp.ID]
		if !ok {
			b.client.logger.Debug("unexpected id in batch response", zap.Stringer("id", resp.ID))
			continue
		}
		w.resolve(resp, nil)
		delete(waiters, resp.ID)
	}

	for id, w := range waiters {
		w.resolve(jsonrpc.Response{}, &transport.MissingBatchResponseError{ID: id})
	}
	return nil
}
