package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/rpcstats"
	"github.com/status-im/status-go-rpc/rpc/transport"
	mock_transport "github.com/status-im/status-go-rpc/rpc/transport/mock"
)

type ClientSuite struct {
	suite.Suite

	ctrl      *gomock.Controller
	transport *mock_transport.MockTransport
	client    *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.transport = mock_transport.NewMockTransport(s.ctrl)
	s.client = NewClient(s.transport, WithTag("test"))
}

func (s *ClientSuite) TearDownTest() {
	s.ctrl.Finish()
}

func resultResponse(id jsonrpc.ID, result string) jsonrpc.Response {
	return jsonrpc.Response{ID: id, Result: json.RawMessage(result)}
}

func (s *ClientSuite) TestCallDecodesResult() {
	rpcstats.ResetStats()
	s.transport.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
			s.Require().False(packet.IsBatch())
			s.Require().Equal("eth_chainId", packet.Single.Method())
			resp := resultResponse(packet.Single.ID(), `"0x1"`)
			return jsonrpc.ResponsePacket{Single: &resp}, nil
		})

	var chainID string
	s.Require().NoError(s.client.CallContext(context.Background(), &chainID, "eth_chainId", nil))
	s.Require().Equal("0x1", chainID)
	s.Require().Equal(uint(1), rpcstats.GetStats().CounterPerMethodPerTag["test"]["eth_chainId"])
}

func (s *ClientSuite) TestCallErrorPayload() {
	s.transport.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
			resp := jsonrpc.Response{ID: packet.Single.ID(), Error: &jsonrpc.ErrorPayload{Code: -32601, Message: "method not found"}}
			return jsonrpc.ResponsePacket{Single: &resp}, nil
		})

	err := s.client.CallContext(context.Background(), nil, "foo_bar", nil)
	payload, ok := transport.ProtocolError(err)
	s.Require().True(ok)
	s.Require().Equal(-32601, payload.ErrorCode())
}

func (s *ClientSuite) TestCallDeserError() {
	s.transport.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
			resp := resultResponse(packet.Single.ID(), `"not a number"`)
			return jsonrpc.ResponsePacket{Single: &resp}, nil
		})

	var n uint64
	err := s.client.CallContext(context.Background(), &n, "eth_blockNumber", nil)
	var deserErr *transport.DeserError
	s.Require().True(errors.As(err, &deserErr))
	s.Require().Equal(`"not a number"`, deserErr.Text)
}

func (s *ClientSuite) TestCallSerErrorIsNotSent() {
	err := s.client.CallContext(context.Background(), nil, "eth_call", []interface{}{func() {}})
	var serErr *transport.SerError
	s.Require().True(errors.As(err, &serErr))
}

func (s *ClientSuite) TestCallTransportErrorPassesThrough() {
	boom := errors.New("connection refused")
	s.transport.EXPECT().Call(gomock.Any(), gomock.Any()).Return(jsonrpc.ResponsePacket{}, boom)
	s.Require().ErrorIs(s.client.CallContext(context.Background(), nil, "eth_chainId", nil), boom)
}

func (s *ClientSuite) TestRequestIsLazy() {
	call := s.client.Request("eth_chainId", nil)
	s.Require().Equal(jsonrpc.NumberID(0), call.ID())
	// no transport expectation: nothing is sent until Await
}

func (s *ClientSuite) TestSubscribeWithoutPubSub() {
	_, err := s.client.Subscribe(context.Background(), "eth_subscribe", []string{"newHeads"})
	s.Require().ErrorIs(err, transport.ErrPubSubUnavailable)
	_, err = s.client.GetSubscription(context.Background(), common.Hash{})
	s.Require().ErrorIs(err, transport.ErrPubSubUnavailable)
	s.Require().ErrorIs(s.client.Unsubscribe(context.Background(), common.Hash{}), transport.ErrPubSubUnavailable)
	s.Require().False(s.client.IsPubSub())
}

func TestNextIDConcurrentUniqueness(t *testing.T) {
	client := NewClient(transport.TransportFunc(func(context.Context, jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
		return jsonrpc.ResponsePacket{}, nil
	}))

	const workers, perWorker = 16, 500
	ids := make(chan jsonrpc.ID, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- client.NextID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[jsonrpc.ID]struct{}, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, workers*perWorker)
}

// echoBatch answers every request with its own method name, in shuffled
// order, optionally leaving some ids out.
func echoBatch(skip map[string]bool) transport.TransportFunc {
	return func(_ context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
		var out []jsonrpc.Response
		for _, req := range packet.Requests() {
			if skip[req.Method()] {
				continue
			}
			raw, _ := json.Marshal(req.Method())
			out = append(out, resultResponse(req.ID(), string(raw)))
		}
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return jsonrpc.ResponsePacket{Batch: out}, nil
	}
}

func TestBatchDemultiplexesByID(t *testing.T) {
	client := NewClient(echoBatch(nil))
	batch := client.NewBatch()

	methods := []string{"eth_chainId", "eth_blockNumber", "eth_gasPrice", "net_version", "web3_clientVersion"}
	waiters := make([]*Waiter, 0, len(methods))
	for _, m := range methods {
		w, err := batch.AddCall(m, nil)
		require.NoError(t, err)
		waiters = append(waiters, w)
	}
	require.Equal(t, len(methods), batch.Len())
	require.NoError(t, batch.Send(context.Background()))

	for i, w := range waiters {
		var got string
		require.NoError(t, w.Await(context.Background(), &got))
		require.Equal(t, methods[i], got)
	}

	require.ErrorIs(t, batch.Send(context.Background()), ErrBatchAlreadySent)
	_, err := batch.AddCall("eth_chainId", nil)
	require.ErrorIs(t, err, ErrBatchAlreadySent)
}

func TestBatchAnsweredInReverseOrder(t *testing.T) {
	results := map[string]string{"eth_getBalance": `"0x64"`, "eth_blockNumber": `"0x10"`}
	var sent []jsonrpc.ID
	client := NewClient(transport.TransportFunc(func(_ context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
		reqs := packet.Requests()
		out := make([]jsonrpc.Response, 0, len(reqs))
		for i := len(reqs) - 1; i >= 0; i-- {
			sent = append(sent, reqs[i].ID())
			out = append(out, resultResponse(reqs[i].ID(), results[reqs[i].Method()]))
		}
		return jsonrpc.ResponsePacket{Batch: out}, nil
	}))

	batch := client.NewBatch()
	balance, err := batch.AddCall("eth_getBalance", []string{"0x407d73d8a49eeb85d32cf465507dd71d507100c1", "latest"})
	require.NoError(t, err)
	number, err := batch.AddCall("eth_blockNumber", nil)
	require.NoError(t, err)
	require.NoError(t, batch.Send(context.Background()))

	require.Len(t, sent, 2)
	require.NotEqual(t, sent[0], sent[1])

	var got string
	require.NoError(t, balance.Await(context.Background(), &got))
	require.Equal(t, "0x64", got)
	require.NoError(t, number.Await(context.Background(), &got))
	require.Equal(t, "0x10", got)
}

func TestBatchMissingResponse(t *testing.T) {
	client := NewClient(echoBatch(map[string]bool{"eth_gasPrice": true}))
	batch := client.NewBatch()

	a, err := batch.AddCall("eth_chainId", nil)
	require.NoError(t, err)
	b, err := batch.AddCall("eth_gasPrice", nil)
	require.NoError(t, err)
	c, err := batch.AddCall("net_version", nil)
	require.NoError(t, err)
	require.NoError(t, batch.Send(context.Background()))

	require.NoError(t, a.Await(context.Background(), nil))
	require.NoError(t, c.Await(context.Background(), nil))

	err = b.Await(context.Background(), nil)
	var missing *transport.MissingBatchResponseError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, b.ID(), missing.ID)
}

func TestBatchTransportFailureReachesEveryWaiter(t *testing.T) {
	boom := errors.New("socket closed")
	client := NewClient(transport.TransportFunc(func(context.Context, jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
		return jsonrpc.ResponsePacket{}, boom
	}))
	batch := client.NewBatch()
	a, err := batch.AddCall("a", nil)
	require.NoError(t, err)
	b, err := batch.AddCall("b", nil)
	require.NoError(t, err)

	require.ErrorIs(t, batch.Send(context.Background()), boom)
	require.ErrorIs(t, a.Await(context.Background(), nil), boom)
	require.ErrorIs(t, b.Await(context.Background(), nil), boom)
}

func TestEmptyBatchSendsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := NewClient(mock_transport.NewMockTransport(ctrl))
	require.NoError(t, client.NewBatch().Send(context.Background()))
}

func TestBatchSerializationErrorIsImmediate(t *testing.T) {
	client := NewClient(echoBatch(nil))
	batch := client.NewBatch()
	_, err := batch.AddCall("eth_call", []interface{}{make(chan int)})
	var serErr *transport.SerError
	require.True(t, errors.As(err, &serErr))
	require.Equal(t, 0, batch.Len())
}

func TestWaiterAwaitHonoursContext(t *testing.T) {
	w := newWaiter(jsonrpc.NumberID(1), "eth_chainId")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Await(ctx, nil), context.Canceled)

	// resolving twice keeps the first result
	w.resolve(resultResponse(jsonrpc.NumberID(1), `1`), nil)
	w.resolve(jsonrpc.Response{}, errors.New("late"))
	var n int
	require.NoError(t, w.Await(context.Background(), &n))
	require.Equal(t, 1, n)
}
