package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	mock_transport "github.com/status-im/status-go-rpc/rpc/transport/mock"
)

func single(t *testing.T, method string, id uint64, params interface{}) jsonrpc.RequestPacket {
	req, err := jsonrpc.NewRequest(method, jsonrpc.NumberID(id), params).Serialize()
	require.NoError(t, err)
	return jsonrpc.SinglePacket(req)
}

func answer(id uint64, result string) jsonrpc.ResponsePacket {
	resp := jsonrpc.Response{ID: jsonrpc.NumberID(id), Result: json.RawMessage(result)}
	return jsonrpc.ResponsePacket{Single: &resp}
}

func TestCacheServesRepeatedCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	inner := mock_transport.NewMockTransport(ctrl)
	inner.EXPECT().Call(gomock.Any(), gomock.Any()).Return(answer(1, `"0x1"`), nil).Times(1)

	c := NewTransport(inner, time.Minute, 10, nil)
	defer c.Close()

	resp, err := c.Call(context.Background(), single(t, "eth_chainId", 1, nil))
	require.NoError(t, err)
	require.JSONEq(t, `"0x1"`, string(resp.Single.Result))

	resp, err = c.Call(context.Background(), single(t, "eth_chainId", 2, nil))
	require.NoError(t, err)
	require.Equal(t, jsonrpc.NumberID(2), resp.Single.ID)
	require.JSONEq(t, `"0x1"`, string(resp.Single.Result))
	require.Equal(t, 1, c.Len())
}

func TestCacheSkipsOtherMethodsAndNullResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	inner := mock_transport.NewMockTransport(ctrl)
	gomock.InOrder(
		inner.EXPECT().Call(gomock.Any(), gomock.Any()).Return(answer(1, `"0x5"`), nil),
		inner.EXPECT().Call(gomock.Any(), gomock.Any()).Return(answer(2, `"0x6"`), nil),
		inner.EXPECT().Call(gomock.Any(), gomock.Any()).Return(answer(3, `null`), nil),
		inner.EXPECT().Call(gomock.Any(), gomock.Any()).Return(answer(4, `{"status":"0x1"}`), nil),
	)

	c := NewTransport(inner, time.Minute, 10, nil)
	defer c.Close()

	_, err := c.Call(context.Background(), single(t, "eth_blockNumber", 1, nil))
	require.NoError(t, err)
	_, err = c.Call(context.Background(), single(t, "eth_blockNumber", 2, nil))
	require.NoError(t, err)

	// a pending receipt is not cached
	_, err = c.Call(context.Background(), single(t, "eth_getTransactionReceipt", 3, []string{"0xabc"}))
	require.NoError(t, err)
	resp, err := c.Call(context.Background(), single(t, "eth_getTransactionReceipt", 4, []string{"0xabc"}))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"0x1"}`, string(resp.Single.Result))
	require.Equal(t, 1, c.Len())
}

func TestCacheStoresBatchResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	inner := mock_transport.NewMockTransport(ctrl)

	a, err := jsonrpc.NewRequest("net_version", jsonrpc.NumberID(1), nil).Serialize()
	require.NoError(t, err)
	b, err := jsonrpc.NewRequest("eth_gasPrice", jsonrpc.NumberID(2), nil).Serialize()
	require.NoError(t, err)
	inner.EXPECT().Call(gomock.Any(), gomock.Any()).Return(jsonrpc.ResponsePacket{Batch: []jsonrpc.Response{
		{ID: jsonrpc.NumberID(2), Result: json.RawMessage(`"0x3b9aca00"`)},
		{ID: jsonrpc.NumberID(1), Result: json.RawMessage(`"1"`)},
	}}, nil)

	c := NewTransport(inner, time.Minute, 10, nil)
	defer c.Close()

	_, err = c.Call(context.Background(), jsonrpc.BatchPacket([]jsonrpc.SerializedRequest{a, b}))
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	resp, err := c.Call(context.Background(), single(t, "net_version", 9, nil))
	require.NoError(t, err)
	require.JSONEq(t, `"1"`, string(resp.Single.Result))
}
