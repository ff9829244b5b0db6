package builder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/status-im/status-go-rpc/params"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func reply(id json.RawMessage, result string) []byte {
	return []byte(`{"jsonrpc":"2.0","id":` + string(id) + `,"result":` + result + `}`)
}

func readRequest(t *testing.T, r *http.Request) rpcRequest {
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var req rpcRequest
	require.NoError(t, json.Unmarshal(body, &req))
	return req
}

func testConfig(url string) *params.ClientConfig {
	cfg := params.NewClientConfig(url)
	cfg.RetryConfig.InitialBackoffMs = 1
	return cfg
}

func TestDialHTTPRetriesRateLimitedCalls(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := readRequest(t, r)
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(reply(req.ID, `"0x10"`))
	}))
	defer srv.Close()

	client, err := Dial(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer client.Close()
	require.False(t, client.IsPubSub())

	var block string
	require.NoError(t, client.CallContext(context.Background(), &block, "eth_blockNumber", nil))
	require.Equal(t, "0x10", block)
	require.EqualValues(t, 2, hits.Load())
}

func TestDialHTTPCachesImmutableMethods(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(reply(readRequest(t, r).ID, `"0x1"`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.CacheConfig.Enabled = true
	cfg.RateLimitConfig.Enabled = true
	client, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 3; i++ {
		var chainID string
		require.NoError(t, client.CallContext(context.Background(), &chainID, "eth_chainId", nil))
		require.Equal(t, "0x1", chainID)
	}
	require.EqualValues(t, 1, hits.Load())
}

func TestDialHTTPFallsBack(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(reply(readRequest(t, r).ID, `"0x2a"`))
	}))
	defer fallback.Close()

	cfg := testConfig(primary.URL)
	cfg.RetryConfig.Enabled = false
	cfg.FallbackURLs = []string{fallback.URL}
	client, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	var price string
	require.NoError(t, client.CallContext(context.Background(), &price, "eth_gasPrice", nil))
	require.Equal(t, "0x2a", price)
}

func TestDialWebSocketSubscribes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req rpcRequest
			if json.Unmarshal(data, &req) != nil {
				return
			}
			if req.Method == "eth_subscribe" {
				_ = conn.WriteMessage(websocket.TextMessage, reply(req.ID, `"0xabc"`))
				_ = conn.WriteMessage(websocket.TextMessage, []byte(
					`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xabc","result":{"number":"0x1"}}}`))
				continue
			}
			_ = conn.WriteMessage(websocket.TextMessage, reply(req.ID, `"0x1"`))
		}
	}))
	defer srv.Close()

	cfg := testConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	client, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()
	require.True(t, client.IsPubSub())

	var chainID string
	require.NoError(t, client.CallContext(context.Background(), &chainID, "eth_chainId", nil))
	require.Equal(t, "0x1", chainID)

	sub, err := client.SubscribeStream(context.Background(), "eth_subscribe", []string{"newHeads"})
	require.NoError(t, err)
	var head struct {
		Number string `json:"number"`
	}
	require.NoError(t, sub.RecvInto(context.Background(), &head))
	require.Equal(t, "0x1", head.Number)
}

func TestDialRejectsInvalidConfig(t *testing.T) {
	_, err := Dial(context.Background(), params.NewClientConfig("ftp://example.org"))
	require.Error(t, err)
}

func TestRedact(t *testing.T) {
	require.Equal(t, "https://mainnet.example.org", redact("https://mainnet.example.org/v3/secret-key?x=1"))
	require.Equal(t, "/tmp/geth.ipc", redact("/tmp/geth.ipc"))
}
