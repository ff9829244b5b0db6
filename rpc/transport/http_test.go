package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
)

func newPacket(t *testing.T, method string, id uint64) jsonrpc.RequestPacket {
	req, err := jsonrpc.NewRequest(method, jsonrpc.NumberID(id), nil).Serialize()
	require.NoError(t, err)
	return jsonrpc.SinglePacket(req)
}

func TestHTTPCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"jsonrpc":"2.0","method":"eth_chainId","id":1}`, string(body))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, WithHeader("X-Api-Key", "secret"))
	out, err := h.Call(context.Background(), newPacket(t, "eth_chainId", 1))
	require.NoError(t, err)
	require.False(t, out.IsBatch())
	require.Equal(t, jsonrpc.NumberID(1), out.Single.ID)
	require.JSONEq(t, `"0x1"`, string(out.Single.Result))
}

func TestHTTPStatusErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL)
	_, err := h.Call(context.Background(), newPacket(t, "eth_chainId", 1))
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.True(t, httpErr.IsRateLimitErr())
	require.Equal(t, "slow down", httpErr.Body)

	status = http.StatusServiceUnavailable
	_, err = h.Call(context.Background(), newPacket(t, "eth_chainId", 2))
	require.True(t, errors.As(err, &httpErr))
	require.True(t, httpErr.IsTemporarilyUnavailable())
}

func TestHTTPMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).Call(context.Background(), newPacket(t, "eth_chainId", 1))
	var deserErr *DeserError
	require.True(t, errors.As(err, &deserErr))
	require.Equal(t, "<html>oops</html>", deserErr.Text)
}
