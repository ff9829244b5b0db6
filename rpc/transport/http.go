package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	contentType        = "application/json"
	maxResponseSize    = 32 * 1024 * 1024
)

// HTTP posts request packets to a single URL.
type HTTP struct {
	url     string
	client  *http.Client
	headers http.Header
	logger  *zap.Logger
}

type HTTPOption func(*HTTP)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = client
	}
}

func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) {
		h.headers.Set(key, value)
	}
}

func WithHTTPLogger(logger *zap.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = logger
	}
}

func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:     url,
		client:  &http.Client{Timeout: DefaultHTTPTimeout},
		headers: make(http.Header),
		logger:  logutils.ZapLogger().Named("http-transport"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTP) URL() string {
	return h.url
}

func (h *HTTP) Call(ctx context.Context, packet jsonrpc.RequestPacket) (jsonrpc.ResponsePacket, error) {
	body, err := json.Marshal(packet)
	if err != nil {
		return jsonrpc.ResponsePacket{}, &SerError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return jsonrpc.ResponsePacket{}, fmt.Errorf("build http request: %w", err)
	}
	for k, v := range h.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)

	resp, err := h.client.Do(req)
	if err != nil {
		return jsonrpc.ResponsePacket{}, fmt.Errorf("http post %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return jsonrpc.ResponsePacket{}, fmt.Errorf("read http response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		h.logger.Debug("http backend returned error status",
			zap.Int("status", resp.StatusCode),
			zap.Strings("methods", packet.Methods()))
		return jsonrpc.ResponsePacket{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out jsonrpc.ResponsePacket
	if err := json.Unmarshal(raw, &out); err != nil {
		return jsonrpc.ResponsePacket{}, &DeserError{Err: err, Text: string(raw)}
	}
	return out, nil
}
