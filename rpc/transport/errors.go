package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
)

var (
	// ErrBackendGone is returned when the connection service has stopped.
	ErrBackendGone = errors.New("backend connection task has stopped")
	// ErrPubSubUnavailable is returned for subscription calls on a transport
	// without a duplex connection.
	ErrPubSubUnavailable = errors.New("pubsub is not available on this transport")
)

// SerError means the request could not be encoded. It is never sent.
type SerError struct {
	Err error
}

func (e *SerError) Error() string {
	return "serialization error: " + e.Err.Error()
}

func (e *SerError) Unwrap() error {
	return e.Err
}

// DeserError means a reply could not be decoded. Text holds the offending
// payload.
type DeserError struct {
	Err  error
	Text string
}

func (e *DeserError) Error() string {
	return fmt.Sprintf("deserialization error: %v (text: %s)", e.Err, truncate(e.Text, 256))
}

func (e *DeserError) Unwrap() error {
	return e.Err
}

// HTTPError reports a non-2xx status from an HTTP backend.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d with body: %s", e.StatusCode, truncate(e.Body, 256))
}

func (e *HTTPError) IsRateLimitErr() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *HTTPError) IsTemporarilyUnavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

// MissingBatchResponseError is delivered to a batch waiter whose id was
// absent from the reply.
type MissingBatchResponseError struct {
	ID jsonrpc.ID
}

func (e *MissingBatchResponseError) Error() string {
	return fmt.Sprintf("missing response for request with id %s", e.ID)
}

// ProtocolError returns the error payload carried by err, if any.
func ProtocolError(err error) (*jsonrpc.ErrorPayload, bool) {
	var payload *jsonrpc.ErrorPayload
	if errors.As(err, &payload) {
		return payload, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
