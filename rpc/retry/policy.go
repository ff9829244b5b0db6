package retry

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

// Policy decides which errors are worth retrying and how long to wait.
type Policy interface {
	ShouldRetry(err error) bool
	// BackoffHint returns a server suggested wait, if the error carries one.
	BackoffHint(err error) (time.Duration, bool)
}

// RateLimitPolicy retries the rate limit and capacity errors of common
// node providers.
type RateLimitPolicy struct{}

func (RateLimitPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var serErr *transport.SerError
	if errors.As(err, &serErr) {
		return false
	}

	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRateLimitErr() || httpErr.IsTemporarilyUnavailable()
	}

	var missing *transport.MissingBatchResponseError
	if errors.As(err, &missing) {
		return true
	}

	if payload, ok := transport.ProtocolError(err); ok {
		return IsRetryablePayload(payload)
	}

	var deserErr *transport.DeserError
	if errors.As(err, &deserErr) {
		if payload, ok := payloadFromText(deserErr.Text); ok {
			return IsRetryablePayload(payload)
		}
		return false
	}

	return strings.Contains(err.Error(), "429 Too Many Requests")
}

func (RateLimitPolicy) BackoffHint(err error) (time.Duration, bool) {
	payload, ok := transport.ProtocolError(err)
	if !ok || len(payload.Data) == 0 {
		return 0, false
	}

	var data struct {
		Rate struct {
			BackoffSeconds json.Number `json:"backoff_seconds"`
		} `json:"rate"`
	}
	if err := json.Unmarshal(payload.Data, &data); err != nil || data.Rate.BackoffSeconds == "" {
		return 0, false
	}

	if n, err := data.Rate.BackoffSeconds.Int64(); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	f, err := data.Rate.BackoffSeconds.Float64()
	if err != nil || f < 0 || math.IsInf(f, 0) {
		return 0, false
	}
	return time.Duration(int64(f)+1) * time.Second, true
}

// IsRetryablePayload reports whether an error response means the server is
// rate limiting or temporarily out of capacity.
func IsRetryablePayload(payload *jsonrpc.ErrorPayload) bool {
	msg := strings.ToLower(payload.Message)
	switch payload.Code {
	case 429, -32005:
		return true
	case -32016:
		if strings.Contains(msg, "rate limit") {
			return true
		}
	case -32012:
		if strings.Contains(msg, "credits") {
			return true
		}
	case -32007:
		if strings.Contains(msg, "request limit reached") {
			return true
		}
	}

	switch msg {
	case "header not found", "daily request count exceeded, request rate limited":
		return true
	}
	for _, fragment := range []string{"rate limit", "rate exceeded", "too many requests", "credits limited", "request limit"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// payloadFromText recovers an error payload from a reply that failed to
// decode, including replies that lack a usable id.
func payloadFromText(text string) (*jsonrpc.ErrorPayload, bool) {
	var payload jsonrpc.ErrorPayload
	if err := json.Unmarshal([]byte(text), &payload); err == nil && payload.Message != "" {
		return &payload, true
	}
	var wrapped struct {
		Error *jsonrpc.ErrorPayload `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Error != nil {
		return wrapped.Error, true
	}
	return nil, false
}

// IsRateLimitError applies RateLimitPolicy.
func IsRateLimitError(err error) bool {
	return RateLimitPolicy{}.ShouldRetry(err)
}

type orPolicy struct {
	base      Policy
	predicate func(error) bool
}

// Or extends base with an extra retry predicate. Backoff hints still come
// from base.
func Or(base Policy, predicate func(error) bool) Policy {
	return orPolicy{base: base, predicate: predicate}
}

func (p orPolicy) ShouldRetry(err error) bool {
	return p.base.ShouldRetry(err) || (err != nil && p.predicate(err))
}

func (p orPolicy) BackoffHint(err error) (time.Duration, bool) {
	return p.base.BackoffHint(err)
}
