package provider_errors

import (
	"context"
	"errors"

	"github.com/afex/hystrix-go/hystrix"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/status-go-rpc/rpc/retry"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

type RpcProviderErrorType string

const (
	// RPC Errors
	RpcErrorTypeNone           RpcProviderErrorType = "none"
	RpcErrorTypeMethodNotFound RpcProviderErrorType = "rpc_method_not_found"
	RpcErrorTypeRPSLimit       RpcProviderErrorType = "rpc_rps_limit"
	RpcErrorTypeRPCOther       RpcProviderErrorType = "rpc_other"

	// Provider Errors
	ProviderErrorTypeContextCanceled RpcProviderErrorType = "context_canceled"
	ProviderErrorTypeRequest         RpcProviderErrorType = "request"
	ProviderErrorTypeCircuitOpen     RpcProviderErrorType = "circuit_open"
	ProviderErrorTypeBackendGone     RpcProviderErrorType = "backend_gone"
	ProviderErrorTypeOther           RpcProviderErrorType = "other"
)

func IsRPCError(err error) (rpc.Error, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

func IsMethodNotFoundError(err error) bool {
	if rpcErr, ok := IsRPCError(err); ok {
		return rpcErr.ErrorCode() == -32601
	}
	return false
}

func IsContextCanceledError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsRequestError means the request itself is broken; no provider can
// serve it.
func IsRequestError(err error) bool {
	var serErr *transport.SerError
	return errors.As(err, &serErr)
}

// DetermineProviderErrorType classifies an error returned by a provider.
func DetermineProviderErrorType(err error) RpcProviderErrorType {
	switch {
	case err == nil:
		return RpcErrorTypeNone
	case IsContextCanceledError(err):
		return ProviderErrorTypeContextCanceled
	case IsRequestError(err):
		return ProviderErrorTypeRequest
	case errors.Is(err, hystrix.ErrCircuitOpen):
		return ProviderErrorTypeCircuitOpen
	case errors.Is(err, transport.ErrBackendGone):
		return ProviderErrorTypeBackendGone
	case retry.IsRateLimitError(err):
		return RpcErrorTypeRPSLimit
	case IsMethodNotFoundError(err):
		return RpcErrorTypeMethodNotFound
	}
	if _, ok := IsRPCError(err); ok {
		return RpcErrorTypeRPCOther
	}
	return ProviderErrorTypeOther
}

// IsNonCriticalRpcError reports errors that say nothing about the health of
// the provider.
func IsNonCriticalRpcError(err error) bool {
	switch DetermineProviderErrorType(err) {
	case RpcErrorTypeNone, RpcErrorTypeMethodNotFound, RpcErrorTypeRPSLimit, RpcErrorTypeRPCOther:
		return true
	default:
		return false
	}
}

// IsNonCriticalProviderError reports errors caused by the caller rather
// than the provider.
func IsNonCriticalProviderError(err error) bool {
	switch DetermineProviderErrorType(err) {
	case RpcErrorTypeNone, ProviderErrorTypeContextCanceled, ProviderErrorTypeRequest:
		return true
	default:
		return false
	}
}

// ShouldCancelFallback reports errors that another provider would answer
// the same way.
func ShouldCancelFallback(err error) bool {
	return IsContextCanceledError(err) || IsRequestError(err)
}
