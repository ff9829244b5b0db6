package rpcstatus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/status-im/status-go-rpc/rpc/jsonrpc"
)

func TestNewRpcProviderStatus(t *testing.T) {
	now := time.Now()

	status := NewRpcProviderStatus(RpcProviderCallStatus{Name: "main", Timestamp: now})
	require.Equal(t, StatusUp, status.Status)
	require.Equal(t, now, status.LastSuccessAt)

	// an error response means the provider answered
	status = NewRpcProviderStatus(RpcProviderCallStatus{Name: "main", Timestamp: now, Err: &jsonrpc.ErrorPayload{Code: 3, Message: "execution reverted"}})
	require.Equal(t, StatusUp, status.Status)

	boom := errors.New("connection refused")
	status = NewRpcProviderStatus(RpcProviderCallStatus{Name: "main", Timestamp: now, Err: boom})
	require.Equal(t, StatusDown, status.Status)
	require.Equal(t, boom, status.LastError)
}

func TestProviderStatusesUpdate(t *testing.T) {
	statuses := NewProviderStatuses("main", "fallback")
	s, ok := statuses.Get("fallback")
	require.True(t, ok)
	require.Equal(t, StatusUnknown, s.Status)

	up := time.Now()
	statuses.Update(RpcProviderCallStatus{Name: "main", Timestamp: up})
	down := up.Add(time.Second)
	s = statuses.Update(RpcProviderCallStatus{Name: "main", Timestamp: down, Err: errors.New("timeout")})

	require.Equal(t, StatusDown, s.Status)
	require.Equal(t, up, s.LastSuccessAt)
	require.Equal(t, down, s.LastErrorAt)

	all := statuses.All()
	require.Len(t, all, 2)
	require.Equal(t, "fallback", all[0].Name)
	require.Equal(t, "main", all[1].Name)
}
