package rpcstats

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountCall(t *testing.T) {
	ResetStats()

	CountCall("eth_chainId")
	CountCall("eth_chainId")
	CountCallWithTag("eth_blockNumber", "wallet")
	CountCallWithTag("eth_getBalance", "")

	snapshot := GetStats()
	require.Equal(t, uint(4), snapshot.Total)
	require.Equal(t, uint(2), snapshot.CounterPerMethod["eth_chainId"])
	require.Equal(t, uint(1), snapshot.CounterPerMethod["eth_getBalance"])
	require.Equal(t, uint(1), snapshot.CounterPerMethodPerTag["wallet"]["eth_blockNumber"])
	require.Equal(t, []string{"eth_chainId", "eth_getBalance"}, snapshot.Methods())
}

func TestCountCallConcurrent(t *testing.T) {
	ResetStats()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			CountCall("eth_call")
		}()
	}
	wg.Wait()

	require.Equal(t, uint(50), GetStats().CounterPerMethod["eth_call"])
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	before := testutil.ToFloat64(callsCounter.WithLabelValues("net_version", untagged))
	CountCall("net_version")
	require.Equal(t, before+1, testutil.ToFloat64(callsCounter.WithLabelValues("net_version", untagged)))
}
