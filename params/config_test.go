package params_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/status-im/status-go-rpc/params"
)

func TestNewClientConfigDefaults(t *testing.T) {
	c := params.NewClientConfig("http://localhost:8545")
	require.NoError(t, c.Validate())
	require.True(t, c.RetryConfig.Enabled)
	require.EqualValues(t, 330, c.RetryConfig.ComputeUnitsPerSecond)
	require.EqualValues(t, 17, c.RetryConfig.AvgCost)
	require.Equal(t, 16, c.PubSubConfig.ChannelSize)
}

func TestNewConfigFromJSON(t *testing.T) {
	c, err := params.NewConfigFromJSON(`{
		"URL": "wss://mainnet.example.org/ws",
		"Tag": "wallet",
		"RetryConfig": {"Enabled": true, "MaxRetries": 3, "ComputeUnitsPerSecond": 660, "AvgCost": 17},
		"PubSubConfig": {"ChannelSize": 64, "ReconnectAttempts": 5, "ReconnectIntervalMs": 100}
	}`)
	require.NoError(t, err)
	require.Equal(t, "wallet", c.Tag)
	require.EqualValues(t, 3, c.RetryConfig.MaxRetries)
	require.EqualValues(t, 660, c.RetryConfig.ComputeUnitsPerSecond)
	require.Equal(t, 64, c.PubSubConfig.ChannelSize)
	// untouched sections keep their defaults
	require.Equal(t, 20000, c.CircuitBreakerConfig.Timeout)
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name   string
		config string
	}{
		{"missing url", `{}`},
		{"bad scheme", `{"URL": "ftp://example.org"}`},
		{"zero channel size", `{"URL": "ws://localhost:8546", "PubSubConfig": {"ChannelSize": 0, "ReconnectAttempts": 1, "ReconnectIntervalMs": 1}}`},
		{"bad fallback", `{"URL": "http://localhost:8545", "FallbackURLs": ["nope"]}`},
		{"fallback on ws", `{"URL": "ws://localhost:8546", "FallbackURLs": ["http://localhost:8545"]}`},
		{"rate limit without limit", `{"URL": "http://localhost:8545", "RateLimitConfig": {"Enabled": true, "MaxRequestsPerSecond": 0}}`},
		{"cache without ttl", `{"URL": "http://localhost:8545", "CacheConfig": {"Enabled": true, "TTLSeconds": 0, "Capacity": 10}}`},
		{"cache with empty method", `{"URL": "http://localhost:8545", "CacheConfig": {"Enabled": true, "TTLSeconds": 1, "Capacity": 10, "Methods": [""]}}`},
		{"bad log level", `{"URL": "http://localhost:8545", "LogSettings": {"Level": "LOUD"}}`},
		{"unknown field", `{"URL": "http://localhost:8545", "Foo": 1}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := params.NewConfigFromJSON(tc.config)
			require.Error(t, err)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"URL": "/tmp/geth.ipc"}`), 0600))

	c, err := params.LoadConfigFromFile(path)
	require.NoError(t, err)
	require.Equal(t, params.SchemeIPC, params.ParseScheme(c.URL))

	_, err = params.LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestParseScheme(t *testing.T) {
	require.Equal(t, params.SchemeHTTP, params.ParseScheme("https://node.example.org"))
	require.Equal(t, params.SchemeWS, params.ParseScheme("WS://node.example.org:8546"))
	require.Equal(t, params.SchemeIPC, params.ParseScheme("geth.ipc"))
	require.Equal(t, params.SchemeIPC, params.ParseScheme("/var/run/geth.sock"))
	require.Equal(t, params.SchemeUnknown, params.ParseScheme("localhost:8545"))
	require.Equal(t, params.SchemeUnknown, params.ParseScheme(""))
}
