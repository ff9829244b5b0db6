package builder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/status-im/status-go-rpc/circuitbreaker"
	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/params"
	"github.com/status-im/status-go-rpc/rpc"
	"github.com/status-im/status-go-rpc/rpc/cache"
	"github.com/status-im/status-go-rpc/rpc/pubsub"
	"github.com/status-im/status-go-rpc/rpc/pubsub/ipc"
	"github.com/status-im/status-go-rpc/rpc/pubsub/ws"
	"github.com/status-im/status-go-rpc/rpc/ratelimit"
	"github.com/status-im/status-go-rpc/rpc/retry"
	"github.com/status-im/status-go-rpc/rpc/transport"
)

var ErrUnsupportedURL = errors.New("unsupported node url")

// Dial connects to the node in cfg and returns a client with the layers
// enabled in cfg, outermost first: cache, rate limit, retry and, when
// fallback URLs are set, the circuit breaker.
func Dial(ctx context.Context, cfg *params.ClientConfig) (*rpc.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := logutils.ZapLogger().Named("builder")

	var (
		base transport.Transport
		ps   *pubsub.Frontend
		err  error
	)
	switch params.ParseScheme(cfg.URL) {
	case params.SchemeHTTP:
		base, err = requestResponseTransport(cfg)
	case params.SchemeWS:
		ps, err = pubsub.Connect(ctx, ws.NewConnector(cfg.URL,
			ws.WithHeader(header(cfg.Headers)),
			ws.WithKeepalive(cfg.PubSubConfig.Keepalive()),
			ws.WithReconnectPolicy(reconnectPolicy(cfg.PubSubConfig)),
		), pubsub.WithChannelSize(cfg.PubSubConfig.ChannelSize))
		base = ps
	case params.SchemeIPC:
		ps, err = pubsub.Connect(ctx, ipc.NewConnector(cfg.URL,
			ipc.WithReconnectPolicy(reconnectPolicy(cfg.PubSubConfig)),
		), pubsub.WithChannelSize(cfg.PubSubConfig.ChannelSize))
		base = ps
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedURL, cfg.URL)
	}
	if err != nil {
		return nil, err
	}

	opts := []rpc.Option{
		rpc.WithTag(cfg.Tag),
		rpc.WithCallTimeout(cfg.CallTimeout()),
	}
	if ps != nil {
		opts = append(opts, rpc.WithPubSub(ps))
	}

	logger.Info("client ready",
		zap.String("url", redact(cfg.URL)),
		zap.Int("fallbacks", len(cfg.FallbackURLs)),
		zap.Bool("pubsub", ps != nil),
	)
	return rpc.NewClient(Layer(base, cfg), opts...), nil
}

// Layer wraps base with the cache, rate limit and retry layers enabled in cfg.
func Layer(base transport.Transport, cfg *params.ClientConfig) transport.Transport {
	t := base
	if cfg.RetryConfig.Enabled {
		t = retry.New(t, retryConfig(cfg.RetryConfig))
	}
	if cfg.RateLimitConfig.Enabled {
		t = ratelimit.NewTransport(t, ratelimit.NewRPSLimiter(cfg.RateLimitConfig.MaxRequestsPerSecond))
	}
	if cfg.CacheConfig.Enabled {
		t = cache.NewTransport(t, cfg.CacheConfig.TTL(), cfg.CacheConfig.Capacity, cfg.CacheConfig.Methods)
	}
	return t
}

func requestResponseTransport(cfg *params.ClientConfig) (transport.Transport, error) {
	var opts []transport.HTTPOption
	for k, v := range cfg.Headers {
		opts = append(opts, transport.WithHeader(k, v))
	}

	primary := transport.NewHTTP(cfg.URL, opts...)
	if len(cfg.FallbackURLs) == 0 {
		return primary, nil
	}

	providers := []circuitbreaker.Provider{{Name: providerName(0, cfg.URL), Transport: primary}}
	for i, u := range cfg.FallbackURLs {
		providers = append(providers, circuitbreaker.Provider{
			Name:      providerName(i+1, u),
			Transport: transport.NewHTTP(u, opts...),
		})
	}
	return circuitbreaker.NewFallbackTransport(circuitBreakerConfig(cfg.CircuitBreakerConfig), providers)
}

func retryConfig(c params.RetryConfig) retry.Config {
	config := retry.DefaultConfig()
	config.MaxRateLimitRetries = c.MaxRetries
	if c.InitialBackoffMs > 0 {
		config.InitialBackoff = c.InitialBackoff()
	}
	if c.ComputeUnitsPerSecond > 0 {
		config.ComputeUnitsPerSecond = c.ComputeUnitsPerSecond
	}
	if c.AvgCost > 0 {
		config.AvgCost = c.AvgCost
	}
	return config
}

func circuitBreakerConfig(c params.CircuitBreakerConfig) circuitbreaker.Config {
	return circuitbreaker.Config{
		Timeout:                c.Timeout,
		MaxConcurrentRequests:  c.MaxConcurrentRequests,
		RequestVolumeThreshold: c.RequestVolumeThreshold,
		SleepWindow:            c.SleepWindow,
		ErrorPercentThreshold:  c.ErrorPercentThreshold,
	}
}

func reconnectPolicy(c params.PubSubConfig) pubsub.ReconnectPolicy {
	policy := pubsub.DefaultReconnectPolicy()
	if c.ReconnectAttempts > 0 {
		policy.MaxAttempts = c.ReconnectAttempts
	}
	if c.ReconnectIntervalMs > 0 {
		policy.Interval = c.ReconnectInterval()
	}
	return policy
}

func header(headers map[string]string) http.Header {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}

// providerName doubles as the hystrix circuit name, so it must be stable
// and unique per endpoint.
func providerName(index int, rawURL string) string {
	return fmt.Sprintf("rpc-%d-%s", index, redact(rawURL))
}

// redact drops the path and query, which often carry api keys.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
