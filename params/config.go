package params

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/status-im/status-go-rpc/logutils"
)

// ----------
// RetryConfig
// ----------

// RetryConfig holds the rate limit retry layer settings.
type RetryConfig struct {
	// Enabled flag wraps the transport in the retry layer
	Enabled bool

	// MaxRetries is the number of retries before giving up
	MaxRetries uint32 `validate:"lte=100"`

	// InitialBackoffMs is the base wait used when the server gives no hint
	InitialBackoffMs uint64

	// ComputeUnitsPerSecond is the provider budget
	ComputeUnitsPerSecond uint64

	// AvgCost is the average compute unit cost of one request
	AvgCost uint64
}

// InitialBackoff returns InitialBackoffMs as a duration.
func (c RetryConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

// ----------
// PubSubConfig
// ----------

// PubSubConfig holds settings of duplex (ws, ipc) connections.
type PubSubConfig struct {
	// ChannelSize is the buffer of each subscription channel
	ChannelSize int `validate:"gt=0"`

	// KeepaliveMs is the ping interval of websocket connections, 0 disables pings
	KeepaliveMs uint64

	// ReconnectAttempts bounds TryReconnect
	ReconnectAttempts uint64 `validate:"gt=0"`

	// ReconnectIntervalMs is the first wait between reconnect attempts
	ReconnectIntervalMs uint64 `validate:"gt=0"`
}

func (c PubSubConfig) Keepalive() time.Duration {
	return time.Duration(c.KeepaliveMs) * time.Millisecond
}

func (c PubSubConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMs) * time.Millisecond
}

// ----------
// CircuitBreakerConfig
// ----------

// CircuitBreakerConfig tunes the per provider circuits used when
// FallbackURLs are set. Durations are in milliseconds.
type CircuitBreakerConfig struct {
	Timeout                int `validate:"gt=0"`
	MaxConcurrentRequests  int `validate:"gt=0"`
	RequestVolumeThreshold int `validate:"gte=0"`
	SleepWindow            int `validate:"gte=0"`
	ErrorPercentThreshold  int `validate:"gte=0,lte=100"`
}

// ----------
// RateLimitConfig
// ----------

// RateLimitConfig holds the client side requests per second limiter.
type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerSecond int `validate:"gte=0"`
}

// ----------
// CacheConfig
// ----------

// CacheConfig holds the response cache of immutable methods.
type CacheConfig struct {
	Enabled    bool
	TTLSeconds uint64
	Capacity   uint64
	// Methods overrides the default allow-list
	Methods []string `validate:"dive,required"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ----------
// ClientConfig
// ----------

// ClientConfig stores configuration of an RPC client
type ClientConfig struct {
	// URL of the node. http(s) and ws(s) URLs and ipc paths are accepted.
	URL string `validate:"required,rpcurl"`

	// FallbackURLs are tried in order when URL fails. Only used for
	// request/response transports.
	FallbackURLs []string `validate:"dive,rpcurl"`

	// Headers are sent with every http request and the websocket handshake
	Headers map[string]string

	// Tag is attached to the call counters
	Tag string

	// CallTimeoutMs bounds calls made without a context
	CallTimeoutMs uint64

	RetryConfig          RetryConfig
	PubSubConfig         PubSubConfig
	CircuitBreakerConfig CircuitBreakerConfig
	RateLimitConfig      RateLimitConfig
	CacheConfig          CacheConfig
	LogSettings          logutils.LogSettings
}

// NewClientConfig creates new client configuration object with defaults.
func NewClientConfig(rawURL string) *ClientConfig {
	return &ClientConfig{
		URL:           rawURL,
		Headers:       map[string]string{},
		CallTimeoutMs: 30000,
		RetryConfig: RetryConfig{
			Enabled:               true,
			MaxRetries:            10,
			InitialBackoffMs:      1000,
			ComputeUnitsPerSecond: 330,
			AvgCost:               17,
		},
		PubSubConfig: PubSubConfig{
			ChannelSize:         16,
			KeepaliveMs:         10000,
			ReconnectAttempts:   10,
			ReconnectIntervalMs: 500,
		},
		CircuitBreakerConfig: CircuitBreakerConfig{
			Timeout:                20000,
			MaxConcurrentRequests:  100,
			RequestVolumeThreshold: 20,
			SleepWindow:            5000,
			ErrorPercentThreshold:  50,
		},
		RateLimitConfig: RateLimitConfig{
			MaxRequestsPerSecond: 50,
		},
		CacheConfig: CacheConfig{
			TTLSeconds: 600,
			Capacity:   1024,
		},
		LogSettings: logutils.LogSettings{
			Enabled: true,
			Level:   "INFO",
		},
	}
}

// NewConfigFromJSON parses incoming JSON over the defaults and validates it.
func NewConfigFromJSON(configJSON string) (*ClientConfig, error) {
	config := NewClientConfig("")

	if err := loadConfigFromJSON(configJSON, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigFromFile reads a JSON config file over the defaults and validates it.
func LoadConfigFromFile(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	config, err := NewConfigFromJSON(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	return config, nil
}

func loadConfigFromJSON(configJSON string, config *ClientConfig) error {
	decoder := json.NewDecoder(strings.NewReader(configJSON))
	decoder.DisallowUnknownFields()
	// override default configuration with values by JSON input
	return decoder.Decode(config)
}

// Validate checks if ClientConfig fields have valid values.
//
// A single error for a struct has the following format:
//
//	Key: 'ClientConfig.URL' Error:Field validation for 'URL' failed on the 'required' tag
func (c *ClientConfig) Validate() error {
	validate := NewValidator()

	if err := validate.Struct(c); err != nil {
		return err
	}

	if err := c.validateChildStructs(validate); err != nil {
		return err
	}

	if len(c.FallbackURLs) > 0 && !IsRequestResponseURL(c.URL) {
		return errors.Errorf("FallbackURLs require an http URL, got '%s'", c.URL)
	}

	return nil
}

func (c *ClientConfig) validateChildStructs(validate *validator.Validate) error {
	if err := c.RateLimitConfig.Validate(validate); err != nil {
		return err
	}
	if err := c.CacheConfig.Validate(validate); err != nil {
		return err
	}
	return nil
}

// Validate validates the RateLimitConfig struct and returns an error if inconsistent values are found
func (c *RateLimitConfig) Validate(validate *validator.Validate) error {
	if !c.Enabled {
		return nil
	}

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.MaxRequestsPerSecond == 0 {
		return errors.New("RateLimitConfig is enabled, but MaxRequestsPerSecond is 0")
	}

	return nil
}

// Validate validates the CacheConfig struct and returns an error if inconsistent values are found
func (c *CacheConfig) Validate(validate *validator.Validate) error {
	if !c.Enabled {
		return nil
	}

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.TTLSeconds == 0 || c.Capacity == 0 {
		return errors.New("CacheConfig is enabled, but TTLSeconds or Capacity is 0")
	}

	return nil
}

// String dumps config object as nicely indented JSON
func (c *ClientConfig) String() string {
	data, _ := json.MarshalIndent(c, "", "    ")
	return string(data)
}

// CallTimeout returns CallTimeoutMs as a duration.
func (c *ClientConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMs) * time.Millisecond
}

// ----------
// URL schemes
// ----------

type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeHTTP
	SchemeWS
	SchemeIPC
)

// ParseScheme classifies a node address.
func ParseScheme(raw string) Scheme {
	if raw == "" {
		return SchemeUnknown
	}
	if strings.HasSuffix(raw, ".ipc") || filepath.IsAbs(raw) {
		return SchemeIPC
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return SchemeUnknown
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return SchemeHTTP
	case "ws", "wss":
		return SchemeWS
	}
	return SchemeUnknown
}

func IsRequestResponseURL(raw string) bool {
	return ParseScheme(raw) == SchemeHTTP
}
